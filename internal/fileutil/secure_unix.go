//go:build !windows

// Package fileutil creates the files nga-cli keeps in its home directory.
// The config file holds a login cookie and the database holds raw forum
// responses, so both are meant to be readable by their owner only.
//
// On Unix the helpers are plain os calls and rely on the mode bits. On
// Windows, owner-only modes (perm & 0077 == 0) also get a DACL that grants
// access to the current user alone.
package fileutil

import "os"

// SecureMkdirAll creates a directory path and all parents that do not yet exist.
func SecureMkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// SecureChmod changes the mode of the named file.
func SecureChmod(path string, perm os.FileMode) error {
	return os.Chmod(path, perm)
}

// SecureOpenFile opens the named file with the given flag and permissions.
func SecureOpenFile(path string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, flag, perm)
}
