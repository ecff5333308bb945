// Package testutil provides test helpers for nga-cli tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, etc.)
//   - store_helpers.go: database test setup (NewTestStore)
//   - fs_helpers.go: filesystem operations (WriteFile)
package testutil
