// Package shell is the line-oriented front-end: it splits input lines into
// commands, runs them against a navigation session, completes partial input
// from cached state and keeps the command history.
package shell

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParse reports malformed input, such as an unterminated quote.
	ErrParse = errors.New("parse error")
	// ErrUnknownCommand reports a command name outside the command set.
	ErrUnknownCommand = errors.New("unknown command")
)

// Tokenize splits a line into words. Single and double quotes group
// whitespace; a backslash escapes the next character outside single quotes.
// An unterminated quote or a trailing backslash is an ErrParse.
func Tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				tokens = append(tokens, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated %c quote", ErrParse, quote)
	}
	if escaped {
		return nil, fmt.Errorf("%w: trailing backslash", ErrParse)
	}
	if inWord {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

// Quote returns s in a form Tokenize reads back as one word.
func Quote(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}
