package shell

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultCompletionLimit applies when no limit is configured.
const DefaultCompletionLimit = 50

// Completion is the result of completing a partial line.
type Completion struct {
	// Line is the input with the last word extended as far as all
	// candidates agree. It equals the input when nothing could be added.
	Line string
	// Candidates lists every match, capped at the completer's limit.
	Candidates []string
}

// Completer completes command names, cd targets and cat ordinals from
// cached state only.
type Completer struct {
	in    *Interpreter
	limit int
}

// NewCompleter returns a completer listing at most limit candidates.
func NewCompleter(in *Interpreter, limit int) *Completer {
	if limit <= 0 {
		limit = DefaultCompletionLimit
	}
	return &Completer{in: in, limit: limit}
}

// Complete completes the last word of line. Command names are offered
// regardless of whether they can run at the current position.
func (c *Completer) Complete(line string) Completion {
	start := wordStart(line)
	head, word := line[:start], line[start:]
	partial := strings.TrimLeft(word, `"'`)

	words, err := Tokenize(head)
	if err != nil {
		return Completion{Line: line}
	}

	var domain []string
	switch {
	case len(words) == 0:
		domain = c.in.CommandNames()
	case len(words) == 1 && words[0] == "cd":
		domain = c.cdCandidates(partial)
	case len(words) == 1 && words[0] == "cat":
		domain = c.ordinals()
	}

	matches := filterPrefix(domain, partial)
	switch len(matches) {
	case 0:
		return Completion{Line: line}
	case 1:
		return Completion{Line: head + Quote(matches[0]) + " ", Candidates: matches}
	}
	// The extension must hold for every match, not only the listed ones.
	out := Completion{Line: line, Candidates: matches}
	if len(matches) > c.limit {
		out.Candidates = matches[:c.limit]
	}
	if lcp := commonPrefix(matches); utf8.RuneCountInString(lcp) > utf8.RuneCountInString(partial) {
		out.Line = head + quotePrefix(lcp)
	}
	return out
}

func (c *Completer) cdCandidates(partial string) []string {
	out := []string{".."}
	for _, t := range c.in.targets() {
		out = append(out, t.title)
	}
	if partial != "" && (partial[0] == '-' || unicode.IsDigit(rune(partial[0]))) && c.in.favorites != nil {
		for _, b := range c.in.favorites.List() {
			out = append(out, strconv.Itoa(b.ID))
		}
	}
	return out
}

// ordinals are only offered for the listing they are valid against.
func (c *Completer) ordinals() []string {
	l := c.in.sess.Rendered()
	if !l.Enterable() {
		return nil
	}
	out := make([]string, l.Len())
	for i := range out {
		out[i] = strconv.Itoa(i + 1)
	}
	return out
}

// wordStart returns the byte offset where the last word of line begins.
// An open quote starts a word that runs to the end of the line.
func wordStart(line string) int {
	start := 0
	var quote rune
	escaped := false
	for i, r := range line {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == ' ' || r == '\t':
			start = i + 1
		}
	}
	return start
}

func filterPrefix(domain []string, partial string) []string {
	lower := strings.ToLower(partial)
	var out []string
	seen := make(map[string]bool)
	for _, cand := range domain {
		if seen[cand] || !strings.HasPrefix(strings.ToLower(cand), lower) {
			continue
		}
		seen[cand] = true
		out = append(out, cand)
	}
	return out
}

// commonPrefix returns the longest prefix, compared without case, shared by
// every string, spelled as in the first one.
func commonPrefix(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	first := []rune(ss[0])
	n := len(first)
	for _, s := range ss[1:] {
		rs := []rune(s)
		i := 0
		for i < n && i < len(rs) && unicode.ToLower(first[i]) == unicode.ToLower(rs[i]) {
			i++
		}
		n = i
	}
	return string(first[:n])
}

// quotePrefix quotes s without closing the quote, so typing can continue.
func quotePrefix(s string) string {
	q := Quote(s)
	if q != s {
		return strings.TrimSuffix(q, `"`)
	}
	return s
}
