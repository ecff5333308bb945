package shell

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/gyokusei/nga-cli/internal/session"
)

// maxAmbiguous caps the candidates listed in an AmbiguousError.
const maxAmbiguous = 10

type target struct {
	title string
	id    int
	kind  session.Kind
}

func (t target) label() string {
	if t.kind == session.KindBoard {
		return t.title + " (fid " + strconv.Itoa(t.id) + ")"
	}
	return t.title + " (tid " + strconv.Itoa(t.id) + ")"
}

// targets lists what cd can reach by name from here: favorite boards and
// the entries of the cached listing. It never fetches.
func (in *Interpreter) targets() []target {
	var out []target
	seen := make(map[[2]int]bool)
	add := func(t target) {
		k := [2]int{int(t.kind), t.id}
		if seen[k] || t.title == "" {
			return
		}
		seen[k] = true
		out = append(out, t)
	}
	if l, ok := in.sess.Cached(); ok && l.Enterable() {
		for _, e := range l.Entries {
			if e.Kind == session.KindBoard || e.Kind == session.KindThread {
				add(target{title: e.Title, id: e.ID, kind: e.Kind})
			}
		}
	}
	if in.favorites != nil {
		for _, b := range in.favorites.List() {
			add(target{title: b.Name, id: b.ID, kind: session.KindBoard})
		}
	}
	return out
}

// resolve finds the single target a name refers to. An exact match (ignoring
// case) wins, then substring matches, then fuzzy matches.
func (in *Interpreter) resolve(name string) (target, error) {
	all := in.targets()
	if len(all) == 0 {
		return target{}, fmt.Errorf("%w: nothing named %q here, run ls or use a fid", session.ErrInvalidSelection, name)
	}

	var exact, partial []target
	lower := strings.ToLower(name)
	for _, t := range all {
		switch {
		case strings.EqualFold(t.title, name):
			exact = append(exact, t)
		case strings.Contains(strings.ToLower(t.title), lower):
			partial = append(partial, t)
		}
	}
	for _, group := range [][]target{exact, partial} {
		if len(group) > 0 {
			return pick(name, group)
		}
	}

	titles := make([]string, len(all))
	for i, t := range all {
		titles[i] = t.title
	}
	var fuzzyHits []target
	for _, m := range fuzzy.Find(name, titles) {
		fuzzyHits = append(fuzzyHits, all[m.Index])
	}
	if len(fuzzyHits) == 0 {
		return target{}, fmt.Errorf("%w: nothing matches %q", session.ErrInvalidSelection, name)
	}
	return pick(name, fuzzyHits)
}

func pick(query string, group []target) (target, error) {
	if len(group) == 1 {
		return group[0], nil
	}
	labels := make([]string, 0, len(group))
	for i, t := range group {
		if i == maxAmbiguous {
			labels = append(labels, fmt.Sprintf("and %d more", len(group)-maxAmbiguous))
			break
		}
		labels = append(labels, t.label())
	}
	return target{}, &session.AmbiguousError{Query: query, Candidates: labels}
}
