package session

import (
	"errors"
	"testing"
)

func TestPositionKeyIgnoresPageAndNames(t *testing.T) {
	a := InBoard(7, 1)
	b := InBoard(7, 3)
	b.BoardName = "网事杂谈"

	if a.Key() != b.Key() {
		t.Errorf("Key() differs: %v vs %v", a.Key(), b.Key())
	}
	if a.Same(b) {
		t.Error("Same() true for different pages")
	}
	if !a.Same(b.WithPage(1)) {
		t.Error("Same() false for same page with different names")
	}
}

func TestPositionLabels(t *testing.T) {
	p := InThread(7, 42, 2)
	if got := p.BoardLabel(); got != "fid 7" {
		t.Errorf("BoardLabel() = %q", got)
	}
	if got := p.ThreadLabel(); got != "tid 42" {
		t.Errorf("ThreadLabel() = %q", got)
	}
	if got := p.String(); got != "thread 7/42 page 2" {
		t.Errorf("String() = %q", got)
	}
	if got := Root().String(); got != "root" {
		t.Errorf("Root().String() = %q", got)
	}
}

func TestListingCacheForget(t *testing.T) {
	c := newListingCache()
	c.put(&Listing{Position: InBoard(1, 1)})
	c.put(&Listing{Position: InBoard(1, 2)})
	c.put(&Listing{Position: InBoard(2, 1)})

	if n := c.forget(InBoard(1, 9).Key()); n != 2 {
		t.Errorf("forget() removed %d, want 2", n)
	}
	if c.len() != 1 {
		t.Errorf("len() = %d, want 1", c.len())
	}
	if _, ok := c.get(InBoard(2, 1)); !ok {
		t.Error("unrelated entry was removed")
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("boom")
	var err error = &FetchError{Position: InBoard(1, 1), Err: cause}
	if !errors.Is(err, ErrFetchFailed) || !errors.Is(err, cause) {
		t.Errorf("FetchError does not match both sentinel and cause")
	}

	err = &AmbiguousError{Query: "wow", Candidates: []string{"wow 1", "wow 2"}}
	if !errors.Is(err, ErrAmbiguousTarget) {
		t.Error("AmbiguousError does not match ErrAmbiguousTarget")
	}
	if got := err.Error(); got != `"wow" matches 2 targets: wow 1, wow 2` {
		t.Errorf("Error() = %q", got)
	}
}
