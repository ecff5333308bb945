package session

import (
	"time"

	"github.com/gyokusei/nga-cli/internal/forum"
)

// Kind is what an entry points at.
type Kind int

const (
	KindBoard Kind = iota
	KindThread
	KindPost
)

func (k Kind) String() string {
	switch k {
	case KindBoard:
		return "board"
	case KindThread:
		return "thread"
	default:
		return "post"
	}
}

// Entry is one row of a listing. Ordinals are 1-based and only meaningful
// for the listing that produced them.
type Entry struct {
	Ordinal int
	ID      int
	Title   string
	Kind    Kind

	Board  *forum.Board
	Thread *forum.Thread
	Post   *forum.Post
}

// Listing is one fetched page at a position.
type Listing struct {
	Position   Position
	Title      string
	Entries    []Entry
	Page       int
	TotalPages int // 0 when unknown
	HasNext    bool

	// Generation increases with every fetch in a session.
	Generation uint64
	FetchedAt  time.Time
}

// Entry returns the entry with the given ordinal.
func (l *Listing) Entry(ordinal int) (Entry, bool) {
	if l == nil || ordinal < 1 || ordinal > len(l.Entries) {
		return Entry{}, false
	}
	return l.Entries[ordinal-1], true
}

// Len returns the number of entries.
func (l *Listing) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Entries)
}

// Enterable reports whether entries lead somewhere (boards and threads do,
// posts do not).
func (l *Listing) Enterable() bool {
	return l != nil && l.Position.Level != LevelThread
}

type cacheKey struct {
	Key
	Page int
}

func keyOf(p Position) cacheKey {
	return cacheKey{Key: p.Key(), Page: p.Page}
}

// listingCache maps (position-without-page, page) to the listing fetched for
// it. Entries live for the whole session; only an explicit reload or forget
// removes them. Callers hold the session mutex.
type listingCache struct {
	entries map[cacheKey]*Listing
}

func newListingCache() *listingCache {
	return &listingCache{entries: make(map[cacheKey]*Listing)}
}

func (c *listingCache) get(p Position) (*Listing, bool) {
	l, ok := c.entries[keyOf(p)]
	return l, ok
}

func (c *listingCache) put(l *Listing) {
	c.entries[keyOf(l.Position)] = l
}

func (c *listingCache) drop(p Position) {
	delete(c.entries, keyOf(p))
}

// forget drops every page cached under a key.
func (c *listingCache) forget(k Key) int {
	n := 0
	for ck := range c.entries {
		if ck.Key == k {
			delete(c.entries, ck)
			n++
		}
	}
	return n
}

// totalPages returns the page count reported by any cached page of k, or 0.
func (c *listingCache) totalPages(k Key) int {
	for ck, l := range c.entries {
		if ck.Key == k && l.TotalPages > 0 {
			return l.TotalPages
		}
	}
	return 0
}

func (c *listingCache) len() int {
	return len(c.entries)
}
