// Package session implements the navigation state machine shared by the shell
// and the interactive menu: the current position, the back stack, the
// per-session listing cache and the debug record of the last exchange.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gyokusei/nga-cli/internal/forum"
)

// DebugRecord is the last request/response pair seen by the session.
type DebugRecord struct {
	Exchange   forum.Exchange
	Position   Position
	RecordedAt time.Time
}

// ExchangeRecorder persists debug records beyond the session.
type ExchangeRecorder interface {
	SaveExchange(forum.Exchange) error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithRecorder persists every debug record through r.
func WithRecorder(r ExchangeRecorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

// WithStart starts the session at p instead of the root. The root stays on
// the back stack, as if p had been reached by a direct jump.
func WithStart(p Position) Option {
	return func(s *Session) {
		if !p.IsRoot() {
			s.stack = append(s.stack, s.pos)
			s.pos = p
		}
	}
}

// Session is one browsing session. All methods are safe for concurrent use;
// navigation methods reject overlapping calls with ErrBusy.
type Session struct {
	gw       forum.Gateway
	logger   *slog.Logger
	recorder ExchangeRecorder
	now      func() time.Time

	busy   atomic.Bool
	flight singleflight.Group

	mu         sync.Mutex
	pos        Position
	stack      []Position
	cache      *listingCache
	generation uint64
	rendered   *Listing // listing whose ordinals Enter resolves against
	debug      DebugRecord
}

// New creates a session at the root.
func New(gw forum.Gateway, opts ...Option) *Session {
	s := &Session{
		gw:     gw,
		logger: slog.Default(),
		now:    time.Now,
		pos:    Root(),
		cache:  newListingCache(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Position returns the current position.
func (s *Session) Position() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Stack returns a copy of the back stack, most recent last.
func (s *Session) Stack() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, len(s.stack))
	copy(out, s.stack)
	return out
}

// DebugRecord returns the last recorded exchange.
func (s *Session) DebugRecord() DebugRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debug
}

// Cached returns the listing cached for the current position without
// fetching. It backs completion, which must never touch the network.
func (s *Session) Cached() (*Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.get(s.pos)
}

// Rendered returns the listing whose ordinals are currently valid, or nil.
func (s *Session) Rendered() *Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.renderedValidLocked() {
		return nil
	}
	return s.rendered
}

// CurrentListing returns the listing for the current position, fetching and
// caching it on a miss. Concurrent callers for the same page share a single
// gateway call. The returned listing becomes the one ordinals refer to.
func (s *Session) CurrentListing(ctx context.Context) (*Listing, error) {
	pos := s.Position()
	l, err := s.listing(ctx, pos)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.pos.Same(l.Position) {
		s.rendered = l
	}
	s.mu.Unlock()
	return l, nil
}

// Enter moves into the entry with the given ordinal of the displayed
// listing. Boards open at page 1 of their thread list, threads at page 1 of
// their posts. The previous position is pushed on the back stack.
func (s *Session) Enter(ctx context.Context, ordinal int) (*Listing, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()

	s.mu.Lock()
	cur := s.pos
	if cur.Level == LevelThread {
		s.mu.Unlock()
		return nil, invalidSelection("posts cannot be entered")
	}
	if !s.renderedValidLocked() {
		s.mu.Unlock()
		return nil, invalidSelection("no listing displayed, run ls first")
	}
	e, ok := s.rendered.Entry(ordinal)
	n := s.rendered.Len()
	s.mu.Unlock()
	if !ok {
		if n == 0 {
			return nil, invalidSelection("listing is empty")
		}
		return nil, invalidSelection("%d is not between 1 and %d", ordinal, n)
	}

	var target Position
	switch e.Kind {
	case KindBoard:
		target = InBoard(e.ID, 1)
		target.BoardName = e.Title
	case KindThread:
		target = InThread(cur.BoardID, e.ID, 1)
		target.BoardName = cur.BoardName
		target.ThreadSubject = e.Title
	default:
		return nil, invalidSelection("%s entries cannot be entered", e.Kind)
	}
	return s.moveTo(ctx, cur, target, true)
}

// EnterByID jumps to a board or thread by remote id. Boards can be entered
// from the root or another board; threads only from inside a board, since a
// thread position needs its board.
func (s *Session) EnterByID(ctx context.Context, id int, kind Kind) (*Listing, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()

	cur := s.Position()
	var target Position
	switch {
	case kind == KindBoard && (cur.Level == LevelRoot || cur.Level == LevelBoard):
		target = InBoard(id, 1)
	case kind == KindThread && cur.Level == LevelBoard:
		target = InThread(cur.BoardID, id, 1)
		target.BoardName = cur.BoardName
	default:
		return nil, invalidSelection("cannot open a %s from the %s", kind, cur.Level)
	}
	return s.moveTo(ctx, cur, target, true)
}

// NextPage moves to the following page of the current board or thread.
// It fails with ErrNoSuchPage when the current listing has no next page.
// Page changes are lateral and never touch the back stack.
func (s *Session) NextPage(ctx context.Context) (*Listing, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()

	cur := s.Position()
	if cur.IsRoot() {
		return nil, fmt.Errorf("%w: the board list has one page", ErrNoSuchPage)
	}
	l, err := s.listing(ctx, cur)
	if err != nil {
		return nil, err
	}
	if !l.HasNext {
		return nil, fmt.Errorf("%w: page %d is the last page", ErrNoSuchPage, cur.Page)
	}
	return s.moveTo(ctx, cur, cur.WithPage(cur.Page+1), false)
}

// PrevPage moves to the preceding page. It fails with ErrNoSuchPage on page 1.
func (s *Session) PrevPage(ctx context.Context) (*Listing, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()

	cur := s.Position()
	if cur.Page <= 1 {
		return nil, fmt.Errorf("%w: already on the first page", ErrNoSuchPage)
	}
	return s.moveTo(ctx, cur, cur.WithPage(cur.Page-1), false)
}

// Back returns to the position on top of the back stack. A cached listing is
// restored without a fetch. When a refetch is needed and fails, the stack is
// left as it was.
func (s *Session) Back(ctx context.Context) (*Listing, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()

	s.mu.Lock()
	if len(s.stack) == 0 {
		s.mu.Unlock()
		return nil, ErrAtRoot
	}
	prev := s.stack[len(s.stack)-1]
	s.mu.Unlock()

	l, err := s.listing(ctx, prev)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = s.stack[:len(s.stack)-1]
	s.commitLocked(l)
	return l, nil
}

// Reload drops the cached listing for the current position and fetches it
// again. Ordinals of the old listing stop being valid.
func (s *Session) Reload(ctx context.Context) (*Listing, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()

	s.mu.Lock()
	cur := s.pos
	old, hadOld := s.cache.get(cur)
	oldRendered := s.rendered
	s.cache.drop(cur)
	s.rendered = nil
	s.mu.Unlock()

	l, err := s.listing(ctx, cur)
	if err != nil {
		// A failed reload leaves the previous page in place.
		s.mu.Lock()
		if _, ok := s.cache.get(cur); !ok && hadOld {
			s.cache.put(old)
			s.rendered = oldRendered
		}
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitLocked(l)
	return l, nil
}

// Forget drops every cached page of the given position so the next read
// refetches it. It is used when data behind a listing changes locally, such
// as the favorites shown at the root.
func (s *Session) Forget(p Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.cache.forget(p.Key()); n > 0 && s.pos.Key() == p.Key() {
		s.rendered = nil
	}
}

// Lookup runs fn, a gateway request that is not a navigation (naming a
// board, for instance), under the same busy guard and records its exchange.
// Position and cache are untouched.
func (s *Session) Lookup(ctx context.Context, fn func(context.Context) error) error {
	if !s.acquire() {
		return ErrBusy
	}
	defer s.release()

	prev := s.gw.LastExchange()
	err := fn(ctx)
	s.record(s.Position(), prev)
	return err
}

// moveTo fetches target and, on success, makes it current. push records from
// on the back stack. Nothing changes when the fetch fails.
func (s *Session) moveTo(ctx context.Context, from, target Position, push bool) (*Listing, error) {
	l, err := s.listing(ctx, target)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if push {
		s.stack = append(s.stack, from)
	}
	s.commitLocked(l)
	s.logger.Debug("navigate", "from", from.String(), "to", l.Position.String(), "depth", len(s.stack))
	return l, nil
}

func (s *Session) commitLocked(l *Listing) {
	s.pos = l.Position
	s.rendered = l
}

func (s *Session) renderedValidLocked() bool {
	if s.rendered == nil || !s.rendered.Position.Same(s.pos) {
		return false
	}
	cached, ok := s.cache.get(s.pos)
	return ok && cached == s.rendered
}

func (s *Session) acquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

func (s *Session) release() {
	s.busy.Store(false)
}

// listing returns the cached listing for p or fetches it.
func (s *Session) listing(ctx context.Context, p Position) (*Listing, error) {
	s.mu.Lock()
	if l, ok := s.cache.get(p); ok {
		s.mu.Unlock()
		return l, nil
	}
	s.mu.Unlock()

	k := keyOf(p)
	flightKey := fmt.Sprintf("%d/%d/%d/%d", k.Level, k.BoardID, k.ThreadID, k.Page)
	v, err, _ := s.flight.Do(flightKey, func() (any, error) {
		s.mu.Lock()
		if l, ok := s.cache.get(p); ok {
			s.mu.Unlock()
			return l, nil
		}
		s.mu.Unlock()
		return s.fetch(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Listing), nil
}

// fetch calls the gateway for p, records the exchange whatever the outcome,
// and caches the result on success.
func (s *Session) fetch(ctx context.Context, p Position) (*Listing, error) {
	start := s.now()
	prev := s.gw.LastExchange()
	l, err := s.fetchFromGateway(ctx, p)
	s.record(p, prev)
	if err != nil {
		s.logger.Warn("fetch failed", "position", p.String(), "error", err)
		return nil, &FetchError{Position: p, Err: err}
	}

	s.mu.Lock()
	if l.Position.Level == LevelThread && l.TotalPages == 0 {
		if total := s.cache.totalPages(l.Position.Key()); total > 0 {
			l.TotalPages = total
			l.HasNext = l.Page < total
		}
	}
	s.generation++
	l.Generation = s.generation
	l.FetchedAt = s.now()
	s.cache.put(l)
	s.mu.Unlock()

	s.logger.Debug("fetched listing",
		"position", p.String(),
		"entries", len(l.Entries),
		"has_next", l.HasNext,
		"elapsed", s.now().Sub(start))
	return l, nil
}

func (s *Session) fetchFromGateway(ctx context.Context, p Position) (*Listing, error) {
	switch p.Level {
	case LevelRoot:
		boards, err := s.gw.FetchBoardList(ctx)
		if err != nil {
			return nil, err
		}
		return boardListing(p, boards), nil
	case LevelBoard:
		page, err := s.gw.FetchThreadList(ctx, p.BoardID, p.Page)
		if err != nil {
			return nil, err
		}
		return threadListing(p, page), nil
	case LevelThread:
		page, err := s.gw.FetchThreadContent(ctx, p.BoardID, p.ThreadID, p.Page)
		if err != nil {
			return nil, err
		}
		return postListing(p, page), nil
	default:
		return nil, fmt.Errorf("unknown level %v", p.Level)
	}
}

// record stores the gateway's last exchange. A fetch the gateway answered
// without a request (the board list) leaves the record alone.
func (s *Session) record(p Position, prev forum.Exchange) {
	ex := s.gw.LastExchange()
	if ex.Same(prev) {
		return
	}
	rec := DebugRecord{
		Exchange:   ex,
		Position:   p,
		RecordedAt: s.now(),
	}
	s.mu.Lock()
	s.debug = rec
	s.mu.Unlock()

	if s.recorder != nil && !rec.Exchange.Empty() {
		if err := s.recorder.SaveExchange(rec.Exchange); err != nil {
			s.logger.Warn("persist exchange", "error", err)
		}
	}
}

func boardListing(p Position, boards []forum.Board) *Listing {
	l := &Listing{Position: p, Title: "Boards", Page: 1}
	for i := range boards {
		b := boards[i]
		l.Entries = append(l.Entries, Entry{
			Ordinal: i + 1,
			ID:      b.ID,
			Title:   b.Name,
			Kind:    KindBoard,
			Board:   &b,
		})
	}
	l.TotalPages = 1
	return l
}

func threadListing(p Position, page *forum.ThreadPage) *Listing {
	if page.BoardName != "" {
		p.BoardName = page.BoardName
	}
	l := &Listing{Position: p, Title: p.BoardLabel(), Page: p.Page, HasNext: page.HasNext}
	for i := range page.Threads {
		t := page.Threads[i]
		l.Entries = append(l.Entries, Entry{
			Ordinal: i + 1,
			ID:      t.ID,
			Title:   t.Subject,
			Kind:    KindThread,
			Thread:  &t,
		})
	}
	return l
}

func postListing(p Position, page *forum.PostPage) *Listing {
	if page.Subject != "" {
		p.ThreadSubject = page.Subject
	}
	l := &Listing{
		Position:   p,
		Title:      p.ThreadLabel(),
		Page:       p.Page,
		TotalPages: page.TotalPages,
		HasNext:    page.HasNext,
	}
	for i := range page.Posts {
		post := page.Posts[i]
		l.Entries = append(l.Entries, Entry{
			Ordinal: i + 1,
			ID:      post.ID,
			Title:   post.AuthorName,
			Kind:    KindPost,
			Post:    &post,
		})
	}
	return l
}
