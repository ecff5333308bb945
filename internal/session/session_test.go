package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/gyokusei/nga-cli/internal/forum"
	"github.com/gyokusei/nga-cli/internal/forum/forumtest"
)

// newTestGateway returns a forum with boards 1..3. Board 2 has two pages of
// threads; thread 201 has two pages of posts.
func newTestGateway() *forumtest.MockGateway {
	return forumtest.New().
		WithBoards(forumtest.Boards(3)...).
		WithThreadPage(1, forumtest.ThreadPage(1, 1, false, 101)).
		WithThreadPage(2, forumtest.ThreadPage(2, 1, true, 201, 202)).
		WithThreadPage(2, forumtest.ThreadPage(2, 2, false, 203)).
		WithPostPage(201, forumtest.PostPage(201, 1, 20, true)).
		WithPostPage(201, forumtest.PostPage(201, 2, 3, false))
}

var ignoreNames = cmpopts.IgnoreFields(Position{}, "BoardName", "ThreadSubject")

func assertPosition(t *testing.T, s *Session, want Position) {
	t.Helper()
	if diff := cmp.Diff(want, s.Position(), ignoreNames); diff != "" {
		t.Errorf("position mismatch (-want +got):\n%s", diff)
	}
}

func assertStack(t *testing.T, s *Session, want ...Position) {
	t.Helper()
	if diff := cmp.Diff(want, s.Stack(), ignoreNames, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("stack mismatch (-want +got):\n%s", diff)
	}
}

func mustListing(t *testing.T, s *Session) *Listing {
	t.Helper()
	l, err := s.CurrentListing(context.Background())
	if err != nil {
		t.Fatalf("CurrentListing() error = %v", err)
	}
	return l
}

func TestCurrentListing_Idempotent(t *testing.T) {
	gw := newTestGateway()
	s := New(gw)

	first := mustListing(t, s)
	second := mustListing(t, s)

	if first != second {
		t.Error("CurrentListing() returned different listings for the same position")
	}
	if got := gw.Calls("boards"); got != 1 {
		t.Errorf("FetchBoardList calls = %d, want 1", got)
	}
	if first.Len() != 3 {
		t.Errorf("root listing has %d entries, want 3", first.Len())
	}
	for i, e := range first.Entries {
		if e.Ordinal != i+1 {
			t.Errorf("entry %d ordinal = %d", i, e.Ordinal)
		}
		if e.Kind != KindBoard {
			t.Errorf("entry %d kind = %v, want board", i, e.Kind)
		}
	}
}

func TestCurrentListing_ConcurrentCallersShareFetch(t *testing.T) {
	gw := newTestGateway()
	release := make(chan struct{})
	gw.FetchBoardListFunc = func(ctx context.Context) ([]forum.Board, error) {
		<-release
		return forumtest.Boards(2), nil
	}
	s := New(gw)

	var wg sync.WaitGroup
	results := make([]*Listing, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := s.CurrentListing(context.Background())
			if err != nil {
				t.Errorf("CurrentListing() error = %v", err)
				return
			}
			results[i] = l
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := gw.Calls("boards"); got != 1 {
		t.Errorf("FetchBoardList calls = %d, want 1", got)
	}
	for i, l := range results {
		if l != results[0] {
			t.Errorf("result %d differs from result 0", i)
		}
	}
}

func TestEnterNextBackScenario(t *testing.T) {
	gw := newTestGateway()
	s := New(gw)
	ctx := context.Background()

	mustListing(t, s)

	if _, err := s.Enter(ctx, 2); err != nil {
		t.Fatalf("Enter(2) error = %v", err)
	}
	assertPosition(t, s, InBoard(2, 1))
	assertStack(t, s, Root())
	if got := s.Position().BoardName; got != "Board 2" {
		t.Errorf("BoardName = %q, want %q", got, "Board 2")
	}

	if _, err := s.NextPage(ctx); err != nil {
		t.Fatalf("NextPage() error = %v", err)
	}
	assertPosition(t, s, InBoard(2, 2))
	assertStack(t, s, Root())

	callsBefore := gw.TotalCalls()
	l, err := s.Back(ctx)
	if err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	assertPosition(t, s, Root())
	assertStack(t, s)
	if !l.Position.IsRoot() {
		t.Errorf("Back() listing position = %v, want root", l.Position)
	}
	if got := gw.TotalCalls(); got != callsBefore {
		t.Errorf("Back() fetched %d times, want cached restore", got-callsBefore)
	}

	if _, err := s.Back(ctx); !errors.Is(err, ErrAtRoot) {
		t.Errorf("second Back() error = %v, want ErrAtRoot", err)
	}
	assertPosition(t, s, Root())
}

func TestStackDiscipline(t *testing.T) {
	s := New(newTestGateway())
	ctx := context.Background()

	mustListing(t, s)
	if _, err := s.Enter(ctx, 2); err != nil {
		t.Fatalf("Enter(board) error = %v", err)
	}
	if _, err := s.Enter(ctx, 1); err != nil {
		t.Fatalf("Enter(thread) error = %v", err)
	}
	assertPosition(t, s, InThread(2, 201, 1))
	assertStack(t, s, Root(), InBoard(2, 1))

	if _, err := s.NextPage(ctx); err != nil {
		t.Fatalf("NextPage() error = %v", err)
	}
	assertPosition(t, s, InThread(2, 201, 2))
	assertStack(t, s, Root(), InBoard(2, 1))

	// Back from page 2 of a thread returns to the board, not to page 1.
	if _, err := s.Back(ctx); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	assertPosition(t, s, InBoard(2, 1))

	if _, err := s.Back(ctx); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	assertPosition(t, s, Root())
	assertStack(t, s)
}

func TestPageBoundaries(t *testing.T) {
	s := New(newTestGateway())
	ctx := context.Background()

	if _, err := s.PrevPage(ctx); !errors.Is(err, ErrNoSuchPage) {
		t.Errorf("PrevPage() at root error = %v, want ErrNoSuchPage", err)
	}
	if _, err := s.NextPage(ctx); !errors.Is(err, ErrNoSuchPage) {
		t.Errorf("NextPage() at root error = %v, want ErrNoSuchPage", err)
	}

	if _, err := s.EnterByID(ctx, 2, KindBoard); err != nil {
		t.Fatalf("EnterByID() error = %v", err)
	}
	if _, err := s.PrevPage(ctx); !errors.Is(err, ErrNoSuchPage) {
		t.Errorf("PrevPage() on page 1 error = %v, want ErrNoSuchPage", err)
	}
	assertPosition(t, s, InBoard(2, 1))

	if _, err := s.NextPage(ctx); err != nil {
		t.Fatalf("NextPage() error = %v", err)
	}
	if _, err := s.NextPage(ctx); !errors.Is(err, ErrNoSuchPage) {
		t.Errorf("NextPage() on last page error = %v, want ErrNoSuchPage", err)
	}
	assertPosition(t, s, InBoard(2, 2))

	if _, err := s.PrevPage(ctx); err != nil {
		t.Fatalf("PrevPage() error = %v", err)
	}
	assertPosition(t, s, InBoard(2, 1))
	assertStack(t, s, Root())
}

func TestNextPage_KeepsThreadPageCountFromEarlierPage(t *testing.T) {
	first := forumtest.PostPage(301, 1, 20, true)
	first.TotalPages = 3
	// Later pages come back without a page count.
	second := forumtest.PostPage(301, 2, 20, false)
	second.TotalPages = 0
	last := forumtest.PostPage(301, 3, 20, false)
	last.TotalPages = 0
	gw := newTestGateway().
		WithPostPage(301, first).
		WithPostPage(301, second).
		WithPostPage(301, last)
	s := New(gw)
	ctx := context.Background()

	if _, err := s.EnterByID(ctx, 2, KindBoard); err != nil {
		t.Fatalf("EnterByID(board) error = %v", err)
	}
	if _, err := s.EnterByID(ctx, 301, KindThread); err != nil {
		t.Fatalf("EnterByID(thread) error = %v", err)
	}
	l, err := s.NextPage(ctx)
	if err != nil {
		t.Fatalf("NextPage() to page 2 error = %v", err)
	}
	if l.TotalPages != 3 || !l.HasNext {
		t.Errorf("page 2: TotalPages = %d, HasNext = %v, want 3, true", l.TotalPages, l.HasNext)
	}
	if l, err = s.NextPage(ctx); err != nil {
		t.Fatalf("NextPage() to page 3 error = %v", err)
	}
	if l.HasNext {
		t.Error("page 3: HasNext = true on the last page")
	}
	if _, err := s.NextPage(ctx); !errors.Is(err, ErrNoSuchPage) {
		t.Errorf("NextPage() past the last page error = %v, want ErrNoSuchPage", err)
	}
	assertPosition(t, s, InThread(2, 301, 3))
}

func TestEnter_OutOfRangeDoesNotFetch(t *testing.T) {
	gw := forumtest.New().WithBoards(forumtest.Boards(2)...)
	s := New(gw)
	mustListing(t, s)
	before := gw.TotalCalls()

	for _, ordinal := range []int{0, 3, -1} {
		if _, err := s.Enter(context.Background(), ordinal); !errors.Is(err, ErrInvalidSelection) {
			t.Errorf("Enter(%d) error = %v, want ErrInvalidSelection", ordinal, err)
		}
	}
	if got := gw.TotalCalls(); got != before {
		t.Errorf("invalid Enter fetched %d times", got-before)
	}
	assertPosition(t, s, Root())
	assertStack(t, s)
}

func TestEnter_RequiresDisplayedListing(t *testing.T) {
	gw := newTestGateway()
	s := New(gw)
	ctx := context.Background()

	if _, err := s.Enter(ctx, 1); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("Enter() before any listing error = %v, want ErrInvalidSelection", err)
	}
	if gw.TotalCalls() != 0 {
		t.Errorf("Enter() without listing fetched %d times", gw.TotalCalls())
	}

	mustListing(t, s)
	s.Forget(Root())
	if _, err := s.Enter(ctx, 1); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("Enter() after Forget error = %v, want ErrInvalidSelection", err)
	}
	if s.Rendered() != nil {
		t.Error("Rendered() != nil after Forget")
	}
}

func TestEnter_PostsAreNotEnterable(t *testing.T) {
	s := New(newTestGateway())
	ctx := context.Background()

	if _, err := s.EnterByID(ctx, 2, KindBoard); err != nil {
		t.Fatal(err)
	}
	if _, err := s.EnterByID(ctx, 201, KindThread); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Enter(ctx, 1); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("Enter() in thread error = %v, want ErrInvalidSelection", err)
	}
}

func TestFetchFailureIsNonDestructive(t *testing.T) {
	gw := newTestGateway()
	gw.FetchThreadListFunc = func(ctx context.Context, boardID, page int) (*forum.ThreadPage, error) {
		return nil, errors.New("connection reset")
	}
	s := New(gw)
	ctx := context.Background()
	mustListing(t, s)

	_, err := s.Enter(ctx, 1)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("Enter() error = %v, want ErrFetchFailed", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Enter() error %T is not *FetchError", err)
	}
	if fe.Position.Key() != InBoard(1, 1).Key() {
		t.Errorf("FetchError.Position = %v", fe.Position)
	}

	assertPosition(t, s, Root())
	assertStack(t, s)
	if s.Rendered() == nil {
		t.Error("root listing should still be displayed after a failed Enter")
	}

	rec := s.DebugRecord()
	if rec.Exchange.Err == "" {
		t.Error("DebugRecord() did not capture the failed exchange")
	}
	if rec.Position.Key() != InBoard(1, 1).Key() {
		t.Errorf("DebugRecord().Position = %v", rec.Position)
	}

	// The board was never cached, so a retry goes back to the gateway.
	before := gw.Calls("threads")
	_, _ = s.Enter(ctx, 1)
	if gw.Calls("threads") != before+1 {
		t.Error("retry after failure did not refetch")
	}
}

func TestBack_RefetchFailureKeepsStack(t *testing.T) {
	gw := newTestGateway()
	s := New(gw, WithStart(InBoard(2, 1)))
	ctx := context.Background()

	// The root was never fetched, so Back must fetch it.
	gw.FetchBoardListFunc = func(context.Context) ([]forum.Board, error) {
		return nil, errors.New("timeout")
	}
	if _, err := s.Back(ctx); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("Back() error = %v, want ErrFetchFailed", err)
	}
	assertPosition(t, s, InBoard(2, 1))
	assertStack(t, s, Root())

	gw.FetchBoardListFunc = nil
	if _, err := s.Back(ctx); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	assertPosition(t, s, Root())
}

func TestEnterByID(t *testing.T) {
	tests := []struct {
		name    string
		start   Position
		id      int
		kind    Kind
		want    Position
		wantErr error
	}{
		{"board from root", Root(), 2, KindBoard, InBoard(2, 1), nil},
		{"board from board", InBoard(1, 1), 2, KindBoard, InBoard(2, 1), nil},
		{"thread from board", InBoard(2, 1), 201, KindThread, InThread(2, 201, 1), nil},
		{"thread from root", Root(), 201, KindThread, Root(), ErrInvalidSelection},
		{"board from thread", InThread(2, 201, 1), 1, KindBoard, InThread(2, 201, 1), ErrInvalidSelection},
		{"post kind", InBoard(2, 1), 1, KindPost, InBoard(2, 1), ErrInvalidSelection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(newTestGateway(), WithStart(tt.start))
			depth := len(s.Stack())

			_, err := s.EnterByID(context.Background(), tt.id, tt.kind)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("EnterByID() error = %v, want %v", err, tt.wantErr)
				}
				if len(s.Stack()) != depth {
					t.Errorf("stack changed on error")
				}
			} else {
				if err != nil {
					t.Fatalf("EnterByID() error = %v", err)
				}
				if len(s.Stack()) != depth+1 {
					t.Errorf("stack depth = %d, want %d", len(s.Stack()), depth+1)
				}
			}
			assertPosition(t, s, tt.want)
		})
	}
}

func TestBusyRejectsOverlappingNavigation(t *testing.T) {
	gw := newTestGateway()
	started := make(chan struct{})
	release := make(chan struct{})
	gw.FetchThreadListFunc = func(ctx context.Context, boardID, page int) (*forum.ThreadPage, error) {
		close(started)
		<-release
		return forumtest.ThreadPage(boardID, page, false, 1), nil
	}
	s := New(gw)
	ctx := context.Background()
	mustListing(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.Enter(ctx, 1)
		done <- err
	}()
	<-started

	if _, err := s.Back(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("Back() during Enter error = %v, want ErrBusy", err)
	}
	if _, err := s.EnterByID(ctx, 3, KindBoard); !errors.Is(err, ErrBusy) {
		t.Errorf("EnterByID() during Enter error = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	assertPosition(t, s, InBoard(1, 1))

	// The lock is released once the first operation finishes.
	if _, err := s.Back(ctx); err != nil {
		t.Errorf("Back() after Enter error = %v", err)
	}
}

func TestCancelledFetchLeavesPosition(t *testing.T) {
	gw := newTestGateway()
	gw.FetchThreadListFunc = func(ctx context.Context, boardID, page int) (*forum.ThreadPage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := New(gw)
	mustListing(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := s.Enter(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Enter() error = %v, want context.Canceled", err)
	}
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("Enter() error = %v, want ErrFetchFailed", err)
	}
	assertPosition(t, s, Root())
	assertStack(t, s)
}

func TestReload(t *testing.T) {
	gw := newTestGateway()
	s := New(gw)
	ctx := context.Background()

	first := mustListing(t, s)
	second, err := s.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if gw.Calls("boards") != 2 {
		t.Errorf("FetchBoardList calls = %d, want 2", gw.Calls("boards"))
	}
	if second.Generation <= first.Generation {
		t.Errorf("Generation = %d, want > %d", second.Generation, first.Generation)
	}
	if s.Rendered() != second {
		t.Error("reloaded listing is not the displayed one")
	}

	gw.FetchBoardListFunc = func(context.Context) ([]forum.Board, error) {
		return nil, errors.New("down")
	}
	if _, err := s.Reload(ctx); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("Reload() error = %v, want ErrFetchFailed", err)
	}
	cached, ok := s.Cached()
	if !ok || cached != second {
		t.Error("failed Reload() discarded the cached listing")
	}
	if _, err := s.Enter(ctx, 1); err != nil {
		t.Errorf("Enter() after failed Reload() error = %v", err)
	}
}

type recorderFunc func(forum.Exchange) error

func (f recorderFunc) SaveExchange(e forum.Exchange) error { return f(e) }

func TestDebugRecordUpdatedOnEveryFetch(t *testing.T) {
	gw := newTestGateway()
	var saved []forum.Exchange
	s := New(gw, WithRecorder(recorderFunc(func(e forum.Exchange) error {
		saved = append(saved, e)
		return nil
	})))
	ctx := context.Background()

	if !s.DebugRecord().Exchange.Empty() {
		t.Error("DebugRecord() not empty before any fetch")
	}

	mustListing(t, s)
	if _, err := s.Enter(ctx, 2); err != nil {
		t.Fatal(err)
	}

	rec := s.DebugRecord()
	if rec.Exchange.Request == nil || rec.Exchange.Request.Params.Get("fid") != "2" {
		t.Errorf("DebugRecord() request = %+v, want thread list of fid 2", rec.Exchange.Request)
	}
	if rec.Exchange.Response == nil || rec.Exchange.Response.Status != 200 {
		t.Errorf("DebugRecord() response = %+v", rec.Exchange.Response)
	}
	if len(saved) != 2 {
		t.Errorf("recorder saw %d exchanges, want 2", len(saved))
	}

	// Cache hits do not overwrite the record.
	if _, err := s.Back(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.DebugRecord().Exchange.Request.Params.Get("fid"); got != "2" {
		t.Errorf("cached Back() replaced DebugRecord (fid=%q)", got)
	}
}

func TestDebugRecordSkipsFetchesWithoutRequest(t *testing.T) {
	gw := newTestGateway()
	gw.LocalBoards = true
	var saved []forum.Exchange
	s := New(gw, WithRecorder(recorderFunc(func(e forum.Exchange) error {
		saved = append(saved, e)
		return nil
	})))
	ctx := context.Background()

	mustListing(t, s)
	if !s.DebugRecord().Exchange.Empty() || len(saved) != 0 {
		t.Fatalf("board list without a request was recorded: %+v, saved %d", s.DebugRecord(), len(saved))
	}

	if _, err := s.Enter(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Back(ctx); err != nil {
		t.Fatal(err)
	}
	s.Forget(Root())
	mustListing(t, s)

	rec := s.DebugRecord()
	if rec.Position.Level != LevelBoard || rec.Exchange.Request.Params.Get("fid") != "2" {
		t.Errorf("DebugRecord() = %+v at %v, want the thread list of fid 2", rec.Exchange.Request, rec.Position)
	}
	if len(saved) != 1 {
		t.Errorf("recorder saw %d exchanges, want 1", len(saved))
	}
	if n := gw.Calls("boards"); n != 2 {
		t.Errorf("board list calls = %d, want 2", n)
	}
}

func TestLookupRecordsExchangeAndRespectsBusy(t *testing.T) {
	gw := newTestGateway()
	var saved []forum.Exchange
	s := New(gw, WithRecorder(recorderFunc(func(e forum.Exchange) error {
		saved = append(saved, e)
		return nil
	})))
	ctx := context.Background()

	err := s.Lookup(ctx, func(ctx context.Context) error {
		_, err := gw.FetchThreadList(ctx, 1, 1)
		return err
	})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	rec := s.DebugRecord()
	if rec.Exchange.Request == nil || rec.Exchange.Request.Params.Get("fid") != "1" {
		t.Errorf("DebugRecord() request = %+v, want the lookup of fid 1", rec.Exchange.Request)
	}
	if len(saved) != 1 {
		t.Errorf("recorder saw %d exchanges, want 1", len(saved))
	}
	assertPosition(t, s, Root())
	assertStack(t, s)

	// A lookup inside a lookup is an overlapping operation.
	err = s.Lookup(ctx, func(ctx context.Context) error {
		return s.Lookup(ctx, func(context.Context) error { return nil })
	})
	if !errors.Is(err, ErrBusy) {
		t.Errorf("nested Lookup() error = %v, want ErrBusy", err)
	}
}

func TestListingTitlesAndNames(t *testing.T) {
	s := New(newTestGateway())
	ctx := context.Background()

	if _, err := s.EnterByID(ctx, 2, KindBoard); err != nil {
		t.Fatal(err)
	}
	if got := s.Position().BoardName; got != "Board 2" {
		t.Errorf("BoardName after EnterByID = %q, want name from listing", got)
	}
	l, err := s.Enter(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if l.Title != "Thread 201" {
		t.Errorf("thread listing title = %q", l.Title)
	}
	if l.TotalPages != 2 || !l.HasNext {
		t.Errorf("TotalPages = %d, HasNext = %v", l.TotalPages, l.HasNext)
	}
	if l.Entries[0].Kind != KindPost || l.Entries[0].Post == nil {
		t.Errorf("first entry = %+v, want post", l.Entries[0])
	}
	if l.Enterable() {
		t.Error("post listing reports Enterable")
	}
}
