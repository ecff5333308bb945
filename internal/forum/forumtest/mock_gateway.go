// Package forumtest provides shared test doubles for the forum.Gateway interface.
package forumtest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gyokusei/nga-cli/internal/forum"
)

// MockGateway implements forum.Gateway for testing. Boards, Threads and Posts
// hold canned data; the optional Func fields override a method per-test.
// Every call is counted and recorded as an exchange.
type MockGateway struct {
	Boards  []forum.Board
	Threads map[int]map[int]*forum.ThreadPage // boardID -> page -> listing
	Posts   map[int]map[int]*forum.PostPage   // threadID -> page -> listing

	FetchBoardListFunc     func(context.Context) ([]forum.Board, error)
	FetchThreadListFunc    func(context.Context, int, int) (*forum.ThreadPage, error)
	FetchThreadContentFunc func(context.Context, int, int, int) (*forum.PostPage, error)

	// LocalBoards makes FetchBoardList answer without recording an
	// exchange, like a client serving the board list from configuration.
	LocalBoards bool

	mu       sync.Mutex
	calls    map[string]int
	last     forum.Exchange
	sequence int
}

// Compile-time check.
var _ forum.Gateway = (*MockGateway)(nil)

// New returns an empty MockGateway.
func New() *MockGateway {
	return &MockGateway{
		Threads: make(map[int]map[int]*forum.ThreadPage),
		Posts:   make(map[int]map[int]*forum.PostPage),
	}
}

// WithBoards sets the root board list.
func (m *MockGateway) WithBoards(boards ...forum.Board) *MockGateway {
	m.Boards = boards
	return m
}

// WithThreadPage registers a thread list page for a board.
func (m *MockGateway) WithThreadPage(boardID int, p *forum.ThreadPage) *MockGateway {
	if m.Threads[boardID] == nil {
		m.Threads[boardID] = make(map[int]*forum.ThreadPage)
	}
	m.Threads[boardID][p.Page] = p
	return m
}

// WithPostPage registers a page of posts for a thread.
func (m *MockGateway) WithPostPage(threadID int, p *forum.PostPage) *MockGateway {
	if m.Posts[threadID] == nil {
		m.Posts[threadID] = make(map[int]*forum.PostPage)
	}
	m.Posts[threadID][p.Page] = p
	return m
}

// Calls returns how many times a method ran ("boards", "threads", "posts").
func (m *MockGateway) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// TotalCalls returns the number of fetches across all methods.
func (m *MockGateway) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *MockGateway) FetchBoardList(ctx context.Context) ([]forum.Board, error) {
	if m.LocalBoards {
		m.mu.Lock()
		if m.calls == nil {
			m.calls = make(map[string]int)
		}
		m.calls["boards"]++
		m.mu.Unlock()
		return m.Boards, nil
	}
	m.record("boards", "/", nil)
	var (
		boards []forum.Board
		err    error
	)
	if m.FetchBoardListFunc != nil {
		boards, err = m.FetchBoardListFunc(ctx)
	} else {
		boards = m.Boards
	}
	m.finish(err)
	return boards, err
}

func (m *MockGateway) FetchThreadList(ctx context.Context, boardID, page int) (*forum.ThreadPage, error) {
	m.record("threads", "/thread.php", url.Values{
		"fid":  {strconv.Itoa(boardID)},
		"page": {strconv.Itoa(page)},
	})
	var (
		p   *forum.ThreadPage
		err error
	)
	switch {
	case m.FetchThreadListFunc != nil:
		p, err = m.FetchThreadListFunc(ctx, boardID, page)
	case m.Threads[boardID][page] != nil:
		p = m.Threads[boardID][page]
	default:
		err = fmt.Errorf("board %d page %d not found", boardID, page)
	}
	m.finish(err)
	return p, err
}

func (m *MockGateway) FetchThreadContent(ctx context.Context, boardID, threadID, page int) (*forum.PostPage, error) {
	m.record("posts", "/read.php", url.Values{
		"tid":  {strconv.Itoa(threadID)},
		"page": {strconv.Itoa(page)},
	})
	var (
		p   *forum.PostPage
		err error
	)
	switch {
	case m.FetchThreadContentFunc != nil:
		p, err = m.FetchThreadContentFunc(ctx, boardID, threadID, page)
	case m.Posts[threadID][page] != nil:
		p = m.Posts[threadID][page]
	default:
		err = fmt.Errorf("thread %d page %d not found", threadID, page)
	}
	m.finish(err)
	return p, err
}

func (m *MockGateway) LastExchange() forum.Exchange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *MockGateway) record(method, path string, params url.Values) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
	m.sequence++
	m.last = forum.Exchange{
		Request: &forum.Request{
			Method: http.MethodGet,
			URL:    "https://bbs.nga.test" + path,
			Params: params,
			Header: http.Header{"X-Sequence": {strconv.Itoa(m.sequence)}},
		},
	}
}

func (m *MockGateway) finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.last.Err = err.Error()
		return
	}
	m.last.Response = &forum.Response{Status: http.StatusOK, Body: "{}"}
}

// Boards builds a board list with ids 1..n named "Board 1".."Board n".
func Boards(n int) []forum.Board {
	out := make([]forum.Board, n)
	for i := range out {
		out[i] = forum.Board{ID: i + 1, Name: fmt.Sprintf("Board %d", i+1)}
	}
	return out
}

// ThreadPage builds a page with the given thread ids.
func ThreadPage(boardID, page int, hasNext bool, threadIDs ...int) *forum.ThreadPage {
	p := &forum.ThreadPage{BoardName: fmt.Sprintf("Board %d", boardID), Page: page, HasNext: hasNext}
	for _, id := range threadIDs {
		p.Threads = append(p.Threads, forum.Thread{
			ID:      id,
			BoardID: boardID,
			Subject: fmt.Sprintf("Thread %d", id),
			Author:  "author",
		})
	}
	return p
}

// PostPage builds a page of n posts starting at the floor implied by page.
func PostPage(threadID, page, n int, hasNext bool) *forum.PostPage {
	p := &forum.PostPage{Subject: fmt.Sprintf("Thread %d", threadID), Page: page, HasNext: hasNext, TotalPages: page}
	if hasNext {
		p.TotalPages = page + 1
	}
	for i := 0; i < n; i++ {
		floor := (page-1)*20 + i
		p.Posts = append(p.Posts, forum.Post{
			ID:         threadID*1000 + floor,
			Floor:      floor,
			AuthorName: "author",
			Content:    fmt.Sprintf("post %d", floor),
		})
	}
	return p
}
