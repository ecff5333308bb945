// Package forum defines the records exchanged with the remote forum and the
// Gateway interface that fetches them.
package forum

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Board is a forum section (NGA calls it a "fid").
type Board struct {
	ID   int
	Name string
}

// Thread is one row of a board's thread list.
type Thread struct {
	ID        int
	BoardID   int
	Subject   string
	Author    string
	Replies   int
	PostDate  time.Time
	LastPost  time.Time
	TitleFont string // raw styling hint, empty when absent
}

// Post is one floor of a thread.
type Post struct {
	ID         int
	Floor      int // 0 is the opening post
	AuthorID   int
	AuthorName string
	Signature  string
	PostDate   time.Time
	Content    string // BBCode as served
}

// ThreadPage is one page of a board's thread list.
type ThreadPage struct {
	BoardName string
	Threads   []Thread
	Page      int
	HasNext   bool
}

// PostPage is one page of a thread.
type PostPage struct {
	Subject    string
	Posts      []Post
	Page       int
	TotalPages int
	HasNext    bool
}

// Request is the recorded form of an outgoing HTTP request.
// Header never contains the Cookie header.
type Request struct {
	Method string
	URL    string
	Params url.Values
	Header http.Header
	SentAt time.Time
}

// Response is the recorded form of an HTTP response.
type Response struct {
	Status     int
	Header     http.Header
	Body       string // decoded to UTF-8
	ReceivedAt time.Time
}

// Exchange is the last request/response pair a Gateway produced. Response is
// nil when the request failed before a response arrived.
type Exchange struct {
	Request  *Request
	Response *Response
	Err      string
}

// Empty reports whether nothing has been recorded.
func (e Exchange) Empty() bool {
	return e.Request == nil && e.Response == nil && e.Err == ""
}

// Same reports whether e and o are the same recorded exchange.
func (e Exchange) Same(o Exchange) bool {
	return e.Request == o.Request && e.Response == o.Response && e.Err == o.Err
}

// Gateway fetches listings from the forum. Implementations must be safe for
// use from one goroutine at a time; the session serialises calls.
type Gateway interface {
	// FetchBoardList returns the boards shown at the root.
	FetchBoardList(ctx context.Context) ([]Board, error)

	// FetchThreadList returns page (1-based) of a board's threads.
	FetchThreadList(ctx context.Context, boardID, page int) (*ThreadPage, error)

	// FetchThreadContent returns page (1-based) of a thread's posts.
	FetchThreadContent(ctx context.Context, boardID, threadID, page int) (*PostPage, error)

	// LastExchange returns the most recent recorded exchange.
	LastExchange() Exchange
}
