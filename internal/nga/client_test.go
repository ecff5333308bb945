package nga

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gyokusei/nga-cli/internal/forum"
	"github.com/gyokusei/nga-cli/internal/nga/ngatest"
)

func newTestClient(t *testing.T, srv *ngatest.Server, cookie string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:   srv.URL,
		Cookie:    cookie,
		Favorites: []forum.Board{{ID: -7, Name: "网事杂谈"}, {ID: 436, Name: "艾泽拉斯议事厅"}},
	}, WithBackoff(func(int) time.Duration { return time.Millisecond }))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func newTestServer(t *testing.T) *ngatest.Server {
	t.Helper()
	srv := ngatest.New(t)
	srv.Boards[-7] = &ngatest.Board{
		Name:    "网事杂谈",
		PerPage: 2,
		Topics: []ngatest.Topic{
			{TID: 1, Subject: "旧帖", Author: "a", LastPost: 100},
			{TID: 2, Subject: "新帖", Author: "b", LastPost: 300},
			{TID: 3, Subject: true, Author: "c", LastPost: 200},
		},
	}
	srv.Users[10] = ngatest.User{Name: "楼主", Signature: "[b]sig[/b]"}
	srv.Users[11] = ngatest.User{Name: "路人"}
	srv.Threads[2] = &ngatest.Thread{
		Subject: "新帖",
		PerPage: 2,
		Replies: []ngatest.Reply{
			{PID: 0, Floor: 0, AuthorID: 10, Date: 1700000000, Content: "正文"},
			{PID: 21, Floor: 1, AuthorID: 11, Content: "沙发"},
			{PID: 22, Floor: 2, AuthorID: 12, Content: "板凳"},
		},
	}
	return srv
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad scheme", Config{BaseURL: "ftp://bbs.nga.cn"}},
		{"no host", Config{BaseURL: "https://"}},
		{"bad proxy", Config{HTTPSProxy: "://nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}

	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New(default) error = %v", err)
	}
	if c.baseURL.String() != DefaultBaseURL {
		t.Errorf("baseURL = %s, want %s", c.baseURL, DefaultBaseURL)
	}
}

func TestFetchBoardList_ReturnsFavoritesWithoutRequest(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv, ngatest.Cookie)

	boards, err := c.FetchBoardList(context.Background())
	if err != nil {
		t.Fatalf("FetchBoardList() error = %v", err)
	}
	want := []forum.Board{{ID: -7, Name: "网事杂谈"}, {ID: 436, Name: "艾泽拉斯议事厅"}}
	if diff := cmp.Diff(want, boards); diff != "" {
		t.Errorf("boards mismatch (-want +got):\n%s", diff)
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("FetchBoardList() made %d requests", n)
	}
}

func TestSetFavoritesReplacesBoardList(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv, ngatest.Cookie)

	favs := []forum.Board{{ID: 7, Name: "议事厅"}}
	c.SetFavorites(favs)
	favs[0].Name = "changed"

	boards, err := c.FetchBoardList(context.Background())
	if err != nil {
		t.Fatalf("FetchBoardList() error = %v", err)
	}
	if diff := cmp.Diff([]forum.Board{{ID: 7, Name: "议事厅"}}, boards); diff != "" {
		t.Errorf("boards mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchThreadList(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(*ngatest.Server)
	}{
		{"json array", func(s *ngatest.Server) { s.JSONP = false }},
		{"jsonp object", func(s *ngatest.Server) { s.ListAsObject = true }},
		{"gbk", func(s *ngatest.Server) { s.GBK = true }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t)
			tc.setup(srv)
			c := newTestClient(t, srv, ngatest.Cookie)

			page, err := c.FetchThreadList(context.Background(), -7, 1)
			if err != nil {
				t.Fatalf("FetchThreadList() error = %v", err)
			}
			if page.BoardName != "网事杂谈" {
				t.Errorf("BoardName = %q", page.BoardName)
			}
			if !page.HasNext {
				t.Error("HasNext = false on page 1 of 2")
			}
			var ids []int
			for _, th := range page.Threads {
				ids = append(ids, th.ID)
			}
			// Sorted by last reply, newest first.
			if diff := cmp.Diff([]int{2, 1}, ids); diff != "" {
				t.Errorf("thread ids (-want +got):\n%s", diff)
			}
			if page.Threads[0].Subject != "新帖" || page.Threads[0].BoardID != -7 {
				t.Errorf("first thread = %+v", page.Threads[0])
			}

			page2, err := c.FetchThreadList(context.Background(), -7, 2)
			if err != nil {
				t.Fatalf("FetchThreadList(page 2) error = %v", err)
			}
			if page2.HasNext {
				t.Error("HasNext = true on last page")
			}
			if len(page2.Threads) != 1 || page2.Threads[0].Subject != "true" {
				t.Errorf("page 2 threads = %+v, want boolean subject as text", page2.Threads)
			}
		})
	}
}

func TestFetchThreadContent(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv, ngatest.Cookie)

	page, err := c.FetchThreadContent(context.Background(), -7, 2, 1)
	if err != nil {
		t.Fatalf("FetchThreadContent() error = %v", err)
	}
	if page.Subject != "新帖" {
		t.Errorf("Subject = %q", page.Subject)
	}
	if page.TotalPages != 2 || !page.HasNext {
		t.Errorf("TotalPages = %d, HasNext = %v, want 2, true", page.TotalPages, page.HasNext)
	}
	if len(page.Posts) != 2 {
		t.Fatalf("len(Posts) = %d, want 2", len(page.Posts))
	}
	op := page.Posts[0]
	if op.Floor != 0 || op.AuthorName != "楼主" || op.Signature != "[b]sig[/b]" {
		t.Errorf("opening post = %+v", op)
	}
	if !op.PostDate.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("PostDate = %v", op.PostDate)
	}

	last, err := c.FetchThreadContent(context.Background(), -7, 2, 2)
	if err != nil {
		t.Fatalf("FetchThreadContent(page 2) error = %v", err)
	}
	if last.HasNext {
		t.Error("HasNext = true on last page")
	}
	// User 12 is missing from the user table.
	if got := last.Posts[0].AuthorName; got != "#12" {
		t.Errorf("unknown author name = %q, want #12", got)
	}
}

func TestFetchThreadContent_CountsOnlyOnFirstPage(t *testing.T) {
	srv := newTestServer(t)
	th := &ngatest.Thread{Subject: "长帖", PerPage: 2, CountsOnFirstPage: true}
	for i := 0; i < 9; i++ {
		th.Replies = append(th.Replies, ngatest.Reply{PID: 100 + i, Floor: i, AuthorID: 11, Content: "回复"})
	}
	srv.Threads[5] = th
	c := newTestClient(t, srv, ngatest.Cookie)
	ctx := context.Background()

	first, err := c.FetchThreadContent(ctx, -7, 5, 1)
	if err != nil {
		t.Fatalf("FetchThreadContent(page 1) error = %v", err)
	}
	if first.TotalPages != 5 || !first.HasNext {
		t.Errorf("page 1: TotalPages = %d, HasNext = %v, want 5, true", first.TotalPages, first.HasNext)
	}

	second, err := c.FetchThreadContent(ctx, -7, 5, 2)
	if err != nil {
		t.Fatalf("FetchThreadContent(page 2) error = %v", err)
	}
	if second.TotalPages != 0 || !second.HasNext {
		t.Errorf("page 2: TotalPages = %d, HasNext = %v, want 0 (unknown), true", second.TotalPages, second.HasNext)
	}

	last, err := c.FetchThreadContent(ctx, -7, 5, 5)
	if err != nil {
		t.Fatalf("FetchThreadContent(page 5) error = %v", err)
	}
	if last.HasNext {
		t.Error("page 5: HasNext = true on a short last page")
	}
}

func TestRequestsCarryHeadersAndCookie(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv, ngatest.Cookie)

	if _, err := c.FetchThreadList(context.Background(), -7, 1); err != nil {
		t.Fatal(err)
	}
	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	r := reqs[0]
	if got := r.Header.Get("User-Agent"); got != userAgent {
		t.Errorf("User-Agent = %q", got)
	}
	if got := r.Header.Get("X-Requested-With"); got != "XMLHttpRequest" {
		t.Errorf("X-Requested-With = %q", got)
	}
	if got := r.URL.Query().Get("__output"); got != "11" {
		t.Errorf("__output = %q", got)
	}
	if ck, err := r.Cookie("ngaPassportCid"); err != nil || ck.Value != "secret" {
		t.Errorf("ngaPassportCid cookie = %v, %v", ck, err)
	}
}

func TestLastExchangeOmitsCookie(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv, ngatest.Cookie)

	if !c.LastExchange().Empty() {
		t.Error("LastExchange() not empty before any request")
	}
	if _, err := c.FetchThreadList(context.Background(), -7, 1); err != nil {
		t.Fatal(err)
	}
	ex := c.LastExchange()
	if ex.Request == nil || ex.Response == nil {
		t.Fatalf("LastExchange() = %+v", ex)
	}
	if ex.Request.Header.Get("Cookie") != "" {
		t.Error("recorded request contains a Cookie header")
	}
	if ex.Request.Params.Get("fid") != "-7" {
		t.Errorf("recorded params = %v", ex.Request.Params)
	}
	if ex.Response.Status != http.StatusOK {
		t.Errorf("recorded status = %d", ex.Response.Status)
	}
	if !strings.Contains(ex.Response.Body, "网事杂谈") {
		t.Errorf("recorded body missing board name: %q", ex.Response.Body)
	}
}

func TestAPIErrorIsReported(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv, "ngaPassportUid=1")

	_, err := c.FetchThreadList(context.Background(), -7, 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("FetchThreadList() error = %v, want *APIError", err)
	}
	if apiErr.Message != "你需要登录" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if c.LastExchange().Err == "" {
		t.Error("API error not attached to the recorded exchange")
	}

	c = newTestClient(t, srv, ngatest.Cookie)
	if _, err := c.FetchThreadContent(context.Background(), -7, 999, 1); !errors.As(err, &apiErr) {
		t.Errorf("missing thread error = %v, want *APIError", err)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv, ngatest.Cookie)

	srv.FailNext(http.StatusBadGateway, http.StatusServiceUnavailable)
	if _, err := c.FetchThreadList(context.Background(), -7, 1); err != nil {
		t.Fatalf("FetchThreadList() error = %v, want success after retries", err)
	}
	if n := len(srv.Requests()); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}

	srv.FailNext(500, 500, 500)
	if _, err := c.FetchThreadList(context.Background(), -7, 1); err == nil {
		t.Error("FetchThreadList() error = nil after exhausting retries")
	}

	srv.FailNext(http.StatusForbidden)
	_, err := c.FetchThreadList(context.Background(), -7, 1)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Errorf("error = %v, want 403 StatusError without retry", err)
	}
}

func TestCancelledContext(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv, ngatest.Cookie)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FetchThreadList(ctx, -7, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if _, err := c.FetchBoardList(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchBoardList error = %v, want context.Canceled", err)
	}
}

func TestFetchBoardInfo(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv, ngatest.Cookie)

	b, err := c.FetchBoardInfo(context.Background(), -7)
	if err != nil {
		t.Fatalf("FetchBoardInfo() error = %v", err)
	}
	if b != (forum.Board{ID: -7, Name: "网事杂谈"}) {
		t.Errorf("FetchBoardInfo() = %+v", b)
	}
	if _, err := c.FetchBoardInfo(context.Background(), 12345); err == nil {
		t.Error("FetchBoardInfo(unknown) error = nil")
	}
}

func TestVerifyLogin(t *testing.T) {
	srv := newTestServer(t)
	srv.GBK = true

	u, err := newTestClient(t, srv, ngatest.Cookie).VerifyLogin(context.Background())
	if err != nil {
		t.Fatalf("VerifyLogin() error = %v", err)
	}
	if u.UID != 42 || u.Username != "测试用户" {
		t.Errorf("VerifyLogin() = %+v", u)
	}

	if _, err := newTestClient(t, srv, "").VerifyLogin(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("anonymous VerifyLogin() error = %v, want ErrNotLoggedIn", err)
	}
}
