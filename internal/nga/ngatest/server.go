// Package ngatest provides a fake NGA forum server for tests.
package ngatest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// Cookie is a cookie header the fake server accepts.
const Cookie = "ngaPassportUid=42; ngaPassportCid=secret"

// Topic is a thread as served in a board listing.
type Topic struct {
	TID      int
	Subject  any // the forum sometimes sends non-strings
	Author   string
	Replies  int
	PostDate int64
	LastPost int64
}

// Reply is a post as served in a thread page.
type Reply struct {
	PID      int
	Floor    int
	AuthorID int
	Date     int64
	Content  string
}

// User is an entry of a thread page's user table.
type User struct {
	Name      string
	Signature string
}

// Board is a board with all of its threads, served 35 per page by default.
type Board struct {
	Name    string
	Topics  []Topic
	PerPage int
}

// Thread is a thread with all of its posts, served 20 per page by default.
type Thread struct {
	Subject string
	Replies []Reply
	PerPage int
	// CountsOnFirstPage leaves __ROWS and __T.replies out of every page but
	// the first, as the forum does for some threads.
	CountsOnFirstPage bool
}

// Server is an httptest server speaking the subset of the forum's API the
// client uses. Configure it before issuing requests.
type Server struct {
	*httptest.Server

	Username string
	Boards   map[int]*Board
	Threads  map[int]*Thread
	Users    map[int]User

	// GBK serves every body GBK-encoded, as older forum pages are.
	GBK bool
	// JSONP wraps JSON bodies in the window.script_muti_get_var_store= prefix.
	JSONP bool
	// ListAsObject serves __T/__R as objects keyed "0".."n" instead of arrays.
	ListAsObject bool

	mu       sync.Mutex
	failures []int
	requests []*http.Request
}

// New starts a server. It is closed when the test ends.
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		Username: "测试用户",
		Boards:   make(map[int]*Board),
		Threads:  make(map[int]*Thread),
		Users:    make(map[int]User),
		JSONP:    true,
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.recordAndFail)
	r.Get("/thread.php", s.handleThreadList)
	r.Get("/read.php", s.handleRead)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// FailNext makes the next len(codes) requests fail with the given statuses.
func (s *Server) FailNext(codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, codes...)
}

// Requests returns every request received so far.
func (s *Server) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*http.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) recordAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Clone(r.Context()))
		var code int
		if len(s.failures) > 0 {
			code = s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()
		if code != 0 {
			http.Error(w, http.StatusText(code), code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggedIn(r *http.Request) bool {
	uid, err := r.Cookie("ngaPassportUid")
	if err != nil || uid.Value == "" {
		return false
	}
	cid, err := r.Cookie("ngaPassportCid")
	return err == nil && cid.Value != ""
}

func (s *Server) handleThreadList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fid, _ := strconv.Atoi(q.Get("fid"))
	if q.Get("__output") == "" {
		s.serveLoginPage(w, r)
		return
	}
	if !loggedIn(r) {
		s.writeJSON(w, map[string]any{"error": map[string]string{"0": "你需要登录"}})
		return
	}
	b, ok := s.Boards[fid]
	if !ok {
		s.writeJSON(w, map[string]any{"error": []string{"版面不存在"}})
		return
	}
	page := pageParam(q.Get("page"))
	perPage := b.PerPage
	if perPage == 0 {
		perPage = 35
	}
	lo, hi := window(len(b.Topics), page, perPage)
	topics := make([]any, 0, hi-lo)
	for _, t := range b.Topics[lo:hi] {
		topics = append(topics, map[string]any{
			"tid":      t.TID,
			"fid":      strconv.Itoa(fid),
			"subject":  t.Subject,
			"author":   t.Author,
			"replies":  t.Replies,
			"postdate": t.PostDate,
			"lastpost": t.LastPost,
		})
	}
	s.writeJSON(w, map[string]any{"data": map[string]any{
		"__F":            map[string]any{"fid": fid, "name": b.Name},
		"__T":            s.list(topics),
		"__ROWS":         len(b.Topics),
		"__T__ROWS_PAGE": perPage,
	}})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !loggedIn(r) {
		s.writeJSON(w, map[string]any{"error": "你需要登录"})
		return
	}
	tid, _ := strconv.Atoi(q.Get("tid"))
	th, ok := s.Threads[tid]
	if !ok {
		s.writeJSON(w, map[string]any{"error": []string{"帖子不存在"}})
		return
	}
	page := pageParam(q.Get("page"))
	perPage := th.PerPage
	if perPage == 0 {
		perPage = 20
	}
	lo, hi := window(len(th.Replies), page, perPage)
	replies := make([]any, 0, hi-lo)
	users := map[string]any{
		// non-user members the real forum mixes into __U
		"__GROUPS": map[string]any{"1": []string{"x"}},
	}
	for _, rp := range th.Replies[lo:hi] {
		replies = append(replies, map[string]any{
			"pid":               rp.PID,
			"lou":               rp.Floor,
			"authorid":          rp.AuthorID,
			"postdatetimestamp": rp.Date,
			"content":           rp.Content,
		})
		if u, ok := s.Users[rp.AuthorID]; ok {
			users[strconv.Itoa(rp.AuthorID)] = map[string]any{
				"uid":       rp.AuthorID,
				"username":  u.Name,
				"signature": u.Signature,
			}
		}
	}
	topic := map[string]any{"tid": tid, "subject": th.Subject, "replies": len(th.Replies) - 1}
	data := map[string]any{
		"__T":            topic,
		"__R":            s.list(replies),
		"__U":            users,
		"__ROWS":         len(th.Replies),
		"__R__ROWS_PAGE": perPage,
	}
	if th.CountsOnFirstPage && page > 1 {
		delete(topic, "replies")
		delete(data, "__ROWS")
	}
	s.writeJSON(w, map[string]any{"data": data})
}

func (s *Server) serveLoginPage(w http.ResponseWriter, r *http.Request) {
	script := "window.__U = {};"
	if loggedIn(r) {
		uid, _ := r.Cookie("ngaPassportUid")
		script = fmt.Sprintf(`window.__U = {"uid":%s,"username":%q};`, uid.Value, s.Username)
	}
	page := "<html><head><title>NGA</title><script>var __CFG = 1;</script>" +
		"<script>" + script + "</script></head><body>网事杂谈</body></html>"
	w.Header().Set("Content-Type", "text/html")
	s.write(w, page)
}

func (s *Server) list(items []any) any {
	if !s.ListAsObject {
		return items
	}
	obj := make(map[string]any, len(items))
	for i, it := range items {
		obj[strconv.Itoa(i)] = it
	}
	return obj
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	body := string(b)
	if s.JSONP {
		body = "window.script_muti_get_var_store=" + body + ";"
	}
	w.Header().Set("Content-Type", "application/json")
	s.write(w, body)
}

func (s *Server) write(w http.ResponseWriter, body string) {
	if s.GBK {
		enc, err := simplifiedchinese.GBK.NewEncoder().String(body)
		if err == nil {
			body = enc
		}
	}
	_, _ = w.Write([]byte(body))
}

func pageParam(v string) int {
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 {
		return 1
	}
	return p
}

func window(n, page, perPage int) (int, int) {
	lo := (page - 1) * perPage
	if lo > n {
		lo = n
	}
	hi := lo + perPage
	if hi > n {
		hi = n
	}
	return lo, hi
}
