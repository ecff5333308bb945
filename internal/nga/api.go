package nga

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gyokusei/nga-cli/internal/forum"
)

const (
	jsonpPrefix = "window.script_muti_get_var_store="

	defaultPostsPerPage   = 20
	defaultThreadsPerPage = 35
)

// APIError is an error message returned by the forum inside a 200 response,
// for example when a board is restricted or the login expired.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "forum error: " + e.Message
}

// FetchBoardList returns the configured favorites. The forum has no index
// of boards in its JSON API, so the root is the user's own board list and
// no request is made.
func (c *Client) FetchBoardList(ctx context.Context) ([]forum.Board, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]forum.Board, len(c.favorites))
	copy(out, c.favorites)
	return out, nil
}

// SetFavorites replaces the board list returned by FetchBoardList.
func (c *Client) SetFavorites(boards []forum.Board) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.favorites = append([]forum.Board(nil), boards...)
}

// FetchThreadList returns one page of a board's threads, newest reply first.
func (c *Client) FetchThreadList(ctx context.Context, boardID, page int) (*forum.ThreadPage, error) {
	var data threadListData
	if err := c.fetchData(ctx, "/thread.php", queryParams("fid", boardID, page), &data); err != nil {
		return nil, err
	}

	threads := make([]forum.Thread, 0, len(data.Topics))
	for _, t := range data.Topics {
		threads = append(threads, t.toThread(boardID))
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastPost.After(threads[j].LastPost)
	})

	perPage := int(data.RowsPerPage)
	if perPage <= 0 {
		perPage = defaultThreadsPerPage
	}
	hasNext := len(threads) >= perPage
	if data.Rows > 0 {
		hasNext = page*perPage < int(data.Rows)
	}

	return &forum.ThreadPage{
		BoardName: string(data.Forum.Name),
		Threads:   threads,
		Page:      page,
		HasNext:   hasNext,
	}, nil
}

// FetchThreadContent returns one page of a thread's posts in floor order.
func (c *Client) FetchThreadContent(ctx context.Context, boardID, threadID, page int) (*forum.PostPage, error) {
	var data threadContentData
	if err := c.fetchData(ctx, "/read.php", queryParams("tid", threadID, page), &data); err != nil {
		return nil, err
	}

	posts := make([]forum.Post, 0, len(data.Replies))
	for _, r := range data.Replies {
		p := r.toPost()
		if u, ok := data.Users[strconv.Itoa(p.AuthorID)]; ok {
			p.AuthorName = string(u.Username)
			p.Signature = string(u.Signature)
		}
		if p.AuthorName == "" {
			p.AuthorName = "#" + strconv.Itoa(p.AuthorID)
		}
		posts = append(posts, p)
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].Floor < posts[j].Floor })

	// Later pages may omit both counts. The total is then unknown and a
	// full page is taken to mean more follow.
	total := totalPages(int(data.Rows), int(data.Thread.Replies), int(data.RowsPerPage))
	hasNext := page < total
	if total == 0 {
		perPage := int(data.RowsPerPage)
		if perPage <= 0 {
			perPage = defaultPostsPerPage
		}
		hasNext = len(posts) >= perPage
	}
	return &forum.PostPage{
		Subject:    string(data.Thread.Subject),
		Posts:      posts,
		Page:       page,
		TotalPages: total,
		HasNext:    hasNext,
	}, nil
}

// FetchBoardInfo looks up a board by id. It is used to name favorites.
func (c *Client) FetchBoardInfo(ctx context.Context, boardID int) (forum.Board, error) {
	var data threadListData
	params := queryParams("fid", boardID, 0)
	if err := c.fetchData(ctx, "/thread.php", params, &data); err != nil {
		return forum.Board{}, err
	}
	name := string(data.Forum.Name)
	if name == "" {
		return forum.Board{}, fmt.Errorf("board %d has no name in the response", boardID)
	}
	return forum.Board{ID: boardID, Name: name}, nil
}

// totalPages derives the page count of a thread. __ROWS is the post count;
// when it is missing, replies+1 (the opening post) is used instead. It
// returns 0 when the response carries neither.
func totalPages(rows, replies, perPage int) int {
	if perPage <= 0 {
		perPage = defaultPostsPerPage
	}
	if rows <= 0 {
		if replies <= 0 {
			return 0
		}
		rows = replies + 1
	}
	return (rows + perPage - 1) / perPage
}

func queryParams(idName string, id, page int) url.Values {
	v := url.Values{
		idName:     {strconv.Itoa(id)},
		"__output": {"11"},
	}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	return v
}

// fetchData performs the request and decodes the "data" member into v.
func (c *Client) fetchData(ctx context.Context, path string, params url.Values, v any) error {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return err
	}
	data, err := unwrapEnvelope(body)
	if err != nil {
		c.noteError(err)
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		err = eris.Wrapf(err, "decode %s data", path)
		c.noteError(err)
		c.logger.Debug("decode failed", "error", eris.ToString(err, true))
		return err
	}
	return nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error json.RawMessage `json:"error"`
}

// unwrapEnvelope strips the JSONP wrapper, surfaces an "error" member as an
// APIError and returns the "data" member (or the whole document when absent).
// Some endpoints wrap data in a one-element array; that array is unwrapped.
func unwrapEnvelope(body string) (json.RawMessage, error) {
	text := strings.TrimSpace(body)
	if strings.HasPrefix(text, jsonpPrefix) {
		text = strings.TrimSpace(strings.TrimPrefix(text, jsonpPrefix))
		text = strings.TrimSuffix(text, ";")
	}
	if text == "" {
		return nil, eris.New("empty response body")
	}

	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, eris.Wrap(err, "response is not JSON")
	}
	if msg := errorMessage(env.Error); msg != "" {
		return nil, &APIError{Message: msg}
	}

	data := env.Data
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = json.RawMessage(text)
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil && len(items) > 0 {
			data = items[0]
		}
	}
	return data, nil
}

// errorMessage extracts a message from the forum's "error" member, which
// appears as a string, an array of strings or an object keyed "0".."n".
func errorMessage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		if len(list) > 0 {
			return list[0]
		}
		return ""
	}
	var obj map[string]string
	if json.Unmarshal(raw, &obj) == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			return obj[keys[0]]
		}
		return ""
	}
	return string(raw)
}

// JSON shapes of the forum's responses (unexported, used only for decoding).

type threadListData struct {
	Forum       forumInfo            `json:"__F"`
	Topics      keyedList[topicJSON] `json:"__T"`
	Rows        flexInt              `json:"__ROWS"`
	RowsPerPage flexInt              `json:"__T__ROWS_PAGE"`
}

type forumInfo struct {
	FID  flexInt    `json:"fid"`
	Name flexString `json:"name"`
}

type topicJSON struct {
	TID       flexInt    `json:"tid"`
	FID       flexInt    `json:"fid"`
	Subject   flexString `json:"subject"`
	Author    flexString `json:"author"`
	Replies   flexInt    `json:"replies"`
	PostDate  flexInt    `json:"postdate"`
	LastPost  flexInt    `json:"lastpost"`
	TitleFont flexString `json:"titlefont"`
}

func (t topicJSON) toThread(boardID int) forum.Thread {
	fid := int(t.FID)
	if fid == 0 {
		fid = boardID
	}
	return forum.Thread{
		ID:        int(t.TID),
		BoardID:   fid,
		Subject:   string(t.Subject),
		Author:    string(t.Author),
		Replies:   int(t.Replies),
		PostDate:  unixTime(int64(t.PostDate)),
		LastPost:  unixTime(int64(t.LastPost)),
		TitleFont: string(t.TitleFont),
	}
}

type threadContentData struct {
	Thread      topicJSON            `json:"__T"`
	Replies     keyedList[replyJSON] `json:"__R"`
	Users       map[string]userJSON  `json:"__U"`
	Rows        flexInt              `json:"__ROWS"`
	RowsPerPage flexInt              `json:"__R__ROWS_PAGE"`
}

type replyJSON struct {
	PID               flexInt    `json:"pid"`
	Floor             flexInt    `json:"lou"`
	AuthorID          flexInt    `json:"authorid"`
	PostDateTimestamp flexInt    `json:"postdatetimestamp"`
	PostDate          flexString `json:"postdate"`
	Content           flexString `json:"content"`
}

func (r replyJSON) toPost() forum.Post {
	posted := unixTime(int64(r.PostDateTimestamp))
	if posted.IsZero() && r.PostDate != "" {
		if t, err := time.ParseInLocation("2006-01-02 15:04", string(r.PostDate), time.Local); err == nil {
			posted = t
		}
	}
	return forum.Post{
		ID:       int(r.PID),
		Floor:    int(r.Floor),
		AuthorID: int(r.AuthorID),
		PostDate: posted,
		Content:  string(r.Content),
	}
}

type userJSON struct {
	UID       flexInt    `json:"uid"`
	Username  flexString `json:"username"`
	Signature flexString `json:"signature"`
}

// UnmarshalJSON tolerates the non-object members __U carries next to the
// user records (group tables, medal tables and the like).
func (u *userJSON) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		*u = userJSON{}
		return nil
	}
	type plain userJSON
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		*u = userJSON{}
		return nil
	}
	*u = userJSON(p)
	return nil
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
