package nga

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ErrNotLoggedIn means the forum served the page anonymously.
var ErrNotLoggedIn = errors.New("not logged in: cookie rejected or expired")

// User is the account the cookie belongs to.
type User struct {
	UID      int
	Username string
}

var (
	userObjectRe   = regexp.MustCompile(`window\.__U\s*=\s*(\{.*?\});`)
	currentUnameRe = regexp.MustCompile(`__CURRENT_UNAME\s*=\s*'([^']*)'`)
)

// VerifyLogin loads a page that requires a session and reads the user the
// forum believes it is talking to.
func (c *Client) VerifyLogin(ctx context.Context) (*User, error) {
	body, err := c.get(ctx, "/thread.php", url.Values{"fid": {"-7"}})
	if err != nil {
		return nil, err
	}
	u, err := parseLoginPage(body)
	if err != nil {
		c.noteError(err)
		return nil, err
	}
	c.logger.Info("logged in", "uid", u.UID, "username", u.Username)
	return u, nil
}

// parseLoginPage looks through inline scripts for the window.__U object, or
// the __CURRENT_UNAME variable older templates set.
func parseLoginPage(page string) (*User, error) {
	for _, script := range inlineScripts(page) {
		if m := userObjectRe.FindStringSubmatch(script); m != nil {
			var raw struct {
				UID      flexInt    `json:"uid"`
				Username flexString `json:"username"`
			}
			if err := json.Unmarshal([]byte(m[1]), &raw); err == nil && raw.UID > 0 {
				return &User{UID: int(raw.UID), Username: string(raw.Username)}, nil
			}
		}
		if m := currentUnameRe.FindStringSubmatch(script); m != nil && m[1] != "" {
			return &User{Username: m[1]}, nil
		}
	}
	return nil, ErrNotLoggedIn
}

// inlineScripts returns the text of every <script> element without a src.
func inlineScripts(page string) []string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return []string{page}
	}
	var scripts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			var sb strings.Builder
			for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
				if ch.Type == html.TextNode {
					sb.WriteString(ch.Data)
				}
			}
			if sb.Len() > 0 {
				scripts = append(scripts, sb.String())
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return scripts
}
