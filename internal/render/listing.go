package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/gyokusei/nga-cli/internal/session"
)

// Options controls listing output.
type Options struct {
	Width          int  // terminal width in cells; 0 means 80
	ShowSignatures bool // print user signatures under posts
	Rich           bool // colors; false renders plain text
}

// Printer formats listings for a terminal.
type Printer struct {
	opts Options

	title   lipgloss.Style
	dim     lipgloss.Style
	ordinal lipgloss.Style
	author  lipgloss.Style
	op      lipgloss.Style
	bold    lipgloss.Style
	errS    lipgloss.Style
	okS     lipgloss.Style
}

// NewPrinter returns a printer whose styles target w. With Rich unset the
// color profile is forced to ASCII.
func NewPrinter(w io.Writer, opts Options) *Printer {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	r := lipgloss.NewRenderer(w)
	if !opts.Rich {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Printer{
		opts:    opts,
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1F4E79", Dark: "#7FB8E6"}),
		dim:     r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#8A8A8A"}),
		ordinal: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#7A5C00", Dark: "#E5C07B"}),
		author:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#98C379"}),
		op:      r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFD75F"}),
		bold:    r.NewStyle().Bold(true),
		errS:    r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#FF6B6B"}),
		okS:     r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#98C379"}),
	}
}

// SetWidth updates the wrap width, e.g. after a terminal resize.
func (p *Printer) SetWidth(w int) {
	if w > 0 {
		p.opts.Width = w
	}
}

// Error formats a one-line error message.
func (p *Printer) Error(msg string) string {
	return p.errS.Render("error: " + msg)
}

// Info formats a one-line status message.
func (p *Printer) Info(msg string) string {
	return p.okS.Render(msg)
}

// Listing formats a whole listing with a header line.
func (p *Printer) Listing(l *session.Listing) string {
	var sb strings.Builder
	sb.WriteString(p.Header(l))
	sb.WriteString("\n")
	if len(l.Entries) == 0 {
		sb.WriteString(p.dim.Render("(nothing here)"))
		sb.WriteString("\n")
		return sb.String()
	}
	if l.Position.Level == session.LevelThread {
		sb.WriteString(p.Posts(l))
		return sb.String()
	}
	for _, row := range p.Rows(l) {
		sb.WriteString(row)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Rows formats one line per entry of a board list or thread list.
func (p *Printer) Rows(l *session.Listing) []string {
	switch l.Position.Level {
	case session.LevelRoot:
		return p.boardRows(l)
	case session.LevelBoard:
		return p.threadRows(l)
	}
	return nil
}

// Header is the title line of a listing with its page information.
func (p *Printer) Header(l *session.Listing) string {
	page := PageLabel(l)
	if page == "" {
		return p.title.Render(l.Title)
	}
	return p.title.Render(l.Title) + "  " + p.dim.Render(page)
}

// PageLabel describes where a listing sits among its pages.
func PageLabel(l *session.Listing) string {
	if l.Position.IsRoot() {
		return ""
	}
	label := "page " + strconv.Itoa(l.Page)
	if l.TotalPages > 0 {
		label += "/" + strconv.Itoa(l.TotalPages)
	} else if l.HasNext {
		label += "+"
	}
	return label
}

func (p *Printer) ordinalCol(l *session.Listing, n int) string {
	width := len(strconv.Itoa(len(l.Entries)))
	return p.ordinal.Render(PadLeft(strconv.Itoa(n), width))
}

func (p *Printer) boardRows(l *session.Listing) []string {
	rows := make([]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		rows = append(rows, fmt.Sprintf("%s  %s  %s", p.ordinalCol(l, e.Ordinal), e.Title, p.dim.Render("fid "+strconv.Itoa(e.ID))))
	}
	return rows
}

// threadRows lays out: ordinal, subject, author, replies, post date.
func (p *Printer) threadRows(l *session.Listing) []string {
	const authorW, repliesW, dateW = 14, 6, 16
	ordW := len(strconv.Itoa(len(l.Entries)))
	subjectW := p.opts.Width - ordW - authorW - repliesW - dateW - 8
	if subjectW < 16 {
		subjectW = 16
	}
	rows := make([]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		t := e.Thread
		subject := PadRight(Truncate(e.Title, subjectW), subjectW)
		if t != nil && strings.Contains(t.TitleFont, "b") {
			subject = p.bold.Render(subject)
		}
		var author, replies, date string
		if t != nil {
			author = Truncate(t.Author, authorW)
			replies = FormatCount(t.Replies)
			date = FormatTime(t.PostDate)
		}
		rows = append(rows, fmt.Sprintf("%s  %s  %s  %s  %s",
			p.ordinalCol(l, e.Ordinal),
			subject,
			p.author.Render(PadRight(author, authorW)),
			PadLeft(replies, repliesW),
			p.dim.Render(date)))
	}
	return rows
}

// Posts formats a page of posts: a header line per floor, the wrapped body
// and, when enabled, the signature.
func (p *Printer) Posts(l *session.Listing) string {
	var sb strings.Builder
	bodyW := p.opts.Width - 4
	if bodyW < 20 {
		bodyW = 20
	}
	for i, e := range l.Entries {
		post := e.Post
		if post == nil {
			continue
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		floor := FloorLabel(post.Floor)
		if post.Floor == 0 {
			floor = p.op.Render(floor)
		} else {
			floor = p.ordinal.Render(floor)
		}
		fmt.Fprintf(&sb, "%s %s %s\n", floor, p.author.Render(post.AuthorName), p.dim.Render(FormatTime(post.PostDate)))

		body := PostText(post.Content)
		if body != "" {
			sb.WriteString(Indent(Wrap(body, bodyW), 4))
			sb.WriteString("\n")
		}
		if p.opts.ShowSignatures {
			if sig := PostText(post.Signature); sig != "" {
				sb.WriteString(p.dim.Render(Indent("-- \n"+Wrap(sig, bodyW), 4)))
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
