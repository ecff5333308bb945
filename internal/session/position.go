package session

import (
	"fmt"
	"strconv"
)

// Level is the depth of a position in the board/thread/post tree.
type Level int

const (
	LevelRoot Level = iota
	LevelBoard
	LevelThread
)

func (l Level) String() string {
	switch l {
	case LevelRoot:
		return "root"
	case LevelBoard:
		return "board"
	case LevelThread:
		return "thread"
	default:
		return "level(" + strconv.Itoa(int(l)) + ")"
	}
}

// Position is where the session currently is. It is an immutable value;
// transitions build new positions. BoardName and ThreadSubject are display
// hints filled in from fetched listings and take no part in identity.
type Position struct {
	Level    Level
	BoardID  int
	ThreadID int
	Page     int

	BoardName     string
	ThreadSubject string
}

// Key identifies a position without its page.
type Key struct {
	Level    Level
	BoardID  int
	ThreadID int
}

// Root returns the root position.
func Root() Position {
	return Position{Level: LevelRoot, Page: 1}
}

// InBoard returns the position for a page of a board's thread list.
func InBoard(boardID, page int) Position {
	return Position{Level: LevelBoard, BoardID: boardID, Page: page}
}

// InThread returns the position for a page of a thread. The board id is kept
// so the thread can be refetched and so back-navigation knows its parent.
func InThread(boardID, threadID, page int) Position {
	return Position{Level: LevelThread, BoardID: boardID, ThreadID: threadID, Page: page}
}

// WithPage returns a copy of p at another page.
func (p Position) WithPage(page int) Position {
	p.Page = page
	return p
}

// Key returns p without its page.
func (p Position) Key() Key {
	return Key{Level: p.Level, BoardID: p.BoardID, ThreadID: p.ThreadID}
}

// Same reports whether p and o name the same page, ignoring display names.
func (p Position) Same(o Position) bool {
	return p.Key() == o.Key() && p.Page == o.Page
}

// IsRoot reports whether p is the root position.
func (p Position) IsRoot() bool {
	return p.Level == LevelRoot
}

func (p Position) String() string {
	switch p.Level {
	case LevelBoard:
		return fmt.Sprintf("board %d page %d", p.BoardID, p.Page)
	case LevelThread:
		return fmt.Sprintf("thread %d/%d page %d", p.BoardID, p.ThreadID, p.Page)
	default:
		return "root"
	}
}

// BoardLabel returns the board name, or its id when the name is unknown.
func (p Position) BoardLabel() string {
	if p.BoardName != "" {
		return p.BoardName
	}
	return "fid " + strconv.Itoa(p.BoardID)
}

// ThreadLabel returns the thread subject, or its id when unknown.
func (p Position) ThreadLabel() string {
	if p.ThreadSubject != "" {
		return p.ThreadSubject
	}
	return "tid " + strconv.Itoa(p.ThreadID)
}
