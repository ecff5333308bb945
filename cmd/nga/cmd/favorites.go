package cmd

import (
	"context"
	"fmt"

	"github.com/gyokusei/nga-cli/internal/config"
	"github.com/gyokusei/nga-cli/internal/forum"
)

// boardDirectory names boards by id and serves the favorites as the board
// list. *nga.Client implements it.
type boardDirectory interface {
	FetchBoardInfo(ctx context.Context, boardID int) (forum.Board, error)
	SetFavorites(boards []forum.Board)
}

// lookupRunner runs a gateway request outside navigation and records its
// exchange. *session.Session implements it.
type lookupRunner interface {
	Lookup(ctx context.Context, fn func(context.Context) error) error
}

// favoriteBoards keeps the favorites in the config file and the client's
// board list in step. With a session, name lookups go through it so they
// respect the busy guard and show up in the debug record.
type favoriteBoards struct {
	cfg     *config.Config
	client  boardDirectory
	session lookupRunner
}

func (f *favoriteBoards) List() []forum.Board {
	return favoriteBoardList(f.cfg.Favorites)
}

func (f *favoriteBoards) Add(ctx context.Context, b forum.Board) (forum.Board, error) {
	if b.Name == "" {
		var info forum.Board
		lookup := func(ctx context.Context) error {
			var err error
			info, err = f.client.FetchBoardInfo(ctx, b.ID)
			return err
		}
		var err error
		if f.session != nil {
			err = f.session.Lookup(ctx, lookup)
		} else {
			err = lookup(ctx)
		}
		if err != nil {
			return forum.Board{}, fmt.Errorf("look up board %d: %w", b.ID, err)
		}
		b.Name = info.Name
	}
	if f.cfg.AddFavorite(b.Name, b.ID) {
		if err := f.save(); err != nil {
			return forum.Board{}, err
		}
	}
	return b, nil
}

func (f *favoriteBoards) Remove(id int) (bool, error) {
	if !f.cfg.RemoveFavorite(id) {
		return false, nil
	}
	return true, f.save()
}

func (f *favoriteBoards) save() error {
	if err := f.cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	f.client.SetFavorites(favoriteBoardList(f.cfg.Favorites))
	return nil
}

func favoriteBoardList(favs []config.Favorite) []forum.Board {
	boards := make([]forum.Board, 0, len(favs))
	for _, f := range favs {
		boards = append(boards, forum.Board{ID: f.FID, Name: f.Name})
	}
	return boards
}
