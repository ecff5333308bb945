package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gyokusei/nga-cli/internal/forum"
)

// SaveExchange replaces the stored exchange with ex.
func (s *Store) SaveExchange(ex forum.Exchange) error {
	req, err := marshalNullable(ex.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := marshalNullable(ex.Response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO last_exchange (id, request, response, error, recorded_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			request = excluded.request,
			response = excluded.response,
			error = excluded.error,
			recorded_at = excluded.recorded_at`,
		req, resp, ex.Err, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save exchange: %w", err)
	}
	return nil
}

// LastExchange returns the stored exchange and when it was recorded. The
// exchange is empty when nothing was saved yet.
func (s *Store) LastExchange() (forum.Exchange, time.Time, error) {
	var (
		req, resp  sql.NullString
		ex         forum.Exchange
		recordedAt time.Time
	)
	err := s.db.QueryRow(`
		SELECT request, response, error, recorded_at
		FROM last_exchange WHERE id = 1`).Scan(&req, &resp, &ex.Err, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return forum.Exchange{}, time.Time{}, nil
	}
	if err != nil {
		return forum.Exchange{}, time.Time{}, fmt.Errorf("load exchange: %w", err)
	}
	if req.Valid {
		ex.Request = &forum.Request{}
		if err := json.Unmarshal([]byte(req.String), ex.Request); err != nil {
			return forum.Exchange{}, time.Time{}, fmt.Errorf("decode request: %w", err)
		}
	}
	if resp.Valid {
		ex.Response = &forum.Response{}
		if err := json.Unmarshal([]byte(resp.String), ex.Response); err != nil {
			return forum.Exchange{}, time.Time{}, fmt.Errorf("decode response: %w", err)
		}
	}
	return ex, recordedAt, nil
}

func marshalNullable[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
