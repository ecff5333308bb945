package store

import (
	"database/sql"
	"fmt"
)

// AppendHistory stores a shell line and drops all but the newest keep lines.
func (s *Store) AppendHistory(line string, keep int) error {
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO history (line) VALUES (?)`, line); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		if keep <= 0 {
			return nil
		}
		_, err := tx.Exec(`
			DELETE FROM history
			WHERE id <= (SELECT id FROM history ORDER BY id DESC LIMIT 1 OFFSET ?)`, keep)
		if err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
		return nil
	})
}

// LoadHistory returns up to limit of the newest lines, oldest first.
func (s *Store) LoadHistory(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT line FROM (
			SELECT id, line FROM history ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ClearHistory deletes every stored line.
func (s *Store) ClearHistory() error {
	if _, err := s.db.Exec(`DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
