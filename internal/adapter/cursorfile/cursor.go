// Package cursorfile persists the incremental fetch cursor as a single
// RFC 3339 timestamp in a plain text file, so the checkpoint survives between
// runs and reads cleanly in a diff.
package cursorfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// Store reads and writes the cursor file at a fixed path.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted cursor. A missing or empty file yields the zero
// time, which the connectors treat as "fetch everything". A file that exists
// but does not parse is an error, not a silent full refetch.
func (s *Store) Load() (time.Time, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read cursor %s: %w", s.path, err)
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return time.Time{}, nil
	}

	cursor, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cursor %s: %w", s.path, err)
	}
	return cursor, nil
}

// Save writes the cursor, replacing any previous value.
func (s *Store) Save(cursor time.Time) error {
	body := cursor.Format(time.RFC3339Nano) + "\n"
	if err := os.WriteFile(s.path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write cursor %s: %w", s.path, err)
	}
	return nil
}
