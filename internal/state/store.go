// Package state persists per-task workflow state inside the repository's git
// directory.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clintrovert/trunkgate/internal/phase"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// maxHistory bounds the attempts kept per record.
const maxHistory = 50

// ErrNoState is returned when a task has never been persisted.
var ErrNoState = errors.New("no saved state")

// Record is the persisted state of one task
type Record struct {
	Task      types.Task      `json:"task"`
	Machine   phase.Snapshot  `json:"machine"`
	History   []types.Attempt `json:"history,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AddAttempt appends an attempt, dropping the oldest beyond the history limit.
func (r *Record) AddAttempt(a types.Attempt) {
	r.History = append(r.History, a)
	if len(r.History) > maxHistory {
		r.History = r.History[len(r.History)-maxHistory:]
	}
}

// Store reads and writes records as JSON files, one per issue
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// ForRepository returns the store kept under the repository's .git directory.
func ForRepository(repoPath string) *Store {
	return NewStore(filepath.Join(repoPath, ".git", "trunkgate"))
}

func (s *Store) path(issue int) string {
	return filepath.Join(s.dir, strconv.Itoa(issue)+".json")
}

// Load reads the record of issue
func (s *Store) Load(issue int) (*Record, error) {
	data, err := os.ReadFile(s.path(issue))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("issue #%d: %w", issue, ErrNoState)
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse state for issue #%d: %w", issue, err)
	}
	return &rec, nil
}

// Save writes the record, replacing the file atomically
func (s *Store) Save(rec *Record) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".state-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(rec.Task.IssueNumber))
}

// Delete removes the record of issue. Missing records are not an error.
func (s *Store) Delete(issue int) error {
	err := os.Remove(s.path(issue))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the issue numbers with saved state in ascending order.
func (s *Store) List() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var issues []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		issues = append(issues, n)
	}
	sort.Ints(issues)
	return issues, nil
}
