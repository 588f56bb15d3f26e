// internal/store/store.go
package store

import (
	"sort"
	"sync"

	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/models"
)

// MutationHook is invoked after a case mutation commits, with a snapshot
// of the new state. Hooks run outside the per-case lock.
type MutationHook func(c *models.Case)

// caseEntry serializes all mutations of one case.
type caseEntry struct {
	mu sync.Mutex
	c  *models.Case
}

// Store is the authoritative in-memory case repository. Reads return
// deep copies; writes go through UpdateCase, which serializes per case
// and commits all-or-nothing.
type Store struct {
	mu      sync.RWMutex
	cases   map[string]*caseEntry
	byNum   map[string]string // caseNumber -> id
	log     logger.Logger
	hooksMu sync.RWMutex
	hooks   []MutationHook
}

func New(log logger.Logger) *Store {
	return &Store{
		cases: make(map[string]*caseEntry),
		byNum: make(map[string]string),
		log:   log,
	}
}

// OnMutation registers a hook called with a snapshot after each commit.
func (s *Store) OnMutation(h MutationHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, h)
}

// PutCase inserts a new case. It fails when the ID or case number is
// already taken.
func (s *Store) PutCase(c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cases[c.ID]; exists {
		return errors.NewValidationError("case id already exists: " + c.ID)
	}
	if c.CaseNumber != "" {
		if _, exists := s.byNum[c.CaseNumber]; exists {
			return errors.NewValidationError("case number already exists: " + c.CaseNumber)
		}
		s.byNum[c.CaseNumber] = c.ID
	}
	s.cases[c.ID] = &caseEntry{c: c.Clone()}
	return nil
}

// GetCase returns a snapshot of the case, or CASE_NOT_FOUND.
func (s *Store) GetCase(id string) (*models.Case, error) {
	s.mu.RLock()
	entry, ok := s.cases[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewCaseNotFoundError(id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.c.Clone(), nil
}

// GetCaseByNumber resolves a case number to a snapshot.
func (s *Store) GetCaseByNumber(number string) (*models.Case, error) {
	s.mu.RLock()
	id, ok := s.byNum[number]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewCaseNotFoundError(number)
	}
	return s.GetCase(id)
}

// UpdateCase applies fn to a clone of the case under the per-case lock
// and swaps the clone in only when fn succeeds. A failed fn leaves the
// stored aggregate untouched.
func (s *Store) UpdateCase(id string, fn func(c *models.Case) error) (*models.Case, error) {
	s.mu.RLock()
	entry, ok := s.cases[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewCaseNotFoundError(id)
	}

	entry.mu.Lock()
	working := entry.c.Clone()
	if err := fn(working); err != nil {
		entry.mu.Unlock()
		return nil, err
	}
	entry.c = working
	snapshot := working.Clone()
	entry.mu.Unlock()

	s.notify(snapshot)
	return snapshot, nil
}

func (s *Store) notify(snapshot *models.Case) {
	s.hooksMu.RLock()
	hooks := s.hooks
	s.hooksMu.RUnlock()
	for _, h := range hooks {
		h(snapshot)
	}
}

// CaseIDs returns the IDs of all cases, sorted for deterministic sweeps.
func (s *Store) CaseIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.cases))
	for id := range s.cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CaseIDsByStatus returns IDs of cases currently in one of the given
// statuses, sorted.
func (s *Store) CaseIDsByStatus(statuses ...models.CaseStatus) []string {
	want := make(map[models.CaseStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	entries := make([]*caseEntry, 0, len(s.cases))
	for _, e := range s.cases {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var ids []string
	for _, e := range entries {
		e.mu.Lock()
		if want[e.c.Status] {
			ids = append(ids, e.c.ID)
		}
		e.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// ListCases returns snapshots visible to the principal. DCA users see
// only cases assigned to their own agency.
func (s *Store) ListCases(p *models.Principal) []*models.Case {
	s.mu.RLock()
	entries := make([]*caseEntry, 0, len(s.cases))
	for _, e := range s.cases {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*models.Case
	for _, e := range entries {
		e.mu.Lock()
		if p == nil || p.CanViewCase(e.c) {
			out = append(out, e.c.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of stored cases.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}
