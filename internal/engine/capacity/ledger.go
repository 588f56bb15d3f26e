// internal/engine/capacity/ledger.go
package capacity

import (
	"sort"
	"sync"

	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/metrics"
	"dca-platform/internal/models"
)

// slot guards one agency's record. Reservations on different agencies
// never contend with each other.
type slot struct {
	mu  sync.Mutex
	dca *models.DCA
}

// Ledger is the authoritative per-agency capacity tracker. Each DCA is
// guarded by its own lock so reserve/release is linearizable per DCA
// without a global lock across all agencies.
type Ledger struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

func NewLedger() *Ledger {
	return &Ledger{slots: make(map[string]*slot)}
}

// Register inserts or replaces an agency record. Replacing keeps the
// current case load so in-flight reservations survive profile updates.
func (l *Ledger) Register(d *models.DCA) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.slots[d.ID]; ok {
		existing.mu.Lock()
		load := existing.dca.Capacity.CurrentCaseLoad
		cp := d.Clone()
		cp.Capacity.CurrentCaseLoad = load
		existing.dca = cp
		existing.mu.Unlock()
		return
	}
	l.slots[d.ID] = &slot{dca: d.Clone()}
}

func (l *Ledger) get(dcaID string) (*slot, error) {
	l.mu.RLock()
	s, ok := l.slots[dcaID]
	l.mu.RUnlock()
	if !ok {
		return nil, errors.NewDCANotFoundError(dcaID)
	}
	return s, nil
}

// Reserve takes n slots on the agency, failing with CapacityExceeded
// when fewer than n are free.
func (l *Ledger) Reserve(dcaID string, n int) error {
	if n <= 0 {
		return errors.NewValidationError("reserve count must be positive")
	}
	s, err := l.get(dcaID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dca.Capacity.Available() < n {
		return errors.NewCapacityExceededError(dcaID, n)
	}
	s.dca.Capacity.CurrentCaseLoad += n
	l.recordUtilization(s.dca)
	return nil
}

// Release frees n slots, floored at zero load. Callers guarantee
// at-most-once release per reservation.
func (l *Ledger) Release(dcaID string, n int) error {
	if n <= 0 {
		return errors.NewValidationError("release count must be positive")
	}
	s, err := l.get(dcaID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dca.Capacity.CurrentCaseLoad -= n
	if s.dca.Capacity.CurrentCaseLoad < 0 {
		s.dca.Capacity.CurrentCaseLoad = 0
	}
	l.recordUtilization(s.dca)
	return nil
}

func (l *Ledger) recordUtilization(d *models.DCA) {
	metrics.DCAUtilization.WithLabelValues(d.ID).Set(d.Capacity.Utilization() * 100)
}

// Snapshot returns a deep copy of the agency record.
func (l *Ledger) Snapshot(dcaID string) (*models.DCA, error) {
	s, err := l.get(dcaID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dca.Clone(), nil
}

// Update applies fn to the agency record under its lock. Capacity
// fields are owned by the ledger itself; fn edits restore the load it
// found so reservations cannot be lost through profile updates.
func (l *Ledger) Update(dcaID string, fn func(d *models.DCA) error) (*models.DCA, error) {
	s, err := l.get(dcaID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	load := s.dca.Capacity.CurrentCaseLoad
	working := s.dca.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Capacity.CurrentCaseLoad = load
	s.dca = working
	return working.Clone(), nil
}

// Candidates returns snapshots of every agency able to take n more
// cases, sorted by ID for deterministic ranking input.
func (l *Ledger) Candidates(n int) []*models.DCA {
	l.mu.RLock()
	slots := make([]*slot, 0, len(l.slots))
	for _, s := range l.slots {
		slots = append(slots, s)
	}
	l.mu.RUnlock()

	var out []*models.DCA
	for _, s := range slots {
		s.mu.Lock()
		if s.dca.IsAvailable(n) {
			out = append(out, s.dca.Clone())
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns snapshots of every registered agency, sorted by ID.
func (l *Ledger) All() []*models.DCA {
	l.mu.RLock()
	slots := make([]*slot, 0, len(l.slots))
	for _, s := range l.slots {
		slots = append(slots, s)
	}
	l.mu.RUnlock()

	out := make([]*models.DCA, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		out = append(out, s.dca.Clone())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
