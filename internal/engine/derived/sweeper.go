// internal/engine/derived/sweeper.go
package derived

import (
	"time"

	"github.com/robfig/cron/v3"

	"dca-platform/internal/common/logger"
	"dca-platform/internal/common/metrics"
	"dca-platform/internal/models"
	"dca-platform/internal/store"
)

// Sweeper refreshes derived state on a time basis: aging moves with the
// wall clock even when nothing is written to a case.
type Sweeper struct {
	store  *store.Store
	logger logger.Logger
	cron   *cron.Cron
	now    func() time.Time
}

func NewSweeper(st *store.Store, log logger.Logger) *Sweeper {
	return &Sweeper{
		store:  st,
		logger: log.WithFields(map[string]interface{}{"component": "derived-sweeper"}),
		now:    time.Now,
	}
}

// WithClock overrides the sweeper clock, for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Start schedules the refresh pass.
func (s *Sweeper) Start(schedule string) error {
	s.cron = cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	_, err := s.cron.AddFunc(schedule, func() { s.Run() })
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Run recomputes derived fields on every open case once.
func (s *Sweeper) Run() {
	start := s.now()
	now := start.UTC()

	for _, id := range s.store.CaseIDs() {
		_, err := s.store.UpdateCase(id, func(c *models.Case) error {
			if c.Status.IsTerminal() {
				return nil
			}
			Recompute(c, now)
			return nil
		})
		if err != nil {
			s.logger.WithError(err).Error("derived refresh failed for case", map[string]interface{}{
				"case_id": id,
			})
		}
	}

	metrics.SweepDuration.WithLabelValues("derived").Observe(s.now().Sub(start).Seconds())
}
