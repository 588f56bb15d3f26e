// internal/ingestion/inbox.go
package ingestion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"dca-platform/internal/common/database"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/common/observability"
)

// intakeQueueKey is the Redis list upstream systems push raw intake
// documents onto. The HTTP/file edge lives outside this service.
const intakeQueueKey = "case:intake"

// Inbox drains queued intake documents into the ingestion service.
type Inbox struct {
	svc    *Service
	redis  *database.RedisClient
	logger logger.Logger
	obs    *observability.Observability
	cron   *cron.Cron
}

func NewInbox(svc *Service, redis *database.RedisClient, log logger.Logger) *Inbox {
	return &Inbox{
		svc:    svc,
		redis:  redis,
		logger: log.WithFields(map[string]interface{}{"component": "intake-inbox"}),
	}
}

// WithObservability attaches operation counters.
func (b *Inbox) WithObservability(obs *observability.Observability) *Inbox {
	b.obs = obs
	return b
}

// Start schedules periodic drains.
func (b *Inbox) Start(schedule string) error {
	b.cron = cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	_, err := b.cron.AddFunc(schedule, func() {
		b.Drain(context.Background())
	})
	if err != nil {
		return err
	}
	b.cron.Start()
	return nil
}

// Stop halts the schedule.
func (b *Inbox) Stop() {
	if b.cron != nil {
		<-b.cron.Stop().Done()
	}
}

// Drain pops every queued intake document and ingests it. Documents that
// fail validation are dropped with a log line; the queue never wedges on
// a bad payload. Returns the number of cases created.
func (b *Inbox) Drain(ctx context.Context) int {
	queued, err := b.redis.Client.LLen(ctx, intakeQueueKey).Result()
	if err != nil {
		b.logger.WithError(err).Error("intake queue length check failed", nil)
		return 0
	}

	created := 0
	for i := int64(0); i < queued; i++ {
		raw, err := b.redis.Client.LPop(ctx, intakeQueueKey).Result()
		if err != nil {
			break
		}

		var doc map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			b.logger.WithError(err).Error("intake document is not valid JSON, dropping", map[string]interface{}{
				"payload": raw,
			})
			continue
		}
		if err := ValidateIntake(doc); err != nil {
			if b.obs != nil {
				b.obs.RecordOperation(ctx, "case_intake", "error")
			}
			b.logger.WithError(err).Error("intake document failed schema validation", nil)
			continue
		}

		var in Intake
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			b.logger.WithError(err).Error("intake document does not decode, dropping", nil)
			continue
		}

		c, err := b.svc.Ingest(ctx, in)
		if err != nil {
			if b.obs != nil {
				b.obs.RecordOperation(ctx, "case_intake", "error")
			}
			b.logger.WithError(err).Error("intake document rejected", map[string]interface{}{
				"customer_ref": in.CustomerRef,
			})
			continue
		}
		if b.obs != nil {
			b.obs.RecordOperation(ctx, "case_intake", "success")
		}

		created++
		b.logger.Info("case created from intake queue", map[string]interface{}{
			"case_id":     c.ID,
			"case_number": c.CaseNumber,
		})
	}

	return created
}
