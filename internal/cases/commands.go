// internal/cases/commands.go
package cases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"dca-platform/internal/common/database"
	"dca-platform/internal/common/errors"
	"dca-platform/internal/common/logger"
	"dca-platform/internal/common/observability"
)

// commandQueueKey is the Redis list agent-facing systems push case
// commands onto.
const commandQueueKey = "case:commands"

// Command types accepted on the queue.
const (
	CmdRecordCommunication = "RECORD_COMMUNICATION"
	CmdRecordPayment       = "RECORD_PAYMENT"
	CmdEscalate            = "ESCALATE"
	CmdMoveToLegal         = "MOVE_TO_LEGAL"
	CmdResolve             = "RESOLVE"
	CmdClose               = "CLOSE"
)

// Command is one queued case operation.
type Command struct {
	Type   string `json:"type"`
	CaseID string `json:"caseId"`

	Communication *CommunicationInput `json:"communication,omitempty"`
	Payment       *PaymentInput       `json:"payment,omitempty"`

	Description       string `json:"description,omitempty"`
	RequestedBy       string `json:"requestedBy,omitempty"`
	Reason            string `json:"reason,omitempty"`
	ComplianceChecked bool   `json:"complianceChecked,omitempty"`
}

// CommandConsumer drains queued commands into the case service.
type CommandConsumer struct {
	svc    *Service
	redis  *database.RedisClient
	logger logger.Logger
	obs    *observability.Observability
	cron   *cron.Cron
}

func NewCommandConsumer(svc *Service, redis *database.RedisClient, log logger.Logger) *CommandConsumer {
	return &CommandConsumer{
		svc:    svc,
		redis:  redis,
		logger: log.WithFields(map[string]interface{}{"component": "command-consumer"}),
	}
}

// WithObservability attaches operation counters.
func (cc *CommandConsumer) WithObservability(obs *observability.Observability) *CommandConsumer {
	cc.obs = obs
	return cc
}

// Start schedules periodic drains.
func (cc *CommandConsumer) Start(schedule string) error {
	cc.cron = cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))
	_, err := cc.cron.AddFunc(schedule, func() {
		cc.Drain(context.Background())
	})
	if err != nil {
		return err
	}
	cc.cron.Start()
	return nil
}

// Stop halts the schedule.
func (cc *CommandConsumer) Stop() {
	if cc.cron != nil {
		<-cc.cron.Stop().Done()
	}
}

// Drain pops and applies every queued command. A rejected command is
// logged and dropped so one bad payload cannot wedge the queue. Returns
// the number of commands applied.
func (cc *CommandConsumer) Drain(ctx context.Context) int {
	queued, err := cc.redis.Client.LLen(ctx, commandQueueKey).Result()
	if err != nil {
		cc.logger.WithError(err).Error("command queue length check failed", nil)
		return 0
	}

	applied := 0
	for i := int64(0); i < queued; i++ {
		raw, err := cc.redis.Client.LPop(ctx, commandQueueKey).Result()
		if err != nil {
			break
		}

		var cmd Command
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			cc.logger.WithError(err).Error("command is not valid JSON, dropping", map[string]interface{}{
				"payload": raw,
			})
			continue
		}

		started := time.Now()
		if err := cc.apply(ctx, cmd); err != nil {
			if cc.obs != nil {
				cc.obs.RecordOperation(ctx, "case_command", "error")
			}
			cc.logger.WithError(err).Error("command rejected", map[string]interface{}{
				"type":    cmd.Type,
				"case_id": cmd.CaseID,
			})
			continue
		}
		if cc.obs != nil {
			cc.obs.RecordOperation(ctx, "case_command", "success")
			cc.obs.RecordOperationDuration(ctx, "case_command", time.Since(started))
		}
		applied++
	}

	return applied
}

func (cc *CommandConsumer) apply(ctx context.Context, cmd Command) error {
	var err error
	switch cmd.Type {
	case CmdRecordCommunication:
		if cmd.Communication == nil {
			return errors.NewValidationError("communication payload is required")
		}
		_, err = cc.svc.RecordCommunication(ctx, cmd.CaseID, *cmd.Communication)
	case CmdRecordPayment:
		if cmd.Payment == nil {
			return errors.NewValidationError("payment payload is required")
		}
		_, err = cc.svc.RecordPayment(ctx, cmd.CaseID, *cmd.Payment)
	case CmdEscalate:
		_, err = cc.svc.Escalate(ctx, cmd.CaseID, cmd.Description, cmd.RequestedBy)
	case CmdMoveToLegal:
		_, err = cc.svc.MoveToLegal(ctx, cmd.CaseID, cmd.ComplianceChecked)
	case CmdResolve:
		_, err = cc.svc.Resolve(ctx, cmd.CaseID, cmd.Reason)
	case CmdClose:
		_, err = cc.svc.Close(ctx, cmd.CaseID)
	default:
		return errors.NewValidationError(fmt.Sprintf("unknown command type: %s", cmd.Type))
	}
	return err
}
