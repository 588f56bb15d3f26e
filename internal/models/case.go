// internal/models/case.go
package models

import "time"

// CaseStatus is the lifecycle status of a collection case.
type CaseStatus string

const (
	CaseStatusNew         CaseStatus = "NEW"
	CaseStatusAssigned    CaseStatus = "ASSIGNED"
	CaseStatusInProgress  CaseStatus = "IN_PROGRESS"
	CaseStatusContacted   CaseStatus = "CONTACTED"
	CaseStatusNegotiating CaseStatus = "NEGOTIATING"
	CaseStatusPaymentPlan CaseStatus = "PAYMENT_PLAN"
	CaseStatusResolved    CaseStatus = "RESOLVED"
	CaseStatusClosed      CaseStatus = "CLOSED"
	CaseStatusEscalated   CaseStatus = "ESCALATED"
	CaseStatusLegal       CaseStatus = "LEGAL"
)

// IsTerminal reports whether no further transitions are allowed out of s.
func (s CaseStatus) IsTerminal() bool {
	return s == CaseStatusClosed
}

// AgingCategory buckets how long a case has been overdue.
type AgingCategory string

const (
	AgingFresh    AgingCategory = "FRESH"
	AgingLow      AgingCategory = "LOW"
	AgingMedium   AgingCategory = "MEDIUM"
	AgingHigh     AgingCategory = "HIGH"
	AgingCritical AgingCategory = "CRITICAL"
)

// RiskProfile is the customer risk classification carried on a case.
type RiskProfile string

const (
	RiskLow      RiskProfile = "LOW"
	RiskMedium   RiskProfile = "MEDIUM"
	RiskHigh     RiskProfile = "HIGH"
	RiskCritical RiskProfile = "CRITICAL"
)

// PaymentStatus is the settlement state of a recorded payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Payment is an owned record in Case.Payments. Its ID has no meaning
// outside the parent case.
type Payment struct {
	ID         string        `json:"id"`
	Amount     float64       `json:"amount"`
	Currency   string        `json:"currency"`
	Method     string        `json:"method,omitempty"`
	Status     PaymentStatus `json:"status"`
	PaidAt     time.Time     `json:"paidAt"`
	RecordedAt time.Time     `json:"recordedAt"`
}

// Communication is an owned record of a customer contact attempt.
type Communication struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"` // CALL, EMAIL, SMS, LETTER
	Direction  string    `json:"direction"`
	Summary    string    `json:"summary,omitempty"`
	Outcome    string    `json:"outcome"` // CONTACTED, NO_ANSWER, NEGOTIATION, PAYMENT_PLAN, DISPUTE
	AgentID    string    `json:"agentId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Escalation reasons.
const (
	EscalationReasonSLABreach = "SLA_BREACH"
	EscalationReasonManual    = "MANUAL"
)

// Escalation is an owned record indicating elevated handling.
type Escalation struct {
	ID          string    `json:"id"`
	Level       int       `json:"level"`
	Reason      string    `json:"reason"`
	Description string    `json:"description,omitempty"`
	EscalatedBy string    `json:"escalatedBy,omitempty"`
	EscalatedAt time.Time `json:"escalatedAt"`
}

// Debt holds the monetary facts of a case.
type Debt struct {
	OriginalAmount float64   `json:"originalAmount"`
	CurrentAmount  float64   `json:"currentAmount"`
	Currency       string    `json:"currency"`
	DueDate        time.Time `json:"dueDate"`
	ServiceType    string    `json:"serviceType,omitempty"` // STANDARD, PREMIUM, ENTERPRISE, SMALL_BUSINESS
}

// SLA holds the contractual deadlines, in hours from assignment.
type SLA struct {
	ResponseTimeHours   int `json:"responseTimeHours"`
	ResolutionTimeHours int `json:"resolutionTimeHours"`
	EscalationTimeHours int `json:"escalationTimeHours"`
}

// CaseDates tracks the lifecycle timestamps of a case.
type CaseDates struct {
	AssignedDate       *time.Time `json:"assignedDate,omitempty"`
	FirstContact       *time.Time `json:"firstContact,omitempty"`
	LastContact        *time.Time `json:"lastContact,omitempty"`
	ExpectedResolution *time.Time `json:"expectedResolution,omitempty"`
	ActualResolution   *time.Time `json:"actualResolution,omitempty"`
	EscalationDate     *time.Time `json:"escalationDate,omitempty"`
}

// Aging is the derived overdue classification.
type Aging struct {
	Days     int           `json:"days"`
	Category AgingCategory `json:"category"`
}

// Prediction carries the advisory output of the predictive-scoring
// service. It is never required for correctness.
type Prediction struct {
	RecoveryProbability float64   `json:"recoveryProbability"` // [0,1]
	RiskScore           float64   `json:"riskScore"`           // [0,100]
	RecommendedActions  []string  `json:"recommendedActions,omitempty"`
	Confidence          float64   `json:"confidence"` // [0,1]
	PredictedAt         time.Time `json:"predictedAt"`
}

// Case is the top-level collection case aggregate. Payments,
// Communications and Escalations are owned ordered sequences with no
// identity outside this case.
type Case struct {
	ID              string      `json:"id"`
	CaseNumber      string      `json:"caseNumber"` // CASE-<year>-<seq>, immutable once set
	CustomerRef     string      `json:"customerRef"`
	CustomerSegment string      `json:"customerSegment,omitempty"` // STANDARD, VIP, CORPORATE, SME
	RiskProfile     RiskProfile `json:"riskProfile"`

	Debt   Debt       `json:"debt"`
	Status CaseStatus `json:"status"`

	Priority      string  `json:"priority"`
	PriorityScore float64 `json:"priorityScore"`

	AssignedDCA string    `json:"assignedDca,omitempty"` // empty while unassigned
	SLA         SLA       `json:"sla"`
	Dates       CaseDates `json:"dates"`
	Aging       Aging     `json:"aging"`

	// Derived financials, recomputed by the derived-state calculator.
	TotalPaid        float64 `json:"totalPaid"`
	RemainingBalance float64 `json:"remainingBalance"`
	RecoveryRate     float64 `json:"recoveryRate"`
	OverdueDays      int     `json:"overdueDays"`

	Predictions *Prediction `json:"predictions,omitempty"`

	Payments       []Payment       `json:"payments"`
	Communications []Communication `json:"communications"`
	Escalations    []Escalation    `json:"escalations"`

	ResolutionReason     string `json:"resolutionReason,omitempty"`
	PreviousInteractions int    `json:"previousInteractions"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CompletedPaymentsTotal sums payments with status COMPLETED.
func (c *Case) CompletedPaymentsTotal() float64 {
	var total float64
	for _, p := range c.Payments {
		if p.Status == PaymentCompleted {
			total += p.Amount
		}
	}
	return total
}

// LatestEscalation returns the most recent escalation, or nil.
func (c *Case) LatestEscalation() *Escalation {
	if len(c.Escalations) == 0 {
		return nil
	}
	return &c.Escalations[len(c.Escalations)-1]
}

// EscalationLevel returns the current escalation level, 0 when none.
func (c *Case) EscalationLevel() int {
	if e := c.LatestEscalation(); e != nil {
		return e.Level
	}
	return 0
}

// EscalationDeadline returns the point at which the SLA monitor must
// escalate the case. Zero time when the case is unassigned.
func (c *Case) EscalationDeadline() time.Time {
	if c.Dates.AssignedDate == nil {
		return time.Time{}
	}
	return c.Dates.AssignedDate.Add(time.Duration(c.SLA.EscalationTimeHours) * time.Hour)
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the live aggregate.
func (c *Case) Clone() *Case {
	cp := *c
	if c.Predictions != nil {
		p := *c.Predictions
		p.RecommendedActions = append([]string(nil), c.Predictions.RecommendedActions...)
		cp.Predictions = &p
	}
	cp.Payments = append([]Payment(nil), c.Payments...)
	cp.Communications = append([]Communication(nil), c.Communications...)
	cp.Escalations = append([]Escalation(nil), c.Escalations...)
	cp.Dates = c.Dates.clone()
	return &cp
}

func (d CaseDates) clone() CaseDates {
	out := d
	out.AssignedDate = cloneTime(d.AssignedDate)
	out.FirstContact = cloneTime(d.FirstContact)
	out.LastContact = cloneTime(d.LastContact)
	out.ExpectedResolution = cloneTime(d.ExpectedResolution)
	out.ActualResolution = cloneTime(d.ActualResolution)
	out.EscalationDate = cloneTime(d.EscalationDate)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
