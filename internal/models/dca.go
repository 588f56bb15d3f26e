// internal/models/dca.go
package models

import "time"

// DCAStatus is the operational status of a collection agency.
type DCAStatus string

const (
	DCAStatusOnboarding DCAStatus = "ONBOARDING"
	DCAStatusActive     DCAStatus = "ACTIVE"
	DCAStatusSuspended  DCAStatus = "SUSPENDED"
	DCAStatusTerminated DCAStatus = "TERMINATED"
)

// ContractStatus is the status of the agency's servicing contract.
type ContractStatus string

const (
	ContractDraft      ContractStatus = "DRAFT"
	ContractActive     ContractStatus = "ACTIVE"
	ContractExpired    ContractStatus = "EXPIRED"
	ContractTerminated ContractStatus = "TERMINATED"
)

// Capacity tracks concurrent case load against the contractual maximum.
type Capacity struct {
	MaxConcurrentCases int `json:"maxConcurrentCases"`
	CurrentCaseLoad    int `json:"currentCaseLoad"`
}

// Available returns the number of free slots, never negative.
func (c Capacity) Available() int {
	free := c.MaxConcurrentCases - c.CurrentCaseLoad
	if free < 0 {
		return 0
	}
	return free
}

// Utilization returns load as a fraction of the maximum, in [0,1].
func (c Capacity) Utilization() float64 {
	if c.MaxConcurrentCases <= 0 {
		return 1
	}
	return float64(c.CurrentCaseLoad) / float64(c.MaxConcurrentCases)
}

// Contract holds the servicing contract facts the engine cares about.
type Contract struct {
	Status    ContractStatus `json:"status"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
}

// DCAFlags are operational toggles on an agency.
type DCAFlags struct {
	IsBlacklisted bool `json:"isBlacklisted"`
	IsPreferred   bool `json:"isPreferred"`
}

// Performance is the rolling outcome history maintained by the
// scoring aggregator.
type Performance struct {
	TotalCasesHandled    int     `json:"totalCasesHandled"`
	TotalAmountRecovered float64 `json:"totalAmountRecovered"`
	AverageRecoveryRate  float64 `json:"averageRecoveryRate"` // percent
	AverageRecoveryTime  float64 `json:"averageRecoveryTime"` // days
	SLACompliance        float64 `json:"slaCompliance"`       // percent
	CustomerSatisfaction float64 `json:"customerSatisfaction"` // 0-5
}

// Scoring is the derived score set recomputed on a scheduled cadence.
type Scoring struct {
	OverallScore     float64   `json:"overallScore"`
	PerformanceScore float64   `json:"performanceScore"`
	ReliabilityScore float64   `json:"reliabilityScore"`
	EfficiencyScore  float64   `json:"efficiencyScore"`
	Ranking          int       `json:"ranking"`
	Strengths        []string  `json:"strengths,omitempty"`
	Improvements     []string  `json:"improvements,omitempty"`
	ScoredAt         time.Time `json:"scoredAt"`
}

// MonthlyMetricsCap bounds DCA.MonthlyMetrics; the oldest entry is
// evicted first when the cap is reached.
const MonthlyMetricsCap = 24

// MonthlyMetric is an owned, chronological per-month outcome record.
type MonthlyMetric struct {
	Month             string  `json:"month"` // YYYY-MM
	CasesResolved     int     `json:"casesResolved"`
	AmountRecovered   float64 `json:"amountRecovered"`
	RecoveryRate      float64 `json:"recoveryRate"`
	AvgResolutionDays float64 `json:"avgResolutionDays"`
}

// DCA is the collection-agency aggregate. Capacity is mutated only by
// the capacity ledger; Performance and Scoring only by the aggregator.
type DCA struct {
	ID                 string    `json:"id"`
	RegistrationNumber string    `json:"registrationNumber"`
	Name               string    `json:"name"`
	Status             DCAStatus `json:"status"`
	Contract           Contract  `json:"contract"`
	Flags              DCAFlags  `json:"flags"`
	Specializations    []string  `json:"specializations"`

	Capacity       Capacity        `json:"capacity"`
	Performance    Performance     `json:"performance"`
	Scoring        Scoring         `json:"scoring"`
	MonthlyMetrics []MonthlyMetric `json:"monthlyMetrics"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsAvailable reports whether the agency can accept n more cases:
// ACTIVE status, ACTIVE contract, not blacklisted, and free capacity.
func (d *DCA) IsAvailable(n int) bool {
	return d.Status == DCAStatusActive &&
		d.Contract.Status == ContractActive &&
		!d.Flags.IsBlacklisted &&
		d.Capacity.Available() >= n
}

// HasSpecialization reports whether the agency covers the given
// specialization. An empty requirement always matches.
func (d *DCA) HasSpecialization(spec string) bool {
	if spec == "" {
		return true
	}
	for _, s := range d.Specializations {
		if s == spec {
			return true
		}
	}
	return false
}

// AppendMonthlyMetric appends a metric, evicting the oldest entry once
// the cap is reached. Entries are chronological by construction.
func (d *DCA) AppendMonthlyMetric(m MonthlyMetric) {
	if len(d.MonthlyMetrics) >= MonthlyMetricsCap {
		d.MonthlyMetrics = d.MonthlyMetrics[1:]
	}
	d.MonthlyMetrics = append(d.MonthlyMetrics, m)
}

// Clone returns a deep copy for snapshot reads.
func (d *DCA) Clone() *DCA {
	cp := *d
	cp.Specializations = append([]string(nil), d.Specializations...)
	cp.MonthlyMetrics = append([]MonthlyMetric(nil), d.MonthlyMetrics...)
	cp.Scoring.Strengths = append([]string(nil), d.Scoring.Strengths...)
	cp.Scoring.Improvements = append([]string(nil), d.Scoring.Improvements...)
	cp.Contract.ExpiresAt = cloneTime(d.Contract.ExpiresAt)
	return &cp
}
