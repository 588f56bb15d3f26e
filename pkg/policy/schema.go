// pkg/policy/schema.go
package policy

// AllocationWeights tunes the weighted composite used to rank
// candidate agencies.
type AllocationWeights struct {
	Specialization float64 `json:"specialization"`
	RecoveryRate   float64 `json:"recoveryRate"`
	SLACompliance  float64 `json:"slaCompliance"`
	LoadBalance    float64 `json:"loadBalance"`
	Satisfaction   float64 `json:"satisfaction"`
	Preferred      float64 `json:"preferred"`
}

// EscalationPolicy bounds escalation growth: the level cap and the
// minimum interval between consecutive escalations of one case.
type EscalationPolicy struct {
	MaxLevel             int `json:"maxLevel"`
	ReescalateAfterHours int `json:"reescalateAfterHours"`
}

// ScoringWeights blends the component scores into the overall score.
type ScoringWeights struct {
	Performance float64 `json:"performance"`
	Reliability float64 `json:"reliability"`
	Efficiency  float64 `json:"efficiency"`
}

// PriorityWeights tunes case priority scoring at ingestion.
type PriorityWeights struct {
	DebtAmount     float64 `json:"debtAmount"`
	Aging          float64 `json:"aging"`
	RecoveryChance float64 `json:"recoveryChance"`
	CustomerRisk   float64 `json:"customerRisk"`
	BusinessImpact float64 `json:"businessImpact"`
}

// Policy is the operator-tunable rule set loaded at startup.
type Policy struct {
	Version    string            `json:"version"`
	Allocation AllocationWeights `json:"allocation"`
	Escalation EscalationPolicy  `json:"escalation"`
	Scoring    ScoringWeights    `json:"scoring"`
	Priority   PriorityWeights   `json:"priority"`
}
