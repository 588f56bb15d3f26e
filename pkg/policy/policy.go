// pkg/policy/policy.go
package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"dca-platform/internal/common/config"
)

// Default returns the operational baseline policy.
func Default() *Policy {
	return &Policy{
		Version: "1.0",
		Allocation: AllocationWeights{
			Specialization: 30,
			RecoveryRate:   0.4,
			SLACompliance:  0.3,
			LoadBalance:    20,
			Satisfaction:   10,
			Preferred:      15,
		},
		Escalation: EscalationPolicy{
			MaxLevel:             5,
			ReescalateAfterHours: 24,
		},
		Scoring: ScoringWeights{
			Performance: 0.4,
			Reliability: 0.3,
			Efficiency:  0.3,
		},
		Priority: PriorityWeights{
			DebtAmount:     0.25,
			Aging:          0.30,
			RecoveryChance: 0.25,
			CustomerRisk:   0.15,
			BusinessImpact: 0.05,
		},
	}
}

// Load reads and validates a policy file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	applyFallbacks(&p)
	return &p, nil
}

// ApplyToConfig pushes the policy's tunables into the runtime config,
// making a loaded policy file authoritative over the equivalent config
// keys. Priority weights are consumed directly by the prioritizer and
// have no config counterpart.
func (p *Policy) ApplyToConfig(cfg *config.Config) {
	cfg.Allocation.Weights = config.AllocationWeights{
		Specialization: p.Allocation.Specialization,
		RecoveryRate:   p.Allocation.RecoveryRate,
		SLACompliance:  p.Allocation.SLACompliance,
		LoadBalance:    p.Allocation.LoadBalance,
		Satisfaction:   p.Allocation.Satisfaction,
		Preferred:      p.Allocation.Preferred,
	}
	cfg.SLA.MaxEscalationLevel = p.Escalation.MaxLevel
	cfg.SLA.ReescalateAfterHours = p.Escalation.ReescalateAfterHours
	cfg.Scoring.PerformanceWeight = p.Scoring.Performance
	cfg.Scoring.ReliabilityWeight = p.Scoring.Reliability
	cfg.Scoring.EfficiencyWeight = p.Scoring.Efficiency
}

var policySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"version": map[string]interface{}{"type": "string"},
		"escalation": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"maxLevel":             map[string]interface{}{"type": "integer", "minimum": 1},
				"reescalateAfterHours": map[string]interface{}{"type": "integer", "minimum": 1},
			},
		},
		"scoring": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"performance": map[string]interface{}{"type": "number", "minimum": 0},
				"reliability": map[string]interface{}{"type": "number", "minimum": 0},
				"efficiency":  map[string]interface{}{"type": "number", "minimum": 0},
			},
		},
	},
}

func validate(doc map[string]interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(policySchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("policy validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("policy validation failed: %v", errs)
	}

	return nil
}

// applyFallbacks fills zero-valued sections from the default policy so
// a partial file still yields a workable rule set.
func applyFallbacks(p *Policy) {
	def := Default()
	if p.Allocation == (AllocationWeights{}) {
		p.Allocation = def.Allocation
	}
	if p.Escalation.MaxLevel == 0 {
		p.Escalation.MaxLevel = def.Escalation.MaxLevel
	}
	if p.Escalation.ReescalateAfterHours == 0 {
		p.Escalation.ReescalateAfterHours = def.Escalation.ReescalateAfterHours
	}
	if p.Scoring == (ScoringWeights{}) {
		p.Scoring = def.Scoring
	}
	if p.Priority == (PriorityWeights{}) {
		p.Priority = def.Priority
	}
}
