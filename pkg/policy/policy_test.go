// pkg/policy/policy_test.go
package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dca-platform/internal/common/config"
)

func TestLoad_PartialFileGetsFallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "2.0",
		"escalation": {"maxLevel": 3}
	}`), 0o644))

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "2.0", p.Version)
	assert.Equal(t, 3, p.Escalation.MaxLevel)
	assert.Equal(t, Default().Escalation.ReescalateAfterHours, p.Escalation.ReescalateAfterHours)
	assert.Equal(t, Default().Allocation, p.Allocation)
}

func TestLoad_RejectsInvalidPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"escalation": {"maxLevel": 0}
	}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy validation failed")
}

func TestApplyToConfig_OverridesEngineKnobs(t *testing.T) {
	p := &Policy{
		Allocation: AllocationWeights{
			Specialization: 40,
			RecoveryRate:   0.5,
			SLACompliance:  0.2,
			LoadBalance:    25,
			Satisfaction:   5,
			Preferred:      10,
		},
		Escalation: EscalationPolicy{MaxLevel: 3, ReescalateAfterHours: 12},
		Scoring:    ScoringWeights{Performance: 0.5, Reliability: 0.25, Efficiency: 0.25},
	}

	cfg := &config.Config{}
	cfg.Allocation.Weights.Specialization = 30
	cfg.SLA.MaxEscalationLevel = 5
	cfg.Scoring.PerformanceWeight = 0.4

	p.ApplyToConfig(cfg)

	assert.Equal(t, 40.0, cfg.Allocation.Weights.Specialization)
	assert.Equal(t, 0.5, cfg.Allocation.Weights.RecoveryRate)
	assert.Equal(t, 10.0, cfg.Allocation.Weights.Preferred)
	assert.Equal(t, 3, cfg.SLA.MaxEscalationLevel)
	assert.Equal(t, 12, cfg.SLA.ReescalateAfterHours)
	assert.Equal(t, 0.5, cfg.Scoring.PerformanceWeight)
	assert.Equal(t, 0.25, cfg.Scoring.ReliabilityWeight)
	assert.Equal(t, 0.25, cfg.Scoring.EfficiencyWeight)
}

func TestDefault_WeightsSumToOne(t *testing.T) {
	p := Default()
	assert.InDelta(t, 1.0, p.Scoring.Performance+p.Scoring.Reliability+p.Scoring.Efficiency, 1e-9)
	assert.InDelta(t, 1.0,
		p.Priority.DebtAmount+p.Priority.Aging+p.Priority.RecoveryChance+p.Priority.CustomerRisk+p.Priority.BusinessImpact,
		1e-9)
}
