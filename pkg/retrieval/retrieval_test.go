package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/models"
)

func TestHybridRaw(t *testing.T) {
	assert.InDelta(t, 0.7*0.8+0.3*0.5, hybridRaw(candidate{hasVec: true, vecScore: 0.8, hasLex: true, lexScore: 0.5}), 1e-9)
	assert.Equal(t, 0.9, hybridRaw(candidate{hasVec: true, vecScore: 0.9}))
	assert.Equal(t, 0.4, hybridRaw(candidate{hasLex: true, lexScore: 0.4}))
	assert.Equal(t, 0.0, hybridRaw(candidate{}))
}

func TestTemporalDecayFactorNoDecayAtZeroAge(t *testing.T) {
	cfg := config.DefaultSearchConfig()
	now := time.Now()
	m := &models.Memory{CreatedAt: now, UpdatedAt: now}
	factor := temporalDecayFactor(m, ModeBalanced, cfg)
	assert.InDelta(t, 1.0, factor, 1e-6)
}

func TestTemporalDecayFactorHalvesAtHalfLife(t *testing.T) {
	cfg := config.DefaultSearchConfig()
	anchor := time.Now().Add(-cfg.PerformanceHalfLife)
	m := &models.Memory{CreatedAt: anchor, UpdatedAt: anchor}
	factor := temporalDecayFactor(m, ModePerformance, cfg)
	assert.InDelta(t, 0.5, factor, 0.01)
}

func TestWeightedActivationClampsToOne(t *testing.T) {
	w := config.ActivationWeights{
		Relevance: 1, Recency: 1, Frequency: 1, Importance: 1,
		Confidence: 1, Context: 1, Provenance: 1, InverseRisk: 1, NeighborBoost: 1,
	}
	c := models.ActivationComponents{Rel: 1, Rec: 1, Freq: 1, Imp: 1, Conf: 1, Ctx: 1, Prov: 1, Risk: 1, Nbr: 1}
	assert.Equal(t, 1.0, weightedActivation(c, w))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.2))
	assert.Equal(t, 1.0, clamp01(1.2))
	assert.Equal(t, 0.5, clamp01(0.5))
}

func TestContextAffinityRangeBounded(t *testing.T) {
	for _, scope := range []models.Scope{models.ScopePersonal, models.ScopeTeam, models.ScopeOrganization, models.ScopeGlobal} {
		v := contextAffinity(&models.Memory{Scope: scope})
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
