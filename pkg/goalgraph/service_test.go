package goalgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sansten/memoryos/pkg/models"
)

func TestProposeFromTagOverlapBelowThresholdDiscarded(t *testing.T) {
	s := &Service{}
	goal := &models.Goal{ID: "g1", Tags: []string{"infra"}}
	link := s.ProposeFromTagOverlap(goal, []string{"other"})
	assert.Nil(t, link)
}

func TestProposeFromTagOverlapComputesConfidence(t *testing.T) {
	s := &Service{}
	goal := &models.Goal{ID: "g1", Tags: []string{"infra", "deploy"}}
	link := s.ProposeFromTagOverlap(goal, []string{"infra", "deploy"})
	if assert.NotNil(t, link) {
		assert.InDelta(t, 0.75, link.Confidence, 1e-9)
		assert.Equal(t, models.GoalLinkEvidence, link.LinkType)
		assert.Equal(t, models.GoalLinkedByAuto, link.LinkedBy)
	}
}

func TestProposeFromTagOverlapProgressTagSelectsProgressLinkType(t *testing.T) {
	s := &Service{}
	goal := &models.Goal{ID: "g1", Tags: []string{"infra"}}
	link := s.ProposeFromTagOverlap(goal, []string{"infra", "milestone"})
	if assert.NotNil(t, link) {
		assert.Equal(t, models.GoalLinkProgress, link.LinkType)
	}
}

func TestProposeFromTagOverlapConfidenceCapsAtOne(t *testing.T) {
	s := &Service{}
	goal := &models.Goal{ID: "g1", Tags: []string{"a", "b", "c", "d", "e", "f"}}
	link := s.ProposeFromTagOverlap(goal, []string{"a", "b", "c", "d", "e", "f"})
	if assert.NotNil(t, link) {
		assert.Equal(t, 1.0, link.Confidence)
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-1))
	assert.Equal(t, 1.0, clamp01(2))
	assert.Equal(t, 0.5, clamp01(0.5))
}

func TestMetaSupervisorGateCompletionRejectsPolicyWithoutEvidence(t *testing.T) {
	s := &Service{}
	goal := &models.Goal{GoalType: models.GoalTypePolicy}
	err := s.metaSupervisorGateCompletion(goal, nil)
	assert.ErrorIs(t, err, ErrRequiresReview)
}

func TestMetaSupervisorGateCompletionAllowsPolicyWithEvidence(t *testing.T) {
	s := &Service{}
	goal := &models.Goal{GoalType: models.GoalTypePolicy}
	links := []*models.GoalMemoryLink{{LinkType: models.GoalLinkEvidence}}
	assert.NoError(t, s.metaSupervisorGateCompletion(goal, links))
}

func TestMetaSupervisorGateCompletionIgnoresNonPolicyGoals(t *testing.T) {
	s := &Service{}
	goal := &models.Goal{GoalType: models.GoalTypeTask}
	assert.NoError(t, s.metaSupervisorGateCompletion(goal, nil))
}

func TestMetaSupervisorGateCrossScopeEvidenceRejectsAutoLinkedPersonalEvidence(t *testing.T) {
	s := &Service{}
	goal := &models.Goal{Scope: models.ScopePersonal}
	link := &models.GoalMemoryLink{LinkType: models.GoalLinkEvidence, LinkedBy: models.GoalLinkedByAuto}
	err := s.metaSupervisorGateCrossScopeEvidence(goal, link)
	assert.ErrorIs(t, err, ErrRequiresReview)
}

func TestMetaSupervisorGateCrossScopeEvidenceAllowsUserLinked(t *testing.T) {
	s := &Service{}
	goal := &models.Goal{Scope: models.ScopePersonal}
	link := &models.GoalMemoryLink{LinkType: models.GoalLinkEvidence, LinkedBy: models.GoalLinkedByUser}
	assert.NoError(t, s.metaSupervisorGateCrossScopeEvidence(goal, link))
}

func TestTagOverlapCountIsCaseInsensitiveAndDeduplicates(t *testing.T) {
	assert.Equal(t, 2, tagOverlapCount([]string{"Infra", "Deploy"}, []string{"infra", "infra", "deploy"}))
	assert.Equal(t, 0, tagOverlapCount([]string{"infra"}, nil))
}
