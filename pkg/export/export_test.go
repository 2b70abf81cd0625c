package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sansten/memoryos/pkg/config"
	"github.com/sansten/memoryos/pkg/mask"
	"github.com/sansten/memoryos/pkg/models"
)

func sampleMemory() *models.Memory {
	return &models.Memory{
		ID:             "m1",
		Title:          "Deploy runbook",
		Scope:          models.ScopeTeam,
		Classification: models.Classification("internal"),
		Tags:           []string{"ops", "deploy"},
		ContentPreview: "Restart the service in this order...",
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, "org1", []*models.Memory{sampleMemory()}, time.Now()))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 1, doc.SchemaVersion)
	assert.Equal(t, "org1", doc.OrganizationID)
	require.Len(t, doc.Memories, 1)
	assert.Equal(t, "m1", doc.Memories[0].ID)
}

func TestMarkdownIncludesTitleAndTags(t *testing.T) {
	md := Markdown(sampleMemory(), nil)
	assert.Contains(t, md, "# Deploy runbook")
	assert.Contains(t, md, "ops, deploy")
}

func TestMarkdownRedactsWhenMaskerProvided(t *testing.T) {
	m := sampleMemory()
	m.ContentPreview = "reach me at a@b.com"
	masker := mask.NewService(&config.MaskingDefaults{Enabled: true, PatternGroup: "pii"})
	md := Markdown(m, masker)
	assert.Contains(t, md, "[MASKED_EMAIL]")
	assert.NotContains(t, md, "a@b.com")
}

func TestZIPContainsJSONAndMarkdownEntries(t *testing.T) {
	var buf bytes.Buffer
	m := sampleMemory()
	require.NoError(t, ZIP(&buf, "org1", []*models.Memory{m}, time.Now(), nil))

	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range r.File {
		names[f.Name] = true
	}
	assert.True(t, names["export.json"])
	assert.True(t, names[MarkdownFileName(m.ID)])
}
