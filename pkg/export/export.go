// Package export implements the JSON/Markdown/ZIP export formats for an
// organization's memories: a schema-versioned JSON document with a
// memories array, one Markdown file per item, and a ZIP combining both
// under memories/<id>.md. No third-party archive/export library turned up
// anywhere in the dependency set, so this corner of the ambient stack is
// intentionally built on archive/zip + encoding/json (see DESIGN.md).
package export

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sansten/memoryos/pkg/mask"
	"github.com/sansten/memoryos/pkg/models"
)

// schemaVersion stamps every JSON export document for forward compatibility.
const schemaVersion = 1

// Document is the schema-versioned JSON export document.
type Document struct {
	SchemaVersion  int              `json:"schema_version"`
	ExportedAt     time.Time        `json:"exported_at"`
	OrganizationID string           `json:"organization_id"`
	Memories       []*models.Memory `json:"memories"`
}

// JSON writes the schema-versioned JSON document to w.
func JSON(w io.Writer, orgID string, memories []*models.Memory, at time.Time) error {
	doc := Document{SchemaVersion: schemaVersion, ExportedAt: at, OrganizationID: orgID, Memories: memories}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Markdown renders one memory as a Logseq/Markdown-compatible page. masker
// may be nil, in which case the content preview is written unredacted.
func Markdown(m *models.Memory, masker *mask.Service) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.Title)
	fmt.Fprintf(&b, "- id:: %s\n", m.ID)
	fmt.Fprintf(&b, "- scope:: %s\n", m.Scope)
	fmt.Fprintf(&b, "- classification:: %s\n", m.Classification)
	if len(m.Tags) > 0 {
		fmt.Fprintf(&b, "- tags:: %s\n", strings.Join(m.Tags, ", "))
	}
	fmt.Fprintf(&b, "- created:: %s\n\n", m.CreatedAt.Format(time.RFC3339))
	content := m.ContentPreview
	if masker != nil {
		content = masker.Mask(content)
	}
	b.WriteString(content)
	b.WriteString("\n")
	return b.String()
}

// markdownFileName is the path convention used both by the ZIP export and
// by the LogseqExportAgent's persisted per-memory file.
func markdownFileName(memoryID string) string {
	return fmt.Sprintf("memories/%s.md", memoryID)
}

// MarkdownFileName exposes the path convention for callers (the pipeline's
// LogseqExportAgent materializer) that persist a single memory's page
// outside of a ZIP bundle.
func MarkdownFileName(memoryID string) string {
	return markdownFileName(memoryID)
}

// ZIP writes a combined export: export.json at the root plus one
// memories/<id>.md file per memory. masker may be nil.
func ZIP(w io.Writer, orgID string, memories []*models.Memory, at time.Time, masker *mask.Service) error {
	zw := zip.NewWriter(w)

	jsonWriter, err := zw.Create("export.json")
	if err != nil {
		return err
	}
	if err := JSON(jsonWriter, orgID, memories, at); err != nil {
		return err
	}

	for _, m := range memories {
		mdWriter, err := zw.Create(markdownFileName(m.ID))
		if err != nil {
			return err
		}
		if _, err := io.WriteString(mdWriter, Markdown(m, masker)); err != nil {
			return err
		}
	}

	return zw.Close()
}
