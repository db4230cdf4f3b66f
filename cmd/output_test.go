package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyerfyer/doc-rag-assistant/internal/document"
	"github.com/fyerfyer/doc-rag-assistant/internal/ingest"
	"github.com/fyerfyer/doc-rag-assistant/internal/retrieval"
)

func TestPrintReport(t *testing.T) {
	t.Run("no changes", func(t *testing.T) {
		var buf bytes.Buffer
		printReport(&buf, &ingest.Report{NoChanges: true})
		assert.Equal(t, "No new or modified files to process.\n", buf.String())
	})

	t.Run("mixed outcomes", func(t *testing.T) {
		var buf bytes.Buffer
		printReport(&buf, &ingest.Report{
			Processed:   1,
			Skipped:     2,
			Failed:      1,
			Chunks:      5,
			TotalChunks: 12,
			Files: []ingest.FileResult{
				{File: "a.pdf", Outcome: ingest.OutcomeProcessed, Chunks: 5},
				{File: "b.docx", Outcome: ingest.OutcomeFailed, Error: "corrupt"},
				{File: "c.pdf", Outcome: ingest.OutcomeSkipped},
			},
		})

		out := buf.String()
		assert.Contains(t, out, "processed    a.pdf (5 chunks)")
		assert.Contains(t, out, "failed       b.docx: corrupt")
		assert.NotContains(t, out, "c.pdf")
		assert.Contains(t, out, "Processed 1, skipped 2, unsupported 0, failed 1, quarantined 0")
		assert.Contains(t, out, "Added 5 chunks, index now holds 12")
	})
}

func TestResultLocation(t *testing.T) {
	assert.Equal(t, "data/a.pdf p.3", resultLocation(retrieval.Result{
		Metadata: map[string]interface{}{document.MetaSource: "data/a.pdf", document.MetaPage: 3},
	}))
	assert.Equal(t, "data/b.xlsx [Budget]", resultLocation(retrieval.Result{
		Metadata: map[string]interface{}{document.MetaSource: "data/b.xlsx", document.MetaPageName: "Budget"},
	}))
	assert.Equal(t, "", resultLocation(retrieval.Result{}))
}
