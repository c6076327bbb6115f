// Package report writes the run artifacts: the collected records, the run
// summary, the dataset metadata document, and the quality report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/refharvest/refharvest/pkg/collector"
	"github.com/refharvest/refharvest/pkg/config"
	"github.com/refharvest/refharvest/pkg/quality"
	"github.com/refharvest/refharvest/pkg/record"
)

// Summary is the concise run summary artifact: the accumulated statistics
// plus the collection context.
type Summary struct {
	collector.Stats
	RecordsCollected int      `json:"records_collected"`
	Endpoint         string   `json:"endpoint"`
	KeptFields       []string `json:"kept_fields"`
	DelayMultiplier  float64  `json:"delay_multiplier"`
}

// Metadata describes the collected dataset for downstream consumers.
type Metadata struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	Endpoint    string    `json:"endpoint"`
	Fields      []string  `json:"fields"`
	RecordCount int       `json:"record_count"`
	CollectedAt time.Time `json:"collected_at"`
	GeneratedAt time.Time `json:"generated_at"`
}

// BuildSummary assembles the summary from the run state.
func BuildSummary(cfg *config.Config, stats *collector.Stats, recordCount int, multiplier float64) Summary {
	return Summary{
		Stats:            *stats,
		RecordsCollected: recordCount,
		Endpoint:         cfg.Endpoint,
		KeptFields:       cfg.FieldsToKeep,
		DelayMultiplier:  multiplier,
	}
}

// BuildMetadata assembles the dataset metadata document.
func BuildMetadata(cfg *config.Config, recordCount int, collectedAt time.Time) Metadata {
	return Metadata{
		Title:       "Reference ticker dataset",
		Description: "Active ticker reference data collected adaptively from the configured endpoint",
		Source:      cfg.BaseURL,
		Endpoint:    cfg.Endpoint,
		Fields:      cfg.FieldsToKeep,
		RecordCount: recordCount,
		CollectedAt: collectedAt,
		GeneratedAt: time.Now(),
	}
}

// Writer persists run artifacts to the configured output paths.
type Writer struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewWriter creates a writer for the configured output paths.
func NewWriter(cfg *config.Config, logger zerolog.Logger) *Writer {
	return &Writer{cfg: cfg, logger: logger}
}

// WriteRecords saves the collected records as an indented JSON array.
func (w *Writer) WriteRecords(records []record.Record) error {
	if records == nil {
		records = []record.Record{}
	}
	return w.writeJSON(w.cfg.Output.JSONPath, records, "records")
}

// WriteSummary saves the run summary.
func (w *Writer) WriteSummary(s Summary) error {
	return w.writeJSON(w.cfg.Output.SummaryPath, s, "summary")
}

// WriteMetadata saves the dataset metadata document.
func (w *Writer) WriteMetadata(m Metadata) error {
	return w.writeJSON(w.cfg.Output.MetadataPath, m, "metadata")
}

// WriteQuality saves the quality report.
func (w *Writer) WriteQuality(r quality.Report) error {
	return w.writeJSON(w.cfg.Output.QualityPath, r, "quality report")
}

func (w *Writer) writeJSON(path string, v any, what string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", what, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", what, err)
	}
	w.logger.Info().Str("path", path).Msg("Saved " + what)
	return nil
}

// RenderSummary formats the run summary for terminal output.
func RenderSummary(s Summary) string {
	var b strings.Builder
	b.WriteString("Collection Summary\n")
	b.WriteString("==================\n")
	fmt.Fprintf(&b, "Endpoint:            %s\n", s.Endpoint)
	fmt.Fprintf(&b, "Records collected:   %d\n", s.RecordsCollected)
	fmt.Fprintf(&b, "Pages fetched:       %d\n", s.PagesFetched)
	fmt.Fprintf(&b, "Requests:            %d total, %d ok, %d failed\n",
		s.TotalRequests, s.SuccessfulRequests, s.FailedRequests)
	fmt.Fprintf(&b, "Quality score:       %.2f\n", s.QualityScore)
	fmt.Fprintf(&b, "Delay multiplier:    %.2f\n", s.DelayMultiplier)
	fmt.Fprintf(&b, "Kept fields:         %s\n", strings.Join(s.KeptFields, ", "))
	return b.String()
}

// RenderQuality formats the quality report for terminal output.
func RenderQuality(r quality.Report) string {
	var b strings.Builder
	b.WriteString("Quality Report\n")
	b.WriteString("==============\n")
	fmt.Fprintf(&b, "Completeness:  %.2f\n", r.Completeness)
	fmt.Fprintf(&b, "Accuracy:      %.2f\n", r.Accuracy)
	fmt.Fprintf(&b, "Consistency:   %.2f\n", r.Consistency)
	fmt.Fprintf(&b, "Timeliness:    %.2f\n", r.Timeliness)
	fmt.Fprintf(&b, "Overall score: %.2f\n", r.Score)
	return b.String()
}
