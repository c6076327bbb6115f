// Package quality computes normalized data-quality metrics over the full
// record store.
package quality

import (
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/refharvest/refharvest/pkg/record"
)

// Prometheus metrics for quality assessment.
var (
	qualityScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "refharvest_quality_score",
		Help: "Latest overall data quality score in [0,1]",
	})

	qualityMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "refharvest_quality_metric",
		Help: "Latest per-metric quality value in [0,1]",
	}, []string{"metric"})
)

// Report holds the four quality metrics and their unweighted average.
// Every value is in [0,1].
type Report struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Consistency  float64 `json:"consistency"`
	Timeliness   float64 `json:"timeliness"`
	Score        float64 `json:"score"`
}

// Assessor evaluates the accumulated record set.
type Assessor struct {
	requiredFields []string
	idField        string
	nameField      string
	logger         zerolog.Logger
}

// NewAssessor creates an assessor. idField is the primary identifier field
// (plausible values are alphanumeric plus '.' and '-'); nameField is the
// descriptive name field.
func NewAssessor(requiredFields []string, idField, nameField string, logger zerolog.Logger) *Assessor {
	return &Assessor{
		requiredFields: requiredFields,
		idField:        idField,
		nameField:      nameField,
		logger:         logger,
	}
}

// Assess computes the four metrics over the entire store and returns the
// report. An empty store scores exactly 0. Each call rescans the whole store;
// nothing is amortized incrementally.
func (a *Assessor) Assess(records []record.Record) Report {
	if len(records) == 0 {
		return Report{}
	}

	report := Report{
		Completeness: a.completeness(records),
		Accuracy:     a.accuracy(records),
		Consistency:  a.consistency(records),
		Timeliness:   a.timeliness(),
	}
	report.Score = (report.Completeness + report.Accuracy + report.Consistency + report.Timeliness) / 4

	qualityScore.Set(report.Score)
	qualityMetric.WithLabelValues("completeness").Set(report.Completeness)
	qualityMetric.WithLabelValues("accuracy").Set(report.Accuracy)
	qualityMetric.WithLabelValues("consistency").Set(report.Consistency)
	qualityMetric.WithLabelValues("timeliness").Set(report.Timeliness)

	a.logger.Info().
		Float64("completeness", report.Completeness).
		Float64("accuracy", report.Accuracy).
		Float64("consistency", report.Consistency).
		Float64("timeliness", report.Timeliness).
		Float64("score", report.Score).
		Msg("Quality assessed")

	return report
}

// completeness is the fraction of records with every required field present
// and non-empty.
func (a *Assessor) completeness(records []record.Record) float64 {
	ok := 0
	for _, rec := range records {
		if allPresent(rec, a.requiredFields) {
			ok++
		}
	}
	return float64(ok) / float64(len(records))
}

// accuracy is the fraction of records whose identifier is non-empty, whose
// name is non-empty, and whose identifier contains only alphanumerics plus
// '.' and '-'.
func (a *Assessor) accuracy(records []record.Record) float64 {
	ok := 0
	for _, rec := range records {
		id := stringValue(rec[a.idField])
		name := stringValue(rec[a.nameField])
		if id != "" && name != "" && plausibleIdentifier(id) {
			ok++
		}
	}
	return float64(ok) / float64(len(records))
}

// consistency is the fraction of records whose identifier and name values are
// of string type. An absent key counts as consistent; a present non-string
// value, including an explicit null from projection, is a violation.
func (a *Assessor) consistency(records []record.Record) float64 {
	ok := 0
	for _, rec := range records {
		if isStringOrAbsent(rec, a.idField) && isStringOrAbsent(rec, a.nameField) {
			ok++
		}
	}
	return float64(ok) / float64(len(records))
}

// timeliness is fixed at 1.0: static reference data has no decay to measure.
func (a *Assessor) timeliness() float64 {
	return 1.0
}

// plausibleIdentifier reports whether every rune is a letter, digit, '.'
// or '-'.
func plausibleIdentifier(id string) bool {
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' {
			continue
		}
		return false
	}
	return true
}

func allPresent(rec record.Record, fields []string) bool {
	for _, field := range fields {
		value, ok := rec[field]
		if !ok || value == nil {
			return false
		}
		if s, isStr := value.(string); isStr && s == "" {
			return false
		}
	}
	return true
}

func isStringOrAbsent(rec record.Record, field string) bool {
	value, ok := rec[field]
	if !ok {
		return true
	}
	_, isStr := value.(string)
	return isStr
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
