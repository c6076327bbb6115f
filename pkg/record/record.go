// Package record implements record shaping, batch validation, and the
// deduplicating record store.
package record

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var batchesRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "refharvest_batches_rejected_total",
	Help: "Total batches dropped below the validity threshold",
})

// Record is a single collected item: field name to scalar value, with no
// fixed schema. Values come straight from the decoded JSON payload (string,
// float64, bool, or nil).
type Record map[string]any

// ValidThreshold is the fraction of a batch that must have all required
// fields present for the batch to be accepted. The threshold is inclusive.
const ValidThreshold = 0.6

// Processor projects raw result objects onto the configured field whitelist
// and validates batches against the required-field rule.
type Processor struct {
	fieldsToKeep   []string
	requiredFields []string
	logger         zerolog.Logger
}

// NewProcessor creates a processor for the given field whitelist and
// required-field set.
func NewProcessor(fieldsToKeep, requiredFields []string, logger zerolog.Logger) *Processor {
	return &Processor{
		fieldsToKeep:   fieldsToKeep,
		requiredFields: requiredFields,
		logger:         logger,
	}
}

// Project shapes raw result objects into Records containing only the
// configured whitelist. Missing source fields are kept as explicit nil
// values, not omitted keys. An empty whitelist passes items through
// unchanged. A missing or empty result list yields an empty batch.
func (p *Processor) Project(results []map[string]any) []Record {
	if len(results) == 0 {
		return nil
	}

	batch := make([]Record, 0, len(results))
	for _, raw := range results {
		if len(p.fieldsToKeep) == 0 {
			batch = append(batch, Record(raw))
			continue
		}
		shaped := make(Record, len(p.fieldsToKeep))
		for _, field := range p.fieldsToKeep {
			value, ok := raw[field]
			if !ok {
				shaped[field] = nil
				continue
			}
			shaped[field] = value
		}
		batch = append(batch, shaped)
	}
	return batch
}

// Validate accepts a batch only if at least 60% of its records have every
// required field present and non-empty. Rejected batches are dropped whole;
// there is no partial admission.
func (p *Processor) Validate(batch []Record) bool {
	if len(batch) == 0 {
		return false
	}

	valid := 0
	for _, rec := range batch {
		if hasRequiredFields(rec, p.requiredFields) {
			valid++
		}
	}

	ratio := float64(valid) / float64(len(batch))
	accepted := ratio >= ValidThreshold
	if !accepted {
		batchesRejectedTotal.Inc()
		p.logger.Warn().
			Int("batch_size", len(batch)).
			Int("valid", valid).
			Float64("ratio", ratio).
			Msg("Batch rejected below validity threshold")
	}
	return accepted
}

// hasRequiredFields reports whether every required field is present and
// non-empty. A nil value or empty string counts as absent.
func hasRequiredFields(rec Record, required []string) bool {
	for _, field := range required {
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
