package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for store operations.
var (
	recordsStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refharvest_records_stored_total",
		Help: "Total records accepted into the store",
	})

	duplicatesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refharvest_duplicates_skipped_total",
		Help: "Total records rejected as duplicates by identity digest",
	})
)

// Store is an insertion-ordered sequence of accepted records with an identity
// digest set for O(1) duplicate rejection. It grows monotonically within a
// run and is owned by the single collection loop; no locking.
type Store struct {
	keyFields []string
	records   []Record
	seen      map[string]struct{}
	logger    zerolog.Logger
}

// NewStore creates a store deduplicating on the given key fields.
func NewStore(keyFields []string, logger zerolog.Logger) *Store {
	return &Store{
		keyFields: keyFields,
		seen:      make(map[string]struct{}),
		logger:    logger,
	}
}

// Add appends the batch's unique records and returns how many were new.
// Records whose identity digest has already been seen this run are skipped.
func (s *Store) Add(batch []Record) int {
	added := 0
	for _, rec := range batch {
		digest := s.identityDigest(rec)
		if _, dup := s.seen[digest]; dup {
			duplicatesSkippedTotal.Inc()
			continue
		}
		s.seen[digest] = struct{}{}
		s.records = append(s.records, rec)
		added++
	}
	recordsStoredTotal.Add(float64(added))

	s.logger.Info().
		Int("added", added).
		Int("total", len(s.records)).
		Msg("Stored new records")

	return added
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns the stored records in insertion order. The slice is shared
// with the store; callers must not mutate it.
func (s *Store) Records() []Record {
	return s.records
}

// identityDigest computes the sha256 digest over the pipe-joined string
// values of the dedupe key fields. A missing or nil key field contributes an
// empty string rather than erroring.
func (s *Store) identityDigest(rec Record) string {
	parts := make([]string, 0, len(s.keyFields))
	for _, field := range s.keyFields {
		value, ok := rec[field]
		if !ok || value == nil {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", value))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
