// Package collector runs the adaptive collection loop: assess quality,
// review pacing, fetch a page, shape and store records, then wait.
package collector

import (
	"time"
)

// Stats accumulates request accounting over a run. It implements the
// fetcher's Recorder interface and is serialized into the run summary.
type Stats struct {
	StartTime          time.Time `json:"start_time"`
	TotalRequests      int       `json:"total_requests"`
	SuccessfulRequests int       `json:"successful_requests"`
	FailedRequests     int       `json:"failed_requests"`
	PagesFetched       int       `json:"pages_fetched"`
	QualityScore       float64   `json:"data_quality_score"`
}

// NewStats creates stats stamped with the current time.
func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

// RequestStarted counts one logical page request.
func (s *Stats) RequestStarted() {
	s.TotalRequests++
}

// RequestSucceeded counts one successful page response.
func (s *Stats) RequestSucceeded() {
	s.SuccessfulRequests++
}

// RequestFailed counts one failed attempt. Retried attempts each count.
func (s *Stats) RequestFailed() {
	s.FailedRequests++
}

// PageFetched counts one captured page payload.
func (s *Stats) PageFetched() {
	s.PagesFetched++
}

// SuccessRate returns successful requests over total requests. With no
// requests yet the rate is 0.
func (s *Stats) SuccessRate() float64 {
	total := s.TotalRequests
	if total < 1 {
		total = 1
	}
	return float64(s.SuccessfulRequests) / float64(total)
}

// Elapsed returns the wall-clock duration since the run started.
func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.StartTime)
}
