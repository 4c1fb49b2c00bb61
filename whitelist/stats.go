package whitelist

import (
	"sync"
)

// DomainStats tracks per-domain extraction outcomes across queries. The
// success rate feeds the combined whitelist score so domains that keep
// failing sink in the ranking.
type DomainStats struct {
	success map[string]int
	failure map[string]int
	mu      sync.RWMutex
}

// NewDomainStats creates an empty tracker.
func NewDomainStats() *DomainStats {
	return &DomainStats{
		success: make(map[string]int),
		failure: make(map[string]int),
	}
}

// RecordSuccess notes that a page from domain produced a usable record.
func (s *DomainStats) RecordSuccess(domain string) {
	domain = NormalizeDomain(domain)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.success[domain]++
}

// RecordFailure notes a fetch or extraction failure for domain.
func (s *DomainStats) RecordFailure(domain string) {
	domain = NormalizeDomain(domain)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failure[domain]++
}

// Successes returns the number of usable records domain has produced.
func (s *DomainStats) Successes(domain string) int {
	domain = NormalizeDomain(domain)
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.success[domain]
}

// SuccessRate returns the observed success ratio for domain. Unknown
// domains score 1.0 so new candidates are not penalized.
func (s *DomainStats) SuccessRate(domain string) float64 {
	domain = NormalizeDomain(domain)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok := s.success[domain]
	bad := s.failure[domain]
	if ok+bad == 0 {
		return 1.0
	}
	return float64(ok) / float64(ok+bad)
}
