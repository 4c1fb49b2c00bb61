package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter enforces the fetch admission discipline: a global in-flight
// ceiling plus a per-domain ceiling and request rate. Per-domain state is
// shared across concurrent queries so simultaneous queries for the same
// retailer queue fairly instead of multiplying load.
type Limiter struct {
	global  chan struct{}
	domains map[string]*domainGate
	perDom  int
	rps     float64
	mu      sync.Mutex
}

type domainGate struct {
	sem chan struct{}
	rl  *rate.Limiter
}

// NewLimiter creates a limiter with the given ceilings. perDomainRPS <= 0
// disables rate pacing and leaves only the concurrency gates.
func NewLimiter(global, perDomain int, perDomainRPS float64) *Limiter {
	if global < 1 {
		global = 1
	}
	if perDomain < 1 {
		perDomain = 1
	}
	return &Limiter{
		global:  make(chan struct{}, global),
		domains: make(map[string]*domainGate),
		perDom:  perDomain,
		rps:     perDomainRPS,
	}
}

func (l *Limiter) gate(domain string) *domainGate {
	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.domains[domain]
	if !ok {
		g = &domainGate{sem: make(chan struct{}, l.perDom)}
		if l.rps > 0 {
			g.rl = rate.NewLimiter(rate.Limit(l.rps), 1)
		}
		l.domains[domain] = g
	}
	return g
}

// Acquire blocks until a slot for domain is admitted or ctx is done. The
// returned release func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context, domain string) (func(), error) {
	select {
	case l.global <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g := l.gate(domain)
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		<-l.global
		return nil, ctx.Err()
	}

	if g.rl != nil {
		if err := g.rl.Wait(ctx); err != nil {
			<-g.sem
			<-l.global
			return nil, err
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			<-g.sem
			<-l.global
		})
	}
	return release, nil
}

// InFlight reports the number of admitted fetches for domain. Used by
// tests to verify the ceiling holds.
func (l *Limiter) InFlight(domain string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	g, ok := l.domains[domain]
	if !ok {
		return 0
	}
	return len(g.sem)
}
