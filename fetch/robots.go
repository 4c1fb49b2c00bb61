package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// Robots consults and caches per-domain robots.txt policy. A domain is
// consulted at most once per process; fetch errors default to allowing,
// matching crawler convention for unreachable policy files.
type Robots struct {
	client    *http.Client
	userAgent string
	policies  map[string]*robotstxt.RobotsData
	mu        sync.Mutex
	logger    *zap.Logger
}

// NewRobots creates a robots.txt checker.
func NewRobots(client *http.Client, userAgent string, logger *zap.Logger) *Robots {
	return &Robots{
		client:    client,
		userAgent: userAgent,
		policies:  make(map[string]*robotstxt.RobotsData),
		logger:    logger,
	}
}

// Allowed reports whether the user agent may fetch rawURL under the
// domain's robots policy.
func (r *Robots) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	data := r.policy(ctx, u.Host)
	if data == nil {
		return true
	}
	return data.FindGroup(r.userAgent).Test(u.Path)
}

func (r *Robots) policy(ctx context.Context, host string) *robotstxt.RobotsData {
	r.mu.Lock()
	if data, ok := r.policies[host]; ok {
		r.mu.Unlock()
		return data
	}
	r.mu.Unlock()

	data := r.load(ctx, host)

	r.mu.Lock()
	r.policies[host] = data
	r.mu.Unlock()
	return data
}

func (r *Robots) load(ctx context.Context, host string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("robots.txt unreachable", zap.String("host", host), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		r.logger.Debug("robots.txt unparsable", zap.String("host", host), zap.Error(err))
		return nil
	}
	return data
}
