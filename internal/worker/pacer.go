package worker

import (
	"context"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out requests per host. Each host gets its own token bucket,
// and every request then waits a random gap in [minGap, maxGap] so
// successive requests do not arrive on a fixed beat.
type Pacer struct {
	mu     sync.Mutex
	hosts  map[string]*rate.Limiter
	limit  rate.Limit
	minGap time.Duration
	maxGap time.Duration
}

// NewPacer creates a pacer allowing requestsPerSecond to each host
func NewPacer(requestsPerSecond float64, minGap, maxGap time.Duration) *Pacer {
	if maxGap < minGap {
		maxGap = minGap
	}
	return &Pacer{
		hosts:  make(map[string]*rate.Limiter),
		limit:  rate.Limit(requestsPerSecond),
		minGap: minGap,
		maxGap: maxGap,
	}
}

// Wait blocks until a request to rawURL may be sent
func (p *Pacer) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	if err := p.host(host).Wait(ctx); err != nil {
		return err
	}

	gap := Jitter(p.minGap, p.maxGap)
	if gap <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(gap):
		return nil
	}
}

// ObeyCrawlDelay limits the host of rawURL to one request per delay. It
// never speeds a host up.
func (p *Pacer) ObeyCrawlDelay(rawURL string, delay time.Duration) {
	host, err := hostOf(rawURL)
	if err != nil || delay <= 0 {
		return
	}
	l := p.host(host)
	if limit := rate.Every(delay); limit < l.Limit() {
		l.SetLimit(limit)
	}
}

// Interval returns the minimum spacing enforced for the host of rawURL,
// not counting the random gap
func (p *Pacer) Interval(rawURL string) time.Duration {
	host, err := hostOf(rawURL)
	if err != nil {
		return 0
	}
	limit := p.host(host).Limit()
	if limit == rate.Inf || limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(limit))
}

func (p *Pacer) host(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.hosts[host]
	if !ok {
		l = rate.NewLimiter(p.limit, 1)
		p.hosts[host] = l
	}
	return l
}

func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}

// Jitter returns a random duration in [minDelay, maxDelay]
func Jitter(minDelay, maxDelay time.Duration) time.Duration {
	if maxDelay <= minDelay {
		return minDelay
	}
	return minDelay + rand.N(maxDelay-minDelay+1)
}
