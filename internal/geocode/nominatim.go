package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lnkbike/crashes/internal/cache"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/util"
	"github.com/lnkbike/crashes/internal/worker"
)

var (
	ErrNoMatch    = errors.New("no geocoding match")
	ErrAmbiguous  = errors.New("ambiguous geocoding result")
	ErrDisallowed = errors.New("geocoder disallows automated queries")
)

// sleepFunc is the sleep function used between retries (injectable for tests)
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Match is one candidate position returned by the geocoder
type Match struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Address    string  `json:"address"`
	Importance float64 `json:"importance"`
}

// Geocoder looks up a free-text query
type Geocoder interface {
	Search(ctx context.Context, query string) ([]Match, error)
}

// Nominatim queries an OpenStreetMap Nominatim server. Requests are checked
// against robots.txt, paced per host (slowed further by any crawl-delay),
// retried on transient failures and cached by query.
type Nominatim struct {
	baseURL    string
	userAgent  string
	email      string
	httpClient *http.Client
	pacer      *worker.Pacer
	robots     *util.RobotsChecker
	cache      cache.Cache
	cacheTTL   time.Duration
	maxRetries int
	log        logrus.FieldLogger
}

// NewNominatim creates a client from configuration. c may be nil to
// disable caching.
func NewNominatim(cfg model.GeocodeConfig, httpCfg model.HTTPConfig, c cache.Cache, cacheTTL time.Duration, log logrus.FieldLogger) *Nominatim {
	n := &Nominatim{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent: httpCfg.UserAgent,
		email:     cfg.Email,
		httpClient: &http.Client{
			Timeout: httpCfg.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy, httpCfg.NoProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		pacer:      worker.NewPacer(cfg.RequestsPerSecond, cfg.MinDelay, cfg.MaxDelay),
		cache:      c,
		cacheTTL:   cacheTTL,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}
	if n.maxRetries <= 0 {
		n.maxRetries = 1
	}
	if cfg.RespectRobots {
		n.robots = util.NewRobotsChecker(httpCfg.UserAgent, httpCfg.Timeout)
	}
	return n
}

type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

// Search returns the candidate positions for query, best first. An empty
// result is not an error.
func (n *Nominatim) Search(ctx context.Context, query string) ([]Match, error) {
	key := cache.Key("geocode", n.baseURL, query)
	if n.cache != nil {
		if data, ok := n.cache.Get(key); ok {
			var matches []Match
			if err := json.Unmarshal(data, &matches); err == nil {
				n.log.WithField("query", query).Debug("Geocoder cache hit")
				return matches, nil
			}
		}
	}

	searchURL := n.searchURL(query)
	if n.robots != nil {
		policy, err := n.robots.Check(ctx, searchURL)
		if err != nil {
			n.log.WithField("query", query).Debugf("robots.txt unavailable: %v", err)
		}
		if !policy.Allowed {
			return nil, ErrDisallowed
		}
		n.pacer.ObeyCrawlDelay(searchURL, policy.CrawlDelay)
	}

	var places []nominatimPlace
	var err error
	for attempt := 0; attempt < n.maxRetries; attempt++ {
		if err := n.pacer.Wait(ctx, searchURL); err != nil {
			return nil, err
		}
		var retry bool
		places, retry, err = n.fetch(ctx, searchURL)
		if err == nil || !retry {
			break
		}
		n.log.WithFields(logrus.Fields{
			"query":   query,
			"attempt": attempt + 1,
		}).Warnf("Geocoder request failed: %v", err)
		if attempt < n.maxRetries-1 {
			if sleepErr := sleepFunc(ctx, time.Duration(1<<uint(attempt))*time.Second); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(places))
	for _, p := range places {
		lat, latErr := strconv.ParseFloat(p.Lat, 64)
		lon, lonErr := strconv.ParseFloat(p.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		matches = append(matches, Match{Latitude: lat, Longitude: lon, Address: p.DisplayName, Importance: p.Importance})
	}

	if n.cache != nil {
		if data, err := json.Marshal(matches); err == nil {
			if err := n.cache.Set(key, data, n.cacheTTL); err != nil {
				n.log.Debugf("Geocoder cache write failed: %v", err)
			}
		}
	}
	return matches, nil
}

func (n *Nominatim) searchURL(query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", "5")
	params.Set("addressdetails", "0")
	if n.email != "" {
		params.Set("email", n.email)
	}
	return n.baseURL + "/search?" + params.Encode()
}

// fetch performs one request. The bool reports whether a failure is
// transient and worth retrying.
func (n *Nominatim) fetch(ctx context.Context, searchURL string) ([]nominatimPlace, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, isTransient(err), fmt.Errorf("geocode request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, false, fmt.Errorf("%w: status %d", ErrDisallowed, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	return places, false, nil
}

// isTransient reports whether a transport error is worth retrying
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "eof")
}
