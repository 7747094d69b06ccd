package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewProxyFunc(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.internal:3128", "http://secure.internal:3128", "nominatim.local,.corp")

	tests := []struct {
		url  string
		want string
	}{
		{"http://geocode.example/search", "http://proxy.internal:3128"},
		{"https://geocode.example/search", "http://secure.internal:3128"},
		{"https://nominatim.local/search", ""},
		{"https://maps.corp/search", ""},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.url)
		got, err := proxy(&http.Request{URL: u})
		if err != nil {
			t.Fatalf("%s: %v", tt.url, err)
		}
		gotStr := ""
		if got != nil {
			gotStr = got.String()
		}
		if gotStr != tt.want {
			t.Errorf("%s: expected proxy %q, got %q", tt.url, tt.want, gotStr)
		}
	}
}

func TestNewProxyFunc_FallsBackToEnvironment(t *testing.T) {
	proxy := NewProxyFunc("", "", "")
	if proxy == nil {
		t.Fatal("expected a proxy func")
	}
}

func TestRobotsChecker(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fetches.Add(1)
		_, _ = w.Write([]byte("User-agent: crashes\nDisallow: /reverse\nCrawl-delay: 2\n\nUser-agent: *\nDisallow: /\n"))
	}))
	defer srv.Close()

	rc := NewRobotsChecker("crashes/0.4 (+https://github.com/lnkbike/crashes)", time.Second)

	policy, err := rc.Check(context.Background(), srv.URL+"/search?q=27th")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !policy.Allowed {
		t.Error("expected /search to be allowed for our agent")
	}
	if policy.CrawlDelay != 2*time.Second {
		t.Errorf("expected 2s crawl delay, got %v", policy.CrawlDelay)
	}

	policy, _ = rc.Check(context.Background(), srv.URL+"/reverse?lat=1")
	if policy.Allowed {
		t.Error("expected /reverse to be disallowed")
	}

	if n := fetches.Load(); n != 1 {
		t.Errorf("expected robots.txt fetched once, got %d", n)
	}

	rc.Clear()
	_, _ = rc.Check(context.Background(), srv.URL+"/search")
	if n := fetches.Load(); n != 2 {
		t.Errorf("expected refetch after Clear, got %d fetches", n)
	}
}

func TestRobotsChecker_StatusCodes(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	policy, err := NewRobotsChecker("crashes", time.Second).Check(context.Background(), srv.URL+"/search")
	if err != nil || !policy.Allowed {
		t.Errorf("missing robots.txt should allow, got %+v %v", policy, err)
	}

	status = http.StatusServiceUnavailable
	policy, err = NewRobotsChecker("crashes", time.Second).Check(context.Background(), srv.URL+"/search")
	if err != nil || policy.Allowed {
		t.Errorf("server error should disallow, got %+v %v", policy, err)
	}
}

func TestRobotsChecker_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	policy, err := NewRobotsChecker("crashes", 200*time.Millisecond).Check(context.Background(), addr+"/search")
	if err == nil {
		t.Error("expected fetch error to be reported")
	}
	if !policy.Allowed {
		t.Error("unreachable robots.txt should allow")
	}
}

func TestNormalizeUserAgent(t *testing.T) {
	tests := map[string]string{
		"crashes/0.4 (+https://github.com/lnkbike/crashes)": "crashes",
		"crashes": "crashes",
		"":        "",
	}
	for in, want := range tests {
		if got := NormalizeUserAgent(in); got != want {
			t.Errorf("NormalizeUserAgent(%q) = %q, want %q", in, got, want)
		}
	}
}
