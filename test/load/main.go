// Command load drives a storefront session mix against a running API: browse
// the catalog, place orders, poll order history and the ledger summary. It
// reports latency per endpoint and checks that order placement is throttled
// to the configured per-user budget while reads are never throttled.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type action struct {
	name   string
	method string
	path   string
	weight int
	body   func() []byte
}

type orderPayload struct {
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity"`
	TargetURL string `json:"target_url"`
}

type config struct {
	baseURL   string
	token     string
	rps       int
	duration  time.Duration
	workers   int
	perMinute int
	burst     int
	serviceID string
	quantity  int
	target    string
}

type endpointStats struct {
	mu        sync.Mutex
	byStatus  map[int]int
	transport int
	latencies []time.Duration
}

func (s *endpointStats) record(status int, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		s.transport++
	} else {
		s.byStatus[status]++
	}
	s.latencies = append(s.latencies, took)
}

func (s *endpointStats) total() int {
	n := s.transport
	for _, c := range s.byStatus {
		n += c
	}
	return n
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func loadConfig() config {
	return config{
		baseURL:   strings.TrimRight(envString("API_URL", "http://localhost:8080/api/v1"), "/"),
		token:     os.Getenv("AUTH_TOKEN"),
		rps:       envInt("REQUESTS_PER_SECOND", 50),
		duration:  time.Duration(envInt("DURATION_SECONDS", 30)) * time.Second,
		workers:   envInt("CONCURRENT_WORKERS", 20),
		perMinute: envInt("RATE_LIMIT_PER_MINUTE", 30),
		burst:     envInt("RATE_LIMIT_BURST", 5),
		serviceID: envString("SERVICE_ID", "6f1b1c2e-3a4d-4c5e-8f60-7a8b9c0d1e01"),
		quantity:  envInt("QUANTITY", 100),
		target:    envString("ORDER_TARGET", "https://instagram.com/loadtest"),
	}
}

func scenario(cfg config) []action {
	order, _ := json.Marshal(orderPayload{ServiceID: cfg.serviceID, Quantity: cfg.quantity, TargetURL: cfg.target})
	return []action{
		{name: "list services", method: http.MethodGet, path: "/services", weight: 4},
		{name: "place order", method: http.MethodPost, path: "/orders", weight: 3, body: func() []byte { return order }},
		{name: "list orders", method: http.MethodGet, path: "/orders?limit=20", weight: 2},
		{name: "ledger summary", method: http.MethodGet, path: "/transactions/summary", weight: 1},
	}
}

func pick(actions []action, rnd *rand.Rand, totalWeight int) action {
	n := rnd.Intn(totalWeight)
	for _, a := range actions {
		if n < a.weight {
			return a
		}
		n -= a.weight
	}
	return actions[len(actions)-1]
}

func do(ctx context.Context, client *http.Client, cfg config, a action) (int, time.Duration) {
	var body io.Reader
	if a.body != nil {
		body = bytes.NewReader(a.body())
	}
	req, err := http.NewRequestWithContext(ctx, a.method, cfg.baseURL+a.path, body)
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Authorization", "Bearer "+cfg.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	took := time.Since(start)
	if err != nil {
		return 0, took
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, took
}

func main() {
	cfg := loadConfig()
	if cfg.token == "" {
		fmt.Println("AUTH_TOKEN is required, issue one with: cli issue-token --user=<uuid> --email=<email>")
		os.Exit(1)
	}

	actions := scenario(cfg)
	totalWeight := 0
	stats := make(map[string]*endpointStats, len(actions))
	for _, a := range actions {
		totalWeight += a.weight
		stats[a.name] = &endpointStats{byStatus: make(map[int]int)}
	}

	fmt.Printf("storefront load: %s, %d rps for %s, %d workers\n", cfg.baseURL, cfg.rps, cfg.duration, cfg.workers)
	fmt.Println(strings.Repeat("-", 60))

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        cfg.workers,
			MaxIdleConnsPerHost: cfg.workers,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()
	pacer := rate.NewLimiter(rate.Limit(cfg.rps), cfg.rps)

	started := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for pacer.Wait(ctx) == nil {
				a := pick(actions, rnd, totalWeight)
				status, took := do(ctx, client, cfg, a)
				if ctx.Err() != nil && status == 0 {
					return
				}
				stats[a.name].record(status, took)
			}
		}(time.Now().UnixNano() + int64(w))
	}

	progress := time.NewTicker(5 * time.Second)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
wait:
	for {
		select {
		case <-progress.C:
			placed := stats["place order"]
			placed.mu.Lock()
			fmt.Printf("[%3.0fs] placed=%d limited=%d\n", time.Since(started).Seconds(), placed.byStatus[http.StatusCreated], placed.byStatus[http.StatusTooManyRequests])
			placed.mu.Unlock()
		case <-done:
			break wait
		}
	}
	progress.Stop()
	elapsed := time.Since(started)

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Printf("%-16s %7s %7s %7s %7s %9s %9s\n", "endpoint", "total", "2xx", "429", "other", "p50", "p95")
	var requests int
	for _, a := range actions {
		s := stats[a.name]
		sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
		ok := 0
		for code, c := range s.byStatus {
			if code >= 200 && code < 300 {
				ok += c
			}
		}
		limited := s.byStatus[http.StatusTooManyRequests]
		total := s.total()
		requests += total
		fmt.Printf("%-16s %7d %7d %7d %7d %9s %9s\n", a.name, total, ok, limited, total-ok-limited,
			percentile(s.latencies, 0.50).Round(time.Microsecond), percentile(s.latencies, 0.95).Round(time.Microsecond))
	}
	fmt.Printf("\n%d requests in %s (%.1f rps)\n", requests, elapsed.Round(time.Millisecond), float64(requests)/elapsed.Seconds())

	// One token means one limiter bucket: the burst plus the refill over the run.
	placed := stats["place order"].byStatus[http.StatusCreated]
	budget := cfg.burst + int(float64(cfg.perMinute)*elapsed.Minutes()) + 1
	fmt.Printf("orders placed %d, per-user budget %d\n", placed, budget)

	failed := false
	if placed > budget {
		fmt.Println("FAIL: order placement exceeded the rate limit budget")
		failed = true
	}
	for _, a := range actions {
		if a.method == http.MethodGet && stats[a.name].byStatus[http.StatusTooManyRequests] > 0 {
			fmt.Printf("FAIL: %s was rate limited\n", a.name)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
