package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nimasrn/smm-storefront/internal/model"
	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/nimasrn/smm-storefront/pkg/prom"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
)

var (
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrRejected means the panel answered with an error body. Retrying the
	// same request will not change the answer.
	ErrRejected = errors.New("provider rejected request")
)

const (
	ActionAdd     = "add"
	ActionStatus  = "status"
	ActionBalance = "balance"
)

type AddOrderRequest struct {
	Service  string
	Link     string
	Quantity int
}

type AddOrderResponse struct {
	OrderID string
	Raw     json.RawMessage
}

// OrderStatus is the panel's view of an order. Numeric fields arrive as
// strings on most panels.
type OrderStatus struct {
	Charge     string          `json:"charge"`
	StartCount string          `json:"start_count"`
	Status     string          `json:"status"`
	Remains    string          `json:"remains"`
	Currency   string          `json:"currency"`
	Raw        json.RawMessage `json:"-"`
}

type Balance struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// MapStatus translates a panel status into an order status. ok is false for
// statuses the store does not know.
func MapStatus(providerStatus string) (model.OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "pending", "in progress", "processing":
		return model.OrderStatusProcessing, true
	case "completed":
		return model.OrderStatusCompleted, true
	case "partial", "canceled", "cancelled":
		return model.OrderStatusFailed, true
	}
	return "", false
}

type ProviderMetrics struct {
	TotalRequests    atomic.Int64
	SuccessfulReqs   atomic.Int64
	FailedReqs       atomic.Int64
	TotalLatencyMs   atomic.Int64
	LastLatencyMs    atomic.Int64
	ConsecutiveFails atomic.Int32
	LastErrorTime    atomic.Int64
	LastSuccessTime  atomic.Int64

	mu             sync.RWMutex
	latencyHistory []int64
	maxHistorySize int
}

func NewProviderMetrics() *ProviderMetrics {
	return &ProviderMetrics{
		latencyHistory: make([]int64, 0, 100),
		maxHistorySize: 100,
	}
}

func (m *ProviderMetrics) RecordSuccess(latencyMs int64) {
	m.TotalRequests.Add(1)
	m.SuccessfulReqs.Add(1)
	m.TotalLatencyMs.Add(latencyMs)
	m.LastLatencyMs.Store(latencyMs)
	m.ConsecutiveFails.Store(0)
	m.LastSuccessTime.Store(time.Now().Unix())

	m.mu.Lock()
	if len(m.latencyHistory) >= m.maxHistorySize {
		m.latencyHistory = m.latencyHistory[1:]
	}
	m.latencyHistory = append(m.latencyHistory, latencyMs)
	m.mu.Unlock()
}

func (m *ProviderMetrics) RecordFailure() {
	m.TotalRequests.Add(1)
	m.FailedReqs.Add(1)
	m.ConsecutiveFails.Add(1)
	m.LastErrorTime.Store(time.Now().Unix())
}

func (m *ProviderMetrics) AvgLatencyMs() int64 {
	ok := m.SuccessfulReqs.Load()
	if ok == 0 {
		return 0
	}
	return m.TotalLatencyMs.Load() / ok
}

func (m *ProviderMetrics) SuccessRate() float64 {
	total := m.TotalRequests.Load()
	if total == 0 {
		return 1.0
	}
	return float64(m.SuccessfulReqs.Load()) / float64(total)
}

func (m *ProviderMetrics) P95LatencyMs() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencyHistory) == 0 {
		return 0
	}

	sorted := make([]int64, len(m.latencyHistory))
	copy(sorted, m.latencyHistory)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type ProviderState int

const (
	StateHealthy ProviderState = iota
	StateDegraded
	StateUnhealthy
	StateCircuitOpen
)

// Provider is one SMM panel reachable at a single endpoint with one key.
type Provider struct {
	name             string
	url              string
	apiKey           string
	client           *fasthttp.Client
	metrics          *ProviderMetrics
	state            atomic.Int32
	weight           atomic.Int32
	lastHealthCheck  atomic.Int64
	circuitOpenUntil atomic.Int64
}

func NewProvider(name, url, apiKey string, weight int, client *fasthttp.Client) *Provider {
	p := &Provider{
		name:    name,
		url:     url,
		apiKey:  apiKey,
		client:  client,
		metrics: NewProviderMetrics(),
	}
	p.state.Store(int32(StateHealthy))
	p.weight.Store(int32(weight))
	return p
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) GetState() ProviderState {
	return ProviderState(p.state.Load())
}

func (p *Provider) SetState(state ProviderState) {
	p.state.Store(int32(state))
}

func (p *Provider) IsAvailable() bool {
	state := p.GetState()
	if state == StateCircuitOpen {
		if time.Now().Unix() > p.circuitOpenUntil.Load() {
			p.SetState(StateDegraded)
			return true
		}
		return false
	}
	return state != StateUnhealthy
}

// CalculateScore rates a provider for the stats report, higher is better.
func (p *Provider) CalculateScore() float64 {
	if !p.IsAvailable() {
		return 0.0
	}

	metrics := p.metrics
	baseWeight := float64(p.weight.Load())

	successScore := metrics.SuccessRate() * 100

	// 0ms = 100 points, 5000ms and above = 0 points
	latencyScore := 100.0
	if avg := metrics.AvgLatencyMs(); avg > 0 {
		latencyScore = 100.0 * (1.0 - (float64(avg) / 5000.0))
		if latencyScore < 0 {
			latencyScore = 0
		}
	}

	recentPenalty := 1.0 - (float64(metrics.ConsecutiveFails.Load()) * 0.1)
	if recentPenalty < 0.1 {
		recentPenalty = 0.1
	}

	statePenalty := 1.0
	switch p.GetState() {
	case StateDegraded:
		statePenalty = 0.5
	case StateUnhealthy, StateCircuitOpen:
		statePenalty = 0.0
	}

	return (successScore*0.4 + latencyScore*0.4 + baseWeight*0.2) * recentPenalty * statePenalty
}

type Config struct {
	Providers               []ProviderConfig
	Default                 string
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	ReadBufferSize          int
	WriteBufferSize         int
	HealthCheckInterval     time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
	// Dial overrides the transport; tests plug an in-memory listener here.
	Dial fasthttp.DialFunc
}

type ProviderConfig struct {
	Name   string
	URL    string
	APIKey string
	Weight int
}

// ProvidersFromCredentials builds provider configs from the stored panel
// credentials. fallback is appended when no stored row carries its name.
func ProvidersFromCredentials(creds []*model.APICredential, fallback ProviderConfig) []ProviderConfig {
	out := make([]ProviderConfig, 0, len(creds)+1)
	seen := make(map[string]bool, len(creds))
	for _, c := range creds {
		out = append(out, ProviderConfig{Name: c.Provider, URL: c.APIURL, APIKey: c.APIKey, Weight: 100})
		seen[c.Provider] = true
	}
	if fallback.Name != "" && fallback.URL != "" && !seen[fallback.Name] {
		if fallback.Weight == 0 {
			fallback.Weight = 100
		}
		out = append(out, fallback)
	}
	return out
}

type Client struct {
	config    *Config
	providers map[string]*Provider
	order     []*Provider
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}

	client := &Client{
		config:    config,
		providers: make(map[string]*Provider, len(config.Providers)),
		stopCh:    make(chan struct{}),
	}

	for _, pc := range config.Providers {
		if pc.Name == "" || pc.URL == "" {
			return nil, errors.Errorf("provider %q needs a name and an url", pc.Name)
		}
		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			ReadBufferSize:      config.ReadBufferSize,
			WriteBufferSize:     config.WriteBufferSize,
			Dial:                config.Dial,
		}

		provider := NewProvider(pc.Name, strings.TrimRight(pc.URL, "/"), pc.APIKey, pc.Weight, httpClient)
		client.providers[pc.Name] = provider
		client.order = append(client.order, provider)

		logger.Info("provider initialized", "name", pc.Name, "url", pc.URL, "weight", pc.Weight)
	}
	if config.Default == "" {
		config.Default = config.Providers[0].Name
	}

	if config.HealthCheckInterval > 0 {
		client.wg.Add(2)
		go client.healthChecker()
		go client.metricsCollector()
	}

	logger.Info("provider client initialized", "providers", len(client.order), "default", config.Default, "timeout", config.Timeout)
	return client, nil
}

// Resolve returns the provider registered under name, or the default one
// when name is empty.
func (c *Client) Resolve(name string) (*Provider, error) {
	if name == "" {
		name = c.config.Default
	}
	provider, ok := c.providers[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownProvider, name)
	}
	if !provider.IsAvailable() {
		return nil, errors.Wrapf(ErrProviderUnavailable, "%s is %s", name, stateString(provider.GetState()))
	}
	return provider, nil
}

// AddOrder submits an order to the panel. It is never retried here: a
// request that timed out may still have created the order upstream.
func (c *Client) AddOrder(ctx context.Context, providerName string, req AddOrderRequest) (*AddOrderResponse, error) {
	provider, err := c.Resolve(providerName)
	if err != nil {
		return nil, err
	}

	body, err := c.call(ctx, provider, ActionAdd, map[string]string{
		"service":  req.Service,
		"link":     req.Link,
		"quantity": strconv.Itoa(req.Quantity),
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Order json.Number `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decode add response")
	}
	if resp.Order == "" {
		return nil, errors.Wrapf(ErrRejected, "no order id in %s", body)
	}

	logger.Info("order submitted to provider", "provider", provider.name, "api_order_id", resp.Order.String(), "service", req.Service)
	return &AddOrderResponse{OrderID: resp.Order.String(), Raw: body}, nil
}

// GetOrderStatus polls the panel for one order, retrying transport errors.
func (c *Client) GetOrderStatus(ctx context.Context, providerName, apiOrderID string) (*OrderStatus, error) {
	body, err := c.callWithRetry(ctx, providerName, ActionStatus, map[string]string{"order": apiOrderID})
	if err != nil {
		return nil, err
	}

	status := &OrderStatus{}
	if err := json.Unmarshal(body, status); err != nil {
		return nil, errors.Wrap(err, "decode status response")
	}
	status.Raw = body
	return status, nil
}

func (c *Client) GetBalance(ctx context.Context, providerName string) (*Balance, error) {
	body, err := c.callWithRetry(ctx, providerName, ActionBalance, nil)
	if err != nil {
		return nil, err
	}

	balance := &Balance{}
	if err := json.Unmarshal(body, balance); err != nil {
		return nil, errors.Wrap(err, "decode balance response")
	}
	return balance, nil
}

func (c *Client) callWithRetry(ctx context.Context, providerName, action string, params map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		provider, err := c.Resolve(providerName)
		if err != nil {
			if errors.Is(err, ErrUnknownProvider) {
				return nil, err
			}
			lastErr = err
			continue
		}

		body, err := c.call(ctx, provider, action, params)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrRejected) {
			return nil, err
		}
		logger.Warn("provider request failed, retrying", "provider", provider.name, "action", action, "attempt", attempt+1, "error", err)
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "failed after %d attempts", c.config.MaxRetries+1)
}

// call performs one panel request and keeps the provider's health and
// circuit breaker current. A panel error body comes back as ErrRejected
// and counts as a healthy round trip.
func (c *Client) call(ctx context.Context, provider *Provider, action string, params map[string]string) ([]byte, error) {
	start := time.Now()
	body, err := c.doRequest(ctx, provider, action, params)
	elapsed := time.Since(start)
	prom.ObserveProviderRequest(provider.name, action, elapsed.Seconds())

	if err != nil {
		provider.metrics.RecordFailure()
		c.checkCircuitBreaker(provider)
		return nil, err
	}
	provider.metrics.RecordSuccess(elapsed.Milliseconds())

	var panelErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &panelErr) == nil && panelErr.Error != "" {
		return nil, errors.Wrap(ErrRejected, panelErr.Error)
	}
	return body, nil
}

// doRequest posts the form-encoded v2 panel request.
func (c *Client) doRequest(ctx context.Context, provider *Provider, action string, params map[string]string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("key", provider.apiKey)
	args.Set("action", action)
	for k, v := range params {
		args.Set(k, v)
	}

	req.SetRequestURI(provider.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBody(args.QueryString())

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := provider.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, errors.Wrap(err, "request failed")
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())
	return result, nil
}

func (c *Client) checkCircuitBreaker(provider *Provider) {
	if c.config.CircuitBreakerThreshold <= 0 {
		return
	}
	fails := provider.metrics.ConsecutiveFails.Load()
	if fails >= int32(c.config.CircuitBreakerThreshold) {
		provider.SetState(StateCircuitOpen)
		provider.circuitOpenUntil.Store(time.Now().Add(c.config.CircuitBreakerTimeout).Unix())

		logger.Warn("circuit breaker opened", "provider", provider.name, "consecutive_fails", fails, "timeout", c.config.CircuitBreakerTimeout)
	}
}

func (c *Client) healthChecker() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performHealthChecks()
		case <-c.stopCh:
			return
		}
	}
}

// performHealthChecks asks every panel for its balance; any well-formed
// answer counts as healthy.
func (c *Client) performHealthChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	for _, provider := range c.order {
		if provider.GetState() == StateCircuitOpen {
			continue
		}
		healthy := c.checkProviderHealth(ctx, provider)
		provider.lastHealthCheck.Store(time.Now().Unix())

		oldState := provider.GetState()
		newState := oldState
		if healthy {
			if oldState == StateUnhealthy {
				newState = StateHealthy
			}
		} else {
			newState = StateUnhealthy
		}

		if newState != oldState {
			provider.SetState(newState)
			logger.Info("provider state changed", "provider", provider.name, "old_state", stateString(oldState), "new_state", stateString(newState))
		}
	}
}

func (c *Client) checkProviderHealth(ctx context.Context, provider *Provider) bool {
	body, err := c.doRequest(ctx, provider, ActionBalance, nil)
	if err != nil {
		return false
	}
	var balance struct {
		Balance json.Number `json:"balance"`
	}
	return json.Unmarshal(body, &balance) == nil && balance.Balance != ""
}

func (c *Client) metricsCollector() {
	defer c.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evaluateProviders()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) evaluateProviders() {
	for _, provider := range c.order {
		state := provider.GetState()
		if state == StateCircuitOpen || state == StateUnhealthy {
			continue
		}

		successRate := provider.metrics.SuccessRate()
		avgLatency := provider.metrics.AvgLatencyMs()

		if successRate < 0.8 || avgLatency > 5000 {
			if state != StateDegraded {
				provider.SetState(StateDegraded)
				logger.Warn("provider degraded", "provider", provider.name, "success_rate", successRate, "avg_latency_ms", avgLatency)
			}
		} else if successRate > 0.95 && avgLatency < 2000 && state != StateHealthy {
			provider.SetState(StateHealthy)
			logger.Info("provider recovered", "provider", provider.name)
		}
	}
}

type ProviderStats struct {
	Name             string  `json:"name"`
	URL              string  `json:"url"`
	State            string  `json:"state"`
	Score            float64 `json:"score"`
	TotalRequests    int64   `json:"total_requests"`
	SuccessfulReqs   int64   `json:"successful_requests"`
	FailedReqs       int64   `json:"failed_requests"`
	SuccessRate      float64 `json:"success_rate"`
	AvgLatencyMs     int64   `json:"avg_latency_ms"`
	P95LatencyMs     int64   `json:"p95_latency_ms"`
	LastLatencyMs    int64   `json:"last_latency_ms"`
	ConsecutiveFails int32   `json:"consecutive_fails"`
}

// GetProviderStats reports every provider, best score first.
func (c *Client) GetProviderStats() []ProviderStats {
	stats := make([]ProviderStats, 0, len(c.order))
	for _, provider := range c.order {
		stats = append(stats, ProviderStats{
			Name:             provider.name,
			URL:              provider.url,
			State:            stateString(provider.GetState()),
			Score:            provider.CalculateScore(),
			TotalRequests:    provider.metrics.TotalRequests.Load(),
			SuccessfulReqs:   provider.metrics.SuccessfulReqs.Load(),
			FailedReqs:       provider.metrics.FailedReqs.Load(),
			SuccessRate:      provider.metrics.SuccessRate(),
			AvgLatencyMs:     provider.metrics.AvgLatencyMs(),
			P95LatencyMs:     provider.metrics.P95LatencyMs(),
			LastLatencyMs:    provider.metrics.LastLatencyMs.Load(),
			ConsecutiveFails: provider.metrics.ConsecutiveFails.Load(),
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Score > stats[j].Score
	})
	return stats
}

func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	logger.Info("provider client closed")
	return nil
}

func stateString(state ProviderState) string {
	switch state {
	case StateHealthy:
		return "HEALTHY"
	case StateDegraded:
		return "DEGRADED"
	case StateUnhealthy:
		return "UNHEALTHY"
	case StateCircuitOpen:
		return "CIRCUIT_OPEN"
	default:
		return "UNKNOWN"
	}
}
