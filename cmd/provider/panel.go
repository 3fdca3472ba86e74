package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PanelService is one entry of the panel's service list. Rate is per 1000.
type PanelService struct {
	ID       int             `json:"service"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Category string          `json:"category"`
	Rate     decimal.Decimal `json:"rate"`
	Min      int             `json:"min,string"`
	Max      int             `json:"max,string"`
}

type panelOrder struct {
	id        int64
	service   PanelService
	link      string
	quantity  int
	charge    decimal.Decimal
	startAt   int
	createdAt time.Time
	partial   bool
}

// MockPanel simulates an SMM panel speaking the v2 api. Orders move from
// Pending to In progress after startDelay and finish after runTime.
type MockPanel struct {
	mu          sync.Mutex
	apiKey      string
	currency    string
	balance     decimal.Decimal
	services    map[int]PanelService
	orders      map[int64]*panelOrder
	nextID      int64
	startDelay  time.Duration
	runTime     time.Duration
	partialRate float64
	rng         *rand.Rand
	now         func() time.Time
}

func NewMockPanel(apiKey string, balance decimal.Decimal, startDelay, runTime time.Duration, partialRate float64) *MockPanel {
	p := &MockPanel{
		apiKey:      apiKey,
		currency:    "USD",
		balance:     balance,
		services:    make(map[int]PanelService),
		orders:      make(map[int64]*panelOrder),
		nextID:      1000,
		startDelay:  startDelay,
		runTime:     runTime,
		partialRate: partialRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
	for _, s := range defaultServices() {
		p.services[s.ID] = s
	}
	return p
}

func defaultServices() []PanelService {
	return []PanelService{
		{ID: 101, Name: "Instagram Followers", Type: "Default", Category: "Instagram", Rate: decimal.RequireFromString("1.20"), Min: 50, Max: 100000},
		{ID: 102, Name: "Instagram Likes", Type: "Default", Category: "Instagram", Rate: decimal.RequireFromString("0.45"), Min: 10, Max: 50000},
		{ID: 201, Name: "TikTok Views", Type: "Default", Category: "TikTok", Rate: decimal.RequireFromString("0.05"), Min: 100, Max: 1000000},
		{ID: 301, Name: "YouTube Subscribers", Type: "Default", Category: "YouTube", Rate: decimal.RequireFromString("9.90"), Min: 20, Max: 10000},
	}
}

func panelError(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"error": msg})
}

// Handle serves every action on one endpoint, as real panels do.
func (p *MockPanel) Handle(c *gin.Context) {
	if c.PostForm("key") != p.apiKey {
		panelError(c, "Incorrect request key")
		return
	}

	action := c.PostForm("action")
	switch action {
	case "services":
		p.listServices(c)
	case "add":
		p.addOrder(c)
	case "status":
		p.orderStatus(c)
	case "balance":
		p.getBalance(c)
	default:
		panelError(c, "Incorrect action")
	}
}

func (p *MockPanel) listServices(c *gin.Context) {
	p.mu.Lock()
	out := make([]PanelService, 0, len(p.services))
	for _, s := range defaultServices() {
		if svc, ok := p.services[s.ID]; ok {
			out = append(out, svc)
		}
	}
	p.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (p *MockPanel) addOrder(c *gin.Context) {
	serviceID, err := strconv.Atoi(c.PostForm("service"))
	if err != nil {
		panelError(c, "Incorrect service ID")
		return
	}
	quantity, err := strconv.Atoi(c.PostForm("quantity"))
	if err != nil {
		panelError(c, "Incorrect quantity")
		return
	}
	link := c.PostForm("link")
	if link == "" {
		panelError(c, "Incorrect link")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	svc, ok := p.services[serviceID]
	if !ok {
		panelError(c, "Incorrect service ID")
		return
	}
	if quantity < svc.Min || quantity > svc.Max {
		panelError(c, fmt.Sprintf("Quantity must be between %d and %d", svc.Min, svc.Max))
		return
	}
	charge := svc.Rate.Mul(decimal.NewFromInt(int64(quantity))).Div(decimal.NewFromInt(1000)).Round(4)
	if p.balance.LessThan(charge) {
		panelError(c, "Not enough funds on balance")
		return
	}

	p.nextID++
	order := &panelOrder{
		id:        p.nextID,
		service:   svc,
		link:      link,
		quantity:  quantity,
		charge:    charge,
		startAt:   p.rng.Intn(5000),
		createdAt: p.now(),
		partial:   p.rng.Float64() < p.partialRate,
	}
	p.orders[order.id] = order
	p.balance = p.balance.Sub(charge)

	log.Info().
		Int64("order", order.id).
		Int("service", svc.ID).
		Int("quantity", quantity).
		Str("charge", charge.String()).
		Msg("order accepted")

	c.JSON(http.StatusOK, gin.H{"order": order.id})
}

func (p *MockPanel) orderStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.PostForm("order"), 10, 64)
	if err != nil {
		panelError(c, "Incorrect order ID")
		return
	}

	p.mu.Lock()
	order, ok := p.orders[id]
	var status, remains string
	if ok {
		status, remains = p.progress(order)
	}
	p.mu.Unlock()

	if !ok {
		panelError(c, "Incorrect order ID")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"charge":      order.charge.StringFixed(4),
		"start_count": strconv.Itoa(order.startAt),
		"status":      status,
		"remains":     remains,
		"currency":    p.currency,
	})
}

// progress derives the status from the order age.
func (p *MockPanel) progress(o *panelOrder) (status string, remains string) {
	age := p.now().Sub(o.createdAt)
	switch {
	case age < p.startDelay:
		return "Pending", strconv.Itoa(o.quantity)
	case age < p.startDelay+p.runTime:
		done := int(float64(o.quantity) * float64(age-p.startDelay) / float64(p.runTime))
		return "In progress", strconv.Itoa(o.quantity - done)
	case o.partial:
		return "Partial", strconv.Itoa(o.quantity / 3)
	default:
		return "Completed", "0"
	}
}

func (p *MockPanel) getBalance(c *gin.Context) {
	p.mu.Lock()
	balance := p.balance
	p.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"balance": balance.StringFixed(4), "currency": p.currency})
}

// SetupRouter mounts the panel on /api/v2 and a plain health check.
func SetupRouter(panel *MockPanel) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("action", c.PostForm("action")).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	router.POST("/api/v2", panel.Handle)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	return router
}
