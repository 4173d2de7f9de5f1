package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradingagent/internal/exchange"
	"tradingagent/internal/models"
)

// fakeStore - in-memory Store для модульных тестов воркера, без БД.
type fakeStore struct {
	mu     sync.Mutex
	agent  *models.Agent
	trades []*models.Trade
}

func newFakeStore(agent *models.Agent) *fakeStore {
	return &fakeStore{agent: agent}
}

func (s *fakeStore) GetAgent(id int) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent, nil
}

func (s *fakeStore) UpdateAgentStatus(id int, status, message string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agent.Status = status
	s.agent.StatusMessage = message
	return s.agent, nil
}

func (s *fakeStore) CreateTrade(trade *models.Trade) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trade)
	return trade, nil
}

func (s *fakeStore) tradeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

func (s *fakeStore) lastStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent.Status
}

// fakeClient - минимальный exchange.Client для тестов, не обращается к сети.
type fakeClient struct {
	ready bool
}

func (c *fakeClient) IsReady() bool { return c.ready }
func (c *fakeClient) GetSymbolTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	return &exchange.Ticker{Symbol: symbol}, nil
}
func (c *fakeClient) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.NewFromFloat(100), nil
}
func (c *fakeClient) CreateLimitOrder(ctx context.Context, symbol, side string, qty, price decimal.Decimal) (*exchange.Order, error) {
	return &exchange.Order{OrderID: "1", Symbol: symbol, Side: side, Price: price, OrigQty: qty}, nil
}
func (c *fakeClient) GetOrder(ctx context.Context, symbol, orderID string) (*exchange.Order, error) {
	return &exchange.Order{OrderID: orderID, Symbol: symbol, Status: exchange.OrderStatusNew}, nil
}
func (c *fakeClient) GetOpenOrders(ctx context.Context, symbol string) ([]*exchange.Order, error) {
	return nil, nil
}
func (c *fakeClient) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	return false, nil
}
func (c *fakeClient) GetAssetBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	return &exchange.Balance{Asset: asset}, nil
}
func (c *fakeClient) GetSymbolPrecision(ctx context.Context, symbol string) (*exchange.Precision, error) {
	return &exchange.Precision{Symbol: symbol, QtyPrecision: 4}, nil
}
func (c *fakeClient) Close() error { return nil }

var _ exchange.Client = (*fakeClient)(nil)

// fakeStrategy - Strategy ticando до заданного числа раз, затем сигнализирует
// остановку через Base.Stop, чтобы Run завершился детерминированно.
type fakeStrategy struct {
	base       *Base
	ticks      int32
	maxTicks   int32
	tickErr    error
	shutdownCalled bool
}

func (s *fakeStrategy) Tick(ctx context.Context) error {
	s.ticks++
	if s.ticks >= s.maxTicks {
		s.base.Stop()
	}
	return s.tickErr
}
func (s *fakeStrategy) AdaptParameters(params map[string]interface{}) {}
func (s *fakeStrategy) Shutdown(ctx context.Context)                  { s.shutdownCalled = true }
func (s *fakeStrategy) LoopInterval() time.Duration                   { return time.Millisecond }

func TestNewBase_ClientNotReady(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1, Status: models.AgentStatusCreated})
	client := &fakeClient{ready: false}

	_, err := NewBase(1, models.AgentKindGrid, nil, store, client, nil)
	if err == nil {
		t.Fatal("expected error when exchange client is not ready")
	}
	if store.lastStatus() != models.AgentStatusError {
		t.Errorf("expected status error, got %s", store.lastStatus())
	}
}

func TestNewBase_ClientReady(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1, Status: models.AgentStatusCreated})
	client := &fakeClient{ready: true}

	base, err := NewBase(1, models.AgentKindGrid, nil, store, client, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.IsRunning() {
		t.Error("a freshly constructed Base should not be running yet")
	}
}

func TestBase_RunCompletesOnStop(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1, Status: models.AgentStatusCreated})
	client := &fakeClient{ready: true}

	base, err := NewBase(1, models.AgentKindGrid, nil, store, client, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	strategy := &fakeStrategy{base: base, maxTicks: 3}
	base.SetStrategy(strategy)

	done := make(chan struct{})
	go func() {
		base.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after strategy requested stop")
	}

	if strategy.ticks < strategy.maxTicks {
		t.Errorf("expected at least %d ticks, got %d", strategy.maxTicks, strategy.ticks)
	}
	if !strategy.shutdownCalled {
		t.Error("expected Shutdown to be called before Run returns")
	}
	if store.lastStatus() != models.AgentStatusStopped {
		t.Errorf("expected final status stopped, got %s", store.lastStatus())
	}
}

func TestBase_RecordTrade(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1, Status: models.AgentStatusRunning})
	client := &fakeClient{ready: true}

	base, err := NewBase(1, models.AgentKindGrid, nil, store, client, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := &exchange.Order{
		OrderID:     "abc",
		Symbol:      "BTCUSDT",
		Side:        exchange.SideBuy,
		Price:       decimal.NewFromFloat(50000),
		ExecutedQty: decimal.NewFromFloat(0.01),
		QuoteQty:    decimal.NewFromFloat(500),
	}
	base.RecordTrade(order, nil)

	if store.tradeCount() != 1 {
		t.Fatalf("expected 1 trade recorded, got %d", store.tradeCount())
	}
}

func TestBase_RecordTrade_InvalidOrderIgnored(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1, Status: models.AgentStatusRunning})
	client := &fakeClient{ready: true}

	base, err := NewBase(1, models.AgentKindGrid, nil, store, client, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	base.RecordTrade(nil, nil)
	base.RecordTrade(&exchange.Order{}, nil)

	if store.tradeCount() != 0 {
		t.Errorf("expected no trades recorded for invalid orders, got %d", store.tradeCount())
	}
}

func TestBase_HandleTickError_IPBanned(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1})
	base, _ := NewBase(1, models.AgentKindGrid, nil, store, &fakeClient{ready: true}, nil)

	err := &exchange.ExchangeError{Exchange: "bybit", Kind: exchange.ErrKindIPBanned, Message: "banned"}
	if base.handleTickError(err) {
		t.Error("ip-banned errors should stop the worker")
	}
}

func TestBase_HandleTickError_Unclassified(t *testing.T) {
	store := newFakeStore(&models.Agent{ID: 1})
	base, _ := NewBase(1, models.AgentKindGrid, nil, store, &fakeClient{ready: true}, nil)

	if base.handleTickError(context.DeadlineExceeded) {
		t.Error("unclassified errors should stop the worker")
	}
}
