package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradingagent/internal/exchange"
	"tradingagent/internal/models"
	"tradingagent/pkg/retry"
	"tradingagent/pkg/utils"
)

// orderRetryConfig используется для размещения/отмены ордеров: биржа часто
// отвечает транзиентной ошибкой или rate limit на всплеске запросов при
// расстановке сетки, повтор почти всегда проходит.
func orderRetryConfig() retry.Config {
	cfg := retry.ConservativeConfig()
	cfg.RetryIf = func(err error) bool {
		var exErr *exchange.ExchangeError
		if errors.As(err, &exErr) {
			return exErr.IsRetryable()
		}
		return false
	}
	return cfg
}

const (
	defaultLoopIntervalSeconds = 10
	gridPlacementSpacing       = 200 * time.Millisecond
	gridStatusQuerySpacing     = 100 * time.Millisecond
)

// gridLevel отслеживает один выставленный ордер сетки: его ценовую линию
// (нужна для расчета шага репликации) и биржевой order id.
type gridLevel struct {
	price   decimal.Decimal
	orderID string
}

// GridWorker реализует торговлю по ценовой сетке поверх Base.
type GridWorker struct {
	base   *Base
	client exchange.Client
	params *models.RuntimeParameters

	symbol     string
	lower      decimal.Decimal
	upper      decimal.Decimal
	step       decimal.Decimal
	orderUSD   decimal.Decimal
	gridLines  []decimal.Decimal
	qtyScale   int32
	lotSize    decimal.Decimal

	mu           sync.Mutex
	pendingBuys  map[string]gridLevel
	pendingSells map[string]gridLevel
}

// NewGridWorker validирует конфигурацию, считает шаг и линии сетки,
// регистрирует себя как Strategy в Base.
func NewGridWorker(base *Base, client exchange.Client, config models.GridConfig) (*GridWorker, error) {
	if err := validateGridConfig(config); err != nil {
		return nil, err
	}

	step := config.UpperPrice.Sub(config.LowerPrice).Div(decimal.NewFromInt(int64(config.GridLevels - 1)))

	lines := make([]decimal.Decimal, config.GridLevels)
	for i := 0; i < config.GridLevels; i++ {
		lines[i] = config.LowerPrice.Add(step.Mul(decimal.NewFromInt(int64(i))))
	}

	loopInterval := config.LoopIntervalSeconds
	if loopInterval <= 0 {
		loopInterval = defaultLoopIntervalSeconds
	}

	g := &GridWorker{
		base:         base,
		client:       client,
		symbol:       config.Symbol,
		lower:        config.LowerPrice,
		upper:        config.UpperPrice,
		step:         step,
		orderUSD:     config.OrderAmountUSD,
		gridLines:    lines,
		pendingBuys:  make(map[string]gridLevel),
		pendingSells: make(map[string]gridLevel),
		params: models.NewRuntimeParameters(map[string]interface{}{
			"loop_interval_seconds": loopInterval,
		}),
	}

	base.SetStrategy(g)
	return g, nil
}

func validateGridConfig(c models.GridConfig) error {
	if c.Symbol == "" {
		return fmt.Errorf("grid config: symbol is required")
	}
	if c.GridLevels < 2 {
		return fmt.Errorf("grid config: grid_levels must be at least 2")
	}
	if c.LowerPrice.Sign() <= 0 || c.UpperPrice.Sign() <= 0 {
		return fmt.Errorf("grid config: prices must be positive")
	}
	if !c.UpperPrice.GreaterThan(c.LowerPrice) {
		return fmt.Errorf("grid config: upper_price must be greater than lower_price")
	}
	if c.OrderAmountUSD.Sign() <= 0 {
		return fmt.Errorf("grid config: order_amount_usd must be positive")
	}
	return nil
}

// Run выполняет начальную расстановку ордеров, затем передает управление
// основному циклу Base. Вызывается менеджером агентов в отдельной горутине
// вместо прямого вызова base.Run.
func (g *GridWorker) Run(ctx context.Context) {
	precision, err := g.client.GetSymbolPrecision(ctx, g.symbol)
	if err != nil {
		g.base.updateStatus(models.AgentStatusError, "failed to fetch symbol precision: "+err.Error())
		return
	}
	g.qtyScale = int32(precision.QtyPrecision)
	g.lotSize = precision.LotSize

	if err := g.placeInitialGrid(ctx); err != nil {
		g.base.updateStatus(models.AgentStatusError, err.Error())
		return
	}

	g.base.Run(ctx)
}

// placeInitialGrid отменяет ранее отслеживаемые ордера (пусто на свежем
// старте) и расставляет сетку вокруг текущей цены.
func (g *GridWorker) placeInitialGrid(ctx context.Context) error {
	g.cancelTracked(ctx)

	price, err := g.client.GetCurrentPrice(ctx, g.symbol)
	if err != nil {
		return fmt.Errorf("current price unavailable: %w", err)
	}

	for _, level := range g.gridLines {
		var side string
		switch {
		case level.LessThan(price):
			side = exchange.SideBuy
		case level.GreaterThan(price):
			side = exchange.SideSell
		default:
			continue
		}

		qty := utils.RoundToLotSizeDecimal(g.orderUSD.Div(level), g.lotSize).Truncate(g.qtyScale)
		if qty.Sign() <= 0 {
			continue
		}

		order, err := retry.DoWithResult(ctx, func() (*exchange.Order, error) {
			return g.client.CreateLimitOrder(ctx, g.symbol, side, qty, level)
		}, orderRetryConfig())
		if err != nil {
			g.base.logger.Warn("failed to place initial grid order", utils.String("side", side), utils.Err(err))
			time.Sleep(gridPlacementSpacing)
			continue
		}

		g.mu.Lock()
		if side == exchange.SideBuy {
			g.pendingBuys[order.ClientOrderID] = gridLevel{price: level, orderID: order.OrderID}
		} else {
			g.pendingSells[order.ClientOrderID] = gridLevel{price: level, orderID: order.OrderID}
		}
		g.mu.Unlock()

		time.Sleep(gridPlacementSpacing)
	}

	return nil
}

// Tick реализует одну итерацию цикла: перерасстановка на пустой сетке
// либо опрос статуса отслеживаемых ордеров с репликацией заполненных.
func (g *GridWorker) Tick(ctx context.Context) error {
	g.mu.Lock()
	empty := len(g.pendingBuys) == 0 && len(g.pendingSells) == 0
	g.mu.Unlock()

	if empty {
		return g.placeInitialGrid(ctx)
	}

	for clientOrderID, level := range g.snapshotBuys() {
		g.processPending(ctx, clientOrderID, level, exchange.SideBuy)
	}
	for clientOrderID, level := range g.snapshotSells() {
		g.processPending(ctx, clientOrderID, level, exchange.SideSell)
	}

	return nil
}

func (g *GridWorker) snapshotBuys() map[string]gridLevel {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]gridLevel, len(g.pendingBuys))
	for k, v := range g.pendingBuys {
		out[k] = v
	}
	return out
}

func (g *GridWorker) snapshotSells() map[string]gridLevel {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]gridLevel, len(g.pendingSells))
	for k, v := range g.pendingSells {
		out[k] = v
	}
	return out
}

func (g *GridWorker) processPending(ctx context.Context, clientOrderID string, level gridLevel, side string) {
	order, err := g.client.GetOrder(ctx, g.symbol, level.orderID)
	time.Sleep(gridStatusQuerySpacing)
	if err != nil {
		g.base.logger.Warn("failed to query order status", utils.OrderID(level.orderID), utils.Err(err))
		return
	}

	switch order.Status {
	case exchange.OrderStatusFilled:
		g.handleFill(ctx, clientOrderID, level, side, order)
	case exchange.OrderStatusCanceled, exchange.OrderStatusRejected, exchange.OrderStatusExpired:
		g.removePending(clientOrderID, side)
	default:
		// NEW/PARTIALLY_FILLED - оставить как есть
	}
}

func (g *GridWorker) handleFill(ctx context.Context, clientOrderID string, level gridLevel, side string, order *exchange.Order) {
	var pnl *float64
	if side == exchange.SideSell {
		// Упрощенный плейсхолдер P&L: шаг сетки умноженный на исполненный
		// объем за вычетом комиссии.
		p, _ := g.step.Mul(order.ExecutedQty).Sub(order.Commission).Float64()
		pnl = &p
	}

	g.base.RecordTrade(order, pnl)
	g.removePending(clientOrderID, side)

	var replenishPrice decimal.Decimal
	var replenishSide string
	switch side {
	case exchange.SideBuy:
		replenishPrice = level.price.Add(g.step)
		replenishSide = exchange.SideSell
		if replenishPrice.GreaterThan(g.upper) {
			return
		}
	case exchange.SideSell:
		replenishPrice = level.price.Sub(g.step)
		replenishSide = exchange.SideBuy
		if replenishPrice.LessThan(g.lower) {
			return
		}
	}

	// Переиспользует количество исполненного ордера вместо пересчета из
	// orderUSD/price - совпадает с origQty исполненного ордера, избегая
	// дрейфа размера позиции от колебания цены между расстановкой и
	// заполнением.
	qty := order.OrigQty
	if qty.Sign() <= 0 {
		return
	}

	newOrder, err := retry.DoWithResult(ctx, func() (*exchange.Order, error) {
		return g.client.CreateLimitOrder(ctx, g.symbol, replenishSide, qty, replenishPrice)
	}, orderRetryConfig())
	if err != nil {
		g.base.logger.Warn("failed to place replenishment order", utils.String("side", replenishSide), utils.Err(err))
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if replenishSide == exchange.SideBuy {
		g.pendingBuys[newOrder.ClientOrderID] = gridLevel{price: replenishPrice, orderID: newOrder.OrderID}
	} else {
		g.pendingSells[newOrder.ClientOrderID] = gridLevel{price: replenishPrice, orderID: newOrder.OrderID}
	}
}

func (g *GridWorker) removePending(clientOrderID, side string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if side == exchange.SideBuy {
		delete(g.pendingBuys, clientOrderID)
	} else {
		delete(g.pendingSells, clientOrderID)
	}
}

// cancelTracked отменяет все отслеживаемые ордера, допуская ответ
// "уже исполнен/отменен" как успех, и очищает карты.
func (g *GridWorker) cancelTracked(ctx context.Context) {
	g.mu.Lock()
	buys := g.pendingBuys
	sells := g.pendingSells
	g.pendingBuys = make(map[string]gridLevel)
	g.pendingSells = make(map[string]gridLevel)
	g.mu.Unlock()

	for _, level := range buys {
		g.cancelOne(ctx, level)
	}
	for _, level := range sells {
		g.cancelOne(ctx, level)
	}
}

func (g *GridWorker) cancelOne(ctx context.Context, level gridLevel) {
	_, err := retry.DoWithResult(ctx, func() (bool, error) {
		return g.client.CancelOrder(ctx, g.symbol, level.orderID)
	}, orderRetryConfig())
	if err != nil {
		g.base.logger.Warn("failed to cancel tracked order", utils.OrderID(level.orderID), utils.Err(err))
	}
}

// Shutdown отменяет оставшиеся открытые ордера перед завершением воркера.
func (g *GridWorker) Shutdown(ctx context.Context) {
	g.cancelTracked(ctx)
}

// AdaptParameters принимает предложения от learning_module. Персистентная
// конфигурация (цены, шаг сетки) не меняется - только runtime-параметры
// вроде интервала цикла.
func (g *GridWorker) AdaptParameters(params map[string]interface{}) {
	for k, v := range params {
		g.params.Set(k, v)
	}
}

// LoopInterval возвращает текущий интервал цикла, возможно измененный
// адаптацией.
func (g *GridWorker) LoopInterval() time.Duration {
	v, ok := g.params.Get("loop_interval_seconds")
	if !ok {
		return defaultLoopIntervalSeconds * time.Second
	}

	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second
	case float64:
		return time.Duration(n) * time.Second
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return defaultLoopIntervalSeconds * time.Second
		}
		return time.Duration(f) * time.Second
	default:
		return defaultLoopIntervalSeconds * time.Second
	}
}

// Stop делегирует Base - сигнализирует остановку без блокировки.
func (g *GridWorker) Stop() {
	g.base.Stop()
}

// IsRunning делегирует Base.
func (g *GridWorker) IsRunning() bool {
	return g.base.IsRunning()
}

var _ Strategy = (*GridWorker)(nil)
var _ Runnable = (*GridWorker)(nil)
