// Package worker реализует воркеров торговых стратегий: базовый контракт
// жизненного цикла (Base) и конкретные реализации (GridWorker).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"tradingagent/internal/bus"
	"tradingagent/internal/exchange"
	"tradingagent/internal/models"
	"tradingagent/pkg/utils"
)

// Runnable - то, что умеет запускаться и останавливаться менеджером
// агентов, независимо от конкретного вида стратегии.
type Runnable interface {
	Run(ctx context.Context)
	Stop()
	IsRunning() bool
}

// Strategy - специфичная для вида агента логика, встраиваемая в Base.
type Strategy interface {
	// Tick выполняет одну итерацию цикла стратегии.
	Tick(ctx context.Context) error
	// AdaptParameters применяет изменения параметров из learning_module.
	AdaptParameters(params map[string]interface{})
	// Shutdown вызывается перед завершением цикла (отмена ордеров и т.п.).
	Shutdown(ctx context.Context)
	// LoopInterval возвращает текущий интервал тика (может меняться адаптацией).
	LoopInterval() time.Duration
}

// Base - общий контракт воркера стратегии: управление состоянием, шина,
// запись сделок. Конкретные стратегии встраивают Base и реализуют Strategy.
type Base struct {
	AgentID  int
	GroupID  *int
	Kind     string
	store    Store
	client   exchange.Client
	bus      *bus.Bus
	logger   *utils.Logger

	stopFlag int32 // atomic bool
	running  int32 // atomic bool, для is-alive снаружи

	strategy Strategy
}

// NewBase создает базовый воркер. Если биржевой клиент не готов, немедленно
// персистирует error и возвращает ошибку - конструктор не должен создавать
// воркер, который заведомо не сможет торговать.
func NewBase(agentID int, kind string, groupID *int, store Store, client exchange.Client, b *bus.Bus) (*Base, error) {
	logger := utils.L().WithComponent("worker").With(utils.Int("agent_id", agentID), utils.String("kind", kind))

	if client == nil || !client.IsReady() {
		if _, err := store.UpdateAgentStatus(agentID, models.AgentStatusError, "exchange client not ready"); err != nil {
			logger.Error("failed to persist error status after client-not-ready", utils.Err(err))
		}
		return nil, fmt.Errorf("exchange client not ready for agent %d", agentID)
	}

	return &Base{
		AgentID: agentID,
		GroupID: groupID,
		Kind:    kind,
		store:   store,
		client:  client,
		bus:     b,
		logger:  logger,
	}, nil
}

// SetStrategy устанавливает специфичную логику после того как Base встроен
// в конкретный воркер (grid/arbitrage) - избегает циклической инициализации.
func (b *Base) SetStrategy(s Strategy) {
	b.strategy = s
}

func (b *Base) updateStatus(status, message string) {
	if _, err := b.store.UpdateAgentStatus(b.AgentID, status, message); err != nil {
		b.logger.Error("failed to update agent status", utils.String("status", status), utils.Err(err))
	}
}

func (b *Base) stopRequested() bool {
	return atomic.LoadInt32(&b.stopFlag) == 1
}

// IsRunning сообщает, выполняется ли цикл воркера сейчас - используется
// менеджером агентов как замена Thread.is_alive() оригинала.
func (b *Base) IsRunning() bool {
	return atomic.LoadInt32(&b.running) == 1
}

// Stop устанавливает флаг остановки. Не блокирует: цикл сам завершится и
// персистирует терминальный статус.
func (b *Base) Stop() {
	atomic.StoreInt32(&b.stopFlag, 1)
}

// Run выполняет основной цикл воркера. Вызывается в отдельной горутине
// менеджером агентов.
func (b *Base) Run(ctx context.Context) {
	atomic.StoreInt32(&b.running, 1)
	defer atomic.StoreInt32(&b.running, 0)

	if b.bus != nil && b.bus.IsReady() {
		b.bus.Subscribe(bus.ChannelLearningModule, b.handleBusMessage)
	} else {
		b.logger.Warn("bus not available, running without inter-agent communication")
	}

	b.updateStatus(models.AgentStatusRunning, "")

	finalStatus := models.AgentStatusStopped
	finalMessage := ""

loop:
	for !b.stopRequested() {
		if err := b.strategy.Tick(ctx); err != nil && !b.handleTickError(err) {
			finalStatus = models.AgentStatusError
			finalMessage = err.Error()
			if r := []rune(finalMessage); len(r) > 200 {
				finalMessage = string(r[:200])
			}
			break
		}

		if b.stopRequested() {
			break
		}

		select {
		case <-ctx.Done():
			finalStatus = models.AgentStatusStopped
			break loop
		case <-time.After(b.strategy.LoopInterval()):
		}
	}

	b.strategy.Shutdown(ctx)
	b.updateStatus(finalStatus, finalMessage)
}

// handleTickError классифицирует ошибку тика по таксономии биржевого клиента.
// Возвращает true если цикл должен продолжаться (rate-limited/transient
// обработаны паузой), false если агент должен остановиться со статусом error.
func (b *Base) handleTickError(err error) bool {
	var exErr *exchange.ExchangeError
	if errors.As(err, &exErr) {
		switch exErr.Kind {
		case exchange.ErrKindRateLimited:
			b.logger.Warn("rate limited, sleeping 60s")
			time.Sleep(60 * time.Second)
			return true
		case exchange.ErrKindIPBanned:
			b.logger.Error("ip banned, stopping agent", utils.Err(err))
			return false
		default:
			b.logger.Warn("transient error in tick, sleeping 10s", utils.Err(err))
			time.Sleep(10 * time.Second)
			return true
		}
	}

	b.logger.Error("unhandled error in tick", utils.Err(err))
	return false
}

// RecordTrade персистирует сделку и публикует trade_executed на agent_events.
// pnl - опциональный реализованный P&L (nil если неприменимо, например
// заполненная BUY в простой grid-модели).
func (b *Base) RecordTrade(order *exchange.Order, pnl *float64) {
	if order == nil || order.OrderID == "" {
		b.logger.Warn("attempted to record invalid trade data")
		return
	}

	trade := &models.Trade{
		AgentID:         b.AgentID,
		Symbol:          order.Symbol,
		ExchangeOrderID: order.OrderID,
		ClientOrderID:   order.ClientOrderID,
		Side:            order.Side,
		Price:           order.Price,
		Quantity:        order.ExecutedQty,
		QuoteQuantity:   order.QuoteQty,
	}
	if order.Commission.Sign() != 0 {
		trade.Commission.Decimal = order.Commission
		trade.Commission.Valid = true
	}
	if order.CommissionAsset != "" {
		trade.CommissionAsset = order.CommissionAsset
	}
	if pnl != nil {
		trade.RealizedPnL.Decimal = decimal.NewFromFloat(*pnl)
		trade.RealizedPnL.Valid = true
	}

	if _, err := b.store.CreateTrade(trade); err != nil {
		b.logger.Error("failed to record trade", utils.Err(err), utils.OrderID(order.OrderID))
		return
	}

	b.logger.Info("trade recorded", utils.OrderID(order.OrderID), utils.Side(order.Side))

	if b.bus == nil || !b.bus.IsReady() {
		return
	}

	payload, err := json.Marshal(order)
	if err != nil {
		b.logger.Error("failed to marshal trade payload for bus", utils.Err(err))
		return
	}

	groupID := 0
	if b.GroupID != nil {
		groupID = *b.GroupID
	}

	msg := bus.Message{
		Type:    "trade_executed",
		AgentID: b.AgentID,
		GroupID: groupID,
		Payload: payload,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.bus.Publish(ctx, bus.ChannelAgentEvents, msg); err != nil {
		b.logger.Warn("failed to publish trade_executed", utils.Err(err))
	}
}

// handleBusMessage проверяет конверт и делегирует специфичной адаптации.
// Персистентный конфиг никогда не меняется адаптацией - только runtime-карта
// параметров стратегии.
func (b *Base) handleBusMessage(msg bus.Message) {
	if msg.Type != "suggestion" || b.strategy == nil {
		return
	}

	var payload struct {
		AgentID int                    `json:"agent_id"`
		Params  map[string]interface{} `json:"params"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		b.logger.Warn("received non-JSON learning_module message", utils.Err(err))
		return
	}

	if payload.AgentID != b.AgentID {
		return
	}

	b.logger.Info("applying parameter suggestion", utils.Any("params", payload.Params))
	b.strategy.AdaptParameters(payload.Params)
}
