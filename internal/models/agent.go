package models

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// AgentGroup - организационный контейнер для агентов.
type AgentGroup struct {
	ID          int       `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Виды стратегий агента.
const (
	AgentKindGrid      = "grid"
	AgentKindArbitrage = "arbitrage"
)

// Статусы жизненного цикла агента.
const (
	AgentStatusCreated  = "created"
	AgentStatusStarting = "starting"
	AgentStatusRunning  = "running"
	AgentStatusStopping = "stopping"
	AgentStatusStopped  = "stopped"
	AgentStatusError    = "error"
)

// Agent - постоянное определение экземпляра стратегии.
type Agent struct {
	ID            int             `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Kind          string          `json:"kind" db:"kind"`
	Config        json.RawMessage `json:"config" db:"config"`
	Status        string          `json:"status" db:"status"`
	StatusMessage string          `json:"status_message,omitempty" db:"status_message"`
	GroupID       *int            `json:"group_id,omitempty" db:"group_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// GridConfig - конфигурация стратегии вида grid.
type GridConfig struct {
	Symbol             string          `json:"symbol"`
	LowerPrice         decimal.Decimal `json:"lower_price"`
	UpperPrice         decimal.Decimal `json:"upper_price"`
	GridLevels         int             `json:"grid_levels"`
	OrderAmountUSD     decimal.Decimal `json:"order_amount_usd"`
	LoopIntervalSeconds int            `json:"loop_interval_seconds,omitempty"`
}

// ArbitrageConfig - конфигурация стратегии вида arbitrage.
type ArbitrageConfig struct {
	Pair1          string          `json:"pair_1"`
	Pair2          string          `json:"pair_2"`
	Pair3          string          `json:"pair_3"`
	MinProfitPct   decimal.Decimal `json:"min_profit_pct"`
	TradeAmountUSD decimal.Decimal `json:"trade_amount_usd"`
}

// Trade - запись об исполненном ордере.
type Trade struct {
	ID              int             `json:"id" db:"id"`
	AgentID         int             `json:"agent_id" db:"agent_id"`
	Timestamp       time.Time       `json:"timestamp" db:"timestamp"`
	Symbol          string          `json:"symbol" db:"symbol"`
	ExchangeOrderID string          `json:"exchange_order_id" db:"exchange_order_id"`
	ClientOrderID   string          `json:"client_order_id,omitempty" db:"client_order_id"`
	Side            string          `json:"side" db:"side"`
	Price           decimal.Decimal      `json:"price" db:"price"`
	Quantity        decimal.Decimal      `json:"quantity" db:"quantity"`
	QuoteQuantity   decimal.Decimal      `json:"quote_quantity" db:"quote_quantity"`
	Commission      decimal.NullDecimal  `json:"commission,omitempty" db:"commission"`
	CommissionAsset string               `json:"commission_asset,omitempty" db:"commission_asset"`
	RealizedPnL     decimal.NullDecimal  `json:"realized_pnl,omitempty" db:"realized_pnl"`
}

// AgentPnLSummary - сводка по прибыли/убыткам агента.
type AgentPnLSummary struct {
	RealizedTotal decimal.Decimal `json:"realized_total"`
	Unrealized    decimal.Decimal `json:"unrealized"`
	PnL24h        decimal.Decimal `json:"pnl_24h"`
}

// GroupPnLSummary - сводка по группе агентов.
type GroupPnLSummary struct {
	TotalAgents          int                        `json:"total_agents"`
	AggregatedRealizedPnL decimal.Decimal           `json:"aggregated_realized_pnl"`
	PerAgent             map[int]decimal.Decimal    `json:"per_agent"`
}

// RuntimeParameters - изменяемая карта параметров воркера, заполняется из
// конфигурации при старте. Адаптация переписывает только эту карту -
// персистентный конфиг остается неизменным. Защищена мьютексом: читается
// циклом тика и пишется обработчиком сообщений шины из другой горутины.
type RuntimeParameters struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

func NewRuntimeParameters(seed map[string]interface{}) *RuntimeParameters {
	values := make(map[string]interface{}, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &RuntimeParameters{values: values}
}

func (r *RuntimeParameters) Get(key string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

func (r *RuntimeParameters) Set(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
}

func (r *RuntimeParameters) Snapshot() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
