package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Client определяет унифицированный интерфейс для работы со спотовой биржей.
// Все денежные величины - decimal.Decimal: core не должен использовать
// бинарные float для цены/количества.
type Client interface {
	// IsReady сообщает, прошла ли биржа инициализацию (валидные ключи, ping успешен).
	IsReady() bool

	// GetSymbolTicker возвращает текущий тикер по символу.
	GetSymbolTicker(ctx context.Context, symbol string) (*Ticker, error)

	// GetCurrentPrice - удобный метод, возвращающий последнюю цену сделки.
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// CreateLimitOrder размещает лимитный ордер с TimeInForce=GTC.
	CreateLimitOrder(ctx context.Context, symbol, side string, qty, price decimal.Decimal) (*Order, error)

	// GetOrder возвращает текущее состояние ордера по символу и id.
	GetOrder(ctx context.Context, symbol, orderID string) (*Order, error)

	// GetOpenOrders возвращает список открытых ордеров, опционально по символу.
	GetOpenOrders(ctx context.Context, symbol string) ([]*Order, error)

	// CancelOrder отменяет ордер. AlreadyGone=true означает, что ордер уже
	// исполнен/отменен биржей - это не считается ошибкой отмены.
	CancelOrder(ctx context.Context, symbol, orderID string) (alreadyGone bool, err error)

	// GetAssetBalance возвращает свободный/заблокированный баланс актива.
	GetAssetBalance(ctx context.Context, asset string) (*Balance, error)

	// GetSymbolPrecision возвращает точность цены/количества для форматирования ордеров.
	GetSymbolPrecision(ctx context.Context, symbol string) (*Precision, error)

	// Close закрывает соединения с биржей.
	Close() error
}

// Ticker содержит информацию о текущей цене.
type Ticker struct {
	Symbol    string
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	LastPrice decimal.Decimal
	Timestamp time.Time
}

// Order представляет ордер на спотовой бирже.
type Order struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          string // "BUY" или "SELL"
	Status        string // NEW, PARTIALLY_FILLED, FILLED, CANCELED, REJECTED, EXPIRED
	Price         decimal.Decimal
	OrigQty       decimal.Decimal
	ExecutedQty   decimal.Decimal
	QuoteQty      decimal.Decimal
	Commission    decimal.Decimal
	CommissionAsset string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Balance представляет баланс одного актива.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Precision описывает точность цены/количества символа.
type Precision struct {
	Symbol        string
	PricePrecision int
	QtyPrecision   int
	LotSize        decimal.Decimal
	TickSize       decimal.Decimal
}

// ErrorKind классифицирует ошибку биржи по таксономии отказов core'а.
type ErrorKind int

const (
	// ErrKindUnknown - неклассифицированная ошибка, трактуется как транзиентная.
	ErrKindUnknown ErrorKind = iota
	// ErrKindRateLimited - превышен лимит запросов (HTTP 429); нужно откатиться на ~60с.
	ErrKindRateLimited
	// ErrKindIPBanned - биржа забанила IP (HTTP 418); фатально для воркера.
	ErrKindIPBanned
	// ErrKindOrderGone - ордер уже исполнен/отменен биржей; трактуется как успех отмены.
	ErrKindOrderGone
	// ErrKindTransient - временная ошибка сети/биржи; повторить после короткой паузы.
	ErrKindTransient
	// ErrKindConfigAuth - неверные учетные данные; клиент не готов к работе.
	ErrKindConfigAuth
)

// ExchangeError представляет классифицированную ошибку от биржи.
type ExchangeError struct {
	Exchange string
	Kind     ErrorKind
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is()/errors.As().
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// IsRetryable сообщает, стоит ли повторить операцию после паузы
// (используется как RetryIf в pkg/retry.Config при размещении ордеров).
func (e *ExchangeError) IsRetryable() bool {
	return e.Kind == ErrKindTransient || e.Kind == ErrKindRateLimited
}

// Side constants.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order status constants (совпадают с таксономией биржи, см. grid_strategy.py).
const (
	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusRejected        = "REJECTED"
	OrderStatusExpired         = "EXPIRED"
)

// TimeInForce - всегда GTC для грид-стратегии.
const TimeInForceGTC = "GTC"
