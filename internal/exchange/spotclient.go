package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"tradingagent/pkg/ratelimit"
)

// json - drop-in replacement для encoding/json, совместимый по поведению
// (не ускоряет сам парсинг decimal.Decimal, но избегает reflection overhead
// на частых в торговом цикле ответах биржи: ордера, балансы, тикеры).
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	spotBaseURL    = "https://api.bybit.com"
	spotRecvWindow = "5000"
)

// SpotClient - REST-клиент спотового исполнения ордеров, построенный по образцу
// подписи запросов Bybit v5 (HMAC over timestamp+apiKey+recvWindow+params), но
// обобщенный до decimal-based спотового интерфейса Client. is_ready()
// семантика - по прочтении api_key/secret при конструировании, как в
// BinanceClientWrapper: отсутствующие учетные данные => клиент никогда не
// готов, без паники.
type SpotClient struct {
	name      string
	apiKey    string
	apiSecret string

	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
	ready      bool

	mu sync.RWMutex
}

// NewSpotClient создает клиента. ready=false если ключи отсутствуют - в этом
// случае подписанные вызовы возвращают ErrKindConfigAuth, а неподписанные
// (рыночные данные) выполняются как обычно. limiter держит
// клиента в пределах 10 req/sec (burst 20) еще до того, как биржа ответит
// своим собственным 429 - дешевле предотвратить бан, чем восстанавливаться
// после него.
func NewSpotClient(name, apiKey, apiSecret, passphrase string) *SpotClient {
	return &SpotClient{
		name:       name,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: GetGlobalHTTPClient().GetClient(),
		limiter:    ratelimit.NewRateLimiter(10, 20),
		ready:      apiKey != "" && apiSecret != "",
	}
}

func (c *SpotClient) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *SpotClient) sign(timestamp, params string) string {
	message := timestamp + c.apiKey + spotRecvWindow + params
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *SpotClient) notReadyErr() error {
	return &ExchangeError{Exchange: c.name, Kind: ErrKindConfigAuth, Message: "exchange client not ready: missing credentials"}
}

// doRequest выполняет подписанный HTTP запрос и классифицирует ошибки по
// taxonomии из interface.go: HTTP 429 -> rate-limited, HTTP 418 -> ip-banned,
// retCode -2011-эквивалент ("order filled or cancelled") -> order-gone,
// остальные ошибки биржи -> transient.
func (c *SpotClient) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	if signed && !c.IsReady() {
		return nil, c.notReadyErr()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: "rate limiter wait canceled", Original: err}
	}

	var reqBody, reqURL string
	if method == http.MethodGet {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		reqBody = query.Encode()
		if reqBody != "" {
			reqURL = spotBaseURL + endpoint + "?" + reqBody
		} else {
			reqURL = spotBaseURL + endpoint
		}
	} else {
		reqURL = spotBaseURL + endpoint
		if len(params) > 0 {
			jsonBytes, _ := json.Marshal(params)
			reqBody = string(jsonBytes)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(reqBody))
	if err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: err.Error(), Original: err}
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		signature := c.sign(timestamp, reqBody)
		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-SIGN", signature)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", spotRecvWindow)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: err.Error(), Original: err}
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindRateLimited, Code: "429", Message: "rate limited"}
	case 418:
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindIPBanned, Code: "418", Message: "ip banned"}
	}

	var baseResp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: "invalid response body", Original: err}
	}

	if baseResp.RetCode != 0 {
		kind := ErrKindTransient
		if baseResp.RetCode == -2011 || strings.Contains(strings.ToLower(baseResp.RetMsg), "order filled or cancelled") {
			kind = ErrKindOrderGone
		}
		return nil, &ExchangeError{Exchange: c.name, Kind: kind, Code: strconv.Itoa(baseResp.RetCode), Message: baseResp.RetMsg}
	}

	return body, nil
}

func (c *SpotClient) GetSymbolTicker(ctx context.Context, symbol string) (*Ticker, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v5/market/tickers", map[string]string{
		"category": "spot",
		"symbol":   symbol,
	}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			List []struct {
				Symbol    string `json:"symbol"`
				Bid1Price string `json:"bid1Price"`
				Ask1Price string `json:"ask1Price"`
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: "invalid ticker payload", Original: err}
	}
	if len(resp.Result.List) == 0 {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: "empty ticker response"}
	}

	row := resp.Result.List[0]
	bid, _ := decimal.NewFromString(row.Bid1Price)
	ask, _ := decimal.NewFromString(row.Ask1Price)
	last, _ := decimal.NewFromString(row.LastPrice)

	return &Ticker{
		Symbol:    symbol,
		BidPrice:  bid,
		AskPrice:  ask,
		LastPrice: last,
		Timestamp: time.Now(),
	}, nil
}

// GetCurrentPrice возвращает последнюю цену сделки, или ошибку - никогда не
// паникует на отсутствии/некорректности данных.
func (c *SpotClient) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ticker, err := c.GetSymbolTicker(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return ticker.LastPrice, nil
}

// CreateLimitOrder размещает лимитный ордер с TimeInForce=GTC. Цена и
// количество отправляются как есть (decimal String()); метод не округляет их
// до точности символа.
func (c *SpotClient) CreateLimitOrder(ctx context.Context, symbol, side string, qty, price decimal.Decimal) (*Order, error) {
	params := map[string]string{
		"category":    "spot",
		"symbol":      symbol,
		"side":        bybitSide(side),
		"orderType":   "Limit",
		"qty":         qty.String(),
		"price":       price.String(),
		"timeInForce": TimeInForceGTC,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: "invalid create-order payload", Original: err}
	}

	return &Order{
		OrderID:       resp.Result.OrderID,
		ClientOrderID: resp.Result.OrderLinkID,
		Symbol:        symbol,
		Side:          strings.ToUpper(side),
		Status:        OrderStatusNew,
		Price:         price,
		OrigQty:       qty,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}, nil
}

func (c *SpotClient) GetOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v5/order/realtime", map[string]string{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			List []rawOrder `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: "invalid order payload", Original: err}
	}
	if len(resp.Result.List) == 0 {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindOrderGone, Message: "order not found"}
	}

	return resp.Result.List[0].toOrder(symbol), nil
}

func (c *SpotClient) GetOpenOrders(ctx context.Context, symbol string) ([]*Order, error) {
	params := map[string]string{"category": "spot"}
	if symbol != "" {
		params["symbol"] = symbol
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/v5/order/realtime", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			List []rawOrder `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: "invalid open-orders payload", Original: err}
	}

	orders := make([]*Order, 0, len(resp.Result.List))
	for _, o := range resp.Result.List {
		orders = append(orders, o.toOrder(o.Symbol))
	}
	return orders, nil
}

// CancelOrder отменяет ордер. alreadyGone=true при ErrKindOrderGone -
// соответствует cancel_order's обработке retCode -2011 в оригинале.
func (c *SpotClient) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	_, err := c.doRequest(ctx, http.MethodPost, "/v5/order/cancel", map[string]string{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}, true)
	if err != nil {
		var exErr *ExchangeError
		if errors.As(err, &exErr) && exErr.Kind == ErrKindOrderGone {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func (c *SpotClient) GetAssetBalance(ctx context.Context, asset string) (*Balance, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", map[string]string{
		"accountType": "SPOT",
		"coin":        asset,
	}, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			List []struct {
				Coin []struct {
					Coin            string `json:"coin"`
					WalletBalance   string `json:"walletBalance"`
					Locked          string `json:"locked"`
				} `json:"coin"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: "invalid balance payload", Original: err}
	}

	for _, acct := range resp.Result.List {
		for _, coin := range acct.Coin {
			if coin.Coin == asset {
				free, _ := decimal.NewFromString(coin.WalletBalance)
				locked, _ := decimal.NewFromString(coin.Locked)
				return &Balance{Asset: asset, Free: free, Locked: locked}, nil
			}
		}
	}
	return &Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}, nil
}

func (c *SpotClient) GetSymbolPrecision(ctx context.Context, symbol string) (*Precision, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", map[string]string{
		"category": "spot",
		"symbol":   symbol,
	}, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			List []struct {
				Symbol        string `json:"symbol"`
				LotSizeFilter struct {
					BasePrecision string `json:"basePrecision"`
					QtyStep       string `json:"qtyStep"`
				} `json:"lotSizeFilter"`
				PriceFilter struct {
					TickSize string `json:"tickSize"`
				} `json:"priceFilter"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: "invalid instruments payload", Original: err}
	}
	if len(resp.Result.List) == 0 {
		return nil, &ExchangeError{Exchange: c.name, Kind: ErrKindTransient, Message: "symbol not found"}
	}

	row := resp.Result.List[0]
	lotSize, _ := decimal.NewFromString(row.LotSizeFilter.QtyStep)
	tickSize, _ := decimal.NewFromString(row.PriceFilter.TickSize)

	return &Precision{
		Symbol:         symbol,
		PricePrecision: decimalPlaces(tickSize),
		QtyPrecision:   decimalPlaces(lotSize),
		LotSize:        lotSize,
		TickSize:       tickSize,
	}, nil
}

func (c *SpotClient) Close() error {
	return nil
}

// rawOrder - сырой ответ биржи по ордеру, до маппинга в Order.
type rawOrder struct {
	OrderID         string `json:"orderId"`
	OrderLinkID     string `json:"orderLinkId"`
	Symbol          string `json:"symbol"`
	Side            string `json:"side"`
	OrderStatus     string `json:"orderStatus"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	CumExecQty      string `json:"cumExecQty"`
	CumExecValue    string `json:"cumExecValue"`
	CumExecFee      string `json:"cumExecFee"`
	FeeCurrency     string `json:"feeCurrency"`
}

func (o rawOrder) toOrder(symbol string) *Order {
	price, _ := decimal.NewFromString(o.Price)
	qty, _ := decimal.NewFromString(o.Qty)
	execQty, _ := decimal.NewFromString(o.CumExecQty)
	quoteQty, _ := decimal.NewFromString(o.CumExecValue)
	fee, _ := decimal.NewFromString(o.CumExecFee)

	return &Order{
		OrderID:         o.OrderID,
		ClientOrderID:   o.OrderLinkID,
		Symbol:          symbol,
		Side:            strings.ToUpper(o.Side),
		Status:          mapBybitStatus(o.OrderStatus),
		Price:           price,
		OrigQty:         qty,
		ExecutedQty:     execQty,
		QuoteQty:        quoteQty,
		Commission:      fee,
		CommissionAsset: o.FeeCurrency,
		UpdatedAt:       time.Now(),
	}
}

// mapBybitStatus переводит нативные статусы Bybit в таксономию Client.
func mapBybitStatus(raw string) string {
	switch raw {
	case "New", "Created":
		return OrderStatusNew
	case "PartiallyFilled":
		return OrderStatusPartiallyFilled
	case "Filled":
		return OrderStatusFilled
	case "Cancelled", "PartiallyFilledCanceled":
		return OrderStatusCanceled
	case "Rejected":
		return OrderStatusRejected
	case "Deactivated":
		return OrderStatusExpired
	default:
		return raw
	}
}

// bybitSide переводит BUY/SELL в нативный регистр Bybit (Buy/Sell).
func bybitSide(side string) string {
	if strings.EqualFold(side, SideSell) {
		return "Sell"
	}
	return "Buy"
}

func decimalPlaces(d decimal.Decimal) int {
	if d.IsZero() {
		return 8
	}
	return int(d.Exponent() * -1)
}

var _ Client = (*SpotClient)(nil)
