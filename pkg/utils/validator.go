package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация данных
//
// Назначение:
// Проверка корректности входных данных.
//
// Функции:
// - ValidateSymbol: проверка формата символа (BTCUSDT)
// - ValidateSpread: проверка спреда (> 0)
// - ValidateVolume: проверка объема (> 0)
// - ValidateNOrders: проверка количества ордеров (≥ 1)
// - ValidateEmail: проверка email формата
// - ValidateAPIKey: базовая проверка API ключа
//
// Возвращает error с описанием проблемы или nil

var (
	ErrInvalidSymbol     = errors.New("invalid symbol format")
	ErrInvalidSpread     = errors.New("spread must be between 0 (exclusive) and 100")
	ErrInvalidVolume     = errors.New("volume must be between 0 (exclusive) and 1e9")
	ErrInvalidNOrders    = errors.New("number of orders must be between 1 and 100")
	ErrInvalidStopLoss   = errors.New("stop loss must be between 0 (exclusive) and 100")
	ErrInvalidLeverage   = errors.New("leverage must be between 1 and 100")
	ErrInvalidPercentage = errors.New("percentage must be between 0 and 100")
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrInvalidAPIKey     = errors.New("api key must be at least 16 characters, alphanumeric with dashes/underscores")
	ErrInvalidAPISecret  = errors.New("api secret must be at least 16 characters")
	ErrInvalidPassphrase = errors.New("api passphrase too long")
	ErrInvalidExchange   = errors.New("unsupported exchange")
)

// SupportedExchanges - список поддерживаемых бирж.
var SupportedExchanges = []string{"bybit", "bitget", "okx", "gate", "htx", "bingx"}

var symbolRe = regexp.MustCompile(`^[A-Za-z0-9]+([\-_/][A-Za-z0-9]+)*$`)
var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
var apiKeyRe = regexp.MustCompile(`^[A-Za-z0-9\-_]+$`)

// ValidateSymbol проверяет формат торгового символа (BTCUSDT, BTC-USDT, ...).
func ValidateSymbol(symbol string) error {
	if len(symbol) < 2 || len(symbol) > 20 {
		return ErrInvalidSymbol
	}
	if !symbolRe.MatchString(symbol) {
		return ErrInvalidSymbol
	}
	return nil
}

// NormalizeSymbol приводит символ к верхнему регистру без разделителей.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
	return s
}

// quoteCurrencies - известные котируемые валюты, от самой длинной к короткой,
// чтобы ExtractBaseCurrency/ExtractQuoteCurrency резолвились однозначно.
var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "BTC", "ETH"}

// ExtractBaseCurrency возвращает базовую валюту символа (BTCUSDT -> BTC).
func ExtractBaseCurrency(symbol string) string {
	norm := NormalizeSymbol(symbol)
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(norm, q) && len(norm) > len(q) {
			return norm[:len(norm)-len(q)]
		}
	}
	return norm
}

// ExtractQuoteCurrency возвращает котируемую валюту символа (BTCUSDT -> USDT).
func ExtractQuoteCurrency(symbol string) string {
	norm := NormalizeSymbol(symbol)
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(norm, q) && len(norm) > len(q) {
			return q
		}
	}
	return ""
}

// ValidateSpread проверяет, что спред лежит в разумном диапазоне.
func ValidateSpread(spread float64) error {
	if spread <= 0 || spread > 100 {
		return ErrInvalidSpread
	}
	return nil
}

// ValidateVolume проверяет, что объем положителен и не превышает разумный лимит.
func ValidateVolume(volume float64) error {
	if volume <= 0 || volume >= 1e9 {
		return ErrInvalidVolume
	}
	return nil
}

// ValidateNOrders проверяет количество ордеров.
func ValidateNOrders(n int) error {
	if n < 1 || n > 100 {
		return ErrInvalidNOrders
	}
	return nil
}

// ValidateStopLoss проверяет значение стоп-лосса в процентах.
func ValidateStopLoss(sl float64) error {
	if sl <= 0 || sl > 100 {
		return ErrInvalidStopLoss
	}
	return nil
}

// ValidateLeverage проверяет плечо.
func ValidateLeverage(leverage int) error {
	if leverage < 1 || leverage > 100 {
		return ErrInvalidLeverage
	}
	return nil
}

// ValidatePercentage проверяет, что значение - корректный процент [0, 100].
func ValidatePercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return ErrInvalidPercentage
	}
	return nil
}

// ValidateEmail проверяет базовый формат email.
func ValidateEmail(email string) error {
	if email == "" || !emailRe.MatchString(email) || strings.Contains(email, "@@") {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateAPIKey проверяет базовый формат API ключа биржи.
func ValidateAPIKey(apiKey string) error {
	if len(apiKey) < 16 || !apiKeyRe.MatchString(apiKey) {
		return ErrInvalidAPIKey
	}
	return nil
}

// ValidateAPISecret проверяет базовый формат API секрета.
func ValidateAPISecret(secret string) error {
	if len(secret) < 16 {
		return ErrInvalidAPISecret
	}
	return nil
}

// ValidateAPIPassphrase проверяет passphrase (пустая строка допустима, не все биржи её требуют).
func ValidateAPIPassphrase(passphrase string) error {
	if len(passphrase) > 72 {
		return ErrInvalidPassphrase
	}
	return nil
}

// ValidateExchange проверяет, что имя биржи входит в список поддерживаемых.
func ValidateExchange(exchange string) error {
	if exchange == "" {
		return ErrInvalidExchange
	}
	norm := NormalizeExchange(exchange)
	for _, e := range SupportedExchanges {
		if e == norm {
			return nil
		}
	}
	return ErrInvalidExchange
}

// NormalizeExchange приводит имя биржи к нижнему регистру без пробелов.
func NormalizeExchange(exchange string) string {
	return strings.ToLower(strings.TrimSpace(exchange))
}

// ValidateOneOf проверяет, что value входит в allowed. Общий помощник для
// полей, ограниченных перечислением строковых констант (вид агента,
// сторона ордера и т.п.) - та же форма проверки, что ValidateExchange
// использует для списка бирж, без привязки к конкретному домену.
func ValidateOneOf(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of %v", value, allowed)
}

// PairConfigValidation - набор полей для валидации конфигурации арбитражной пары.
type PairConfigValidation struct {
	Symbol      string
	EntrySpread float64
	ExitSpread  float64
	Volume      float64
	NOrders     int
	StopLoss    float64
	ExchangeA   string
	ExchangeB   string
}

// ValidatePairConfig проверяет конфигурацию пары целиком.
func ValidatePairConfig(cfg PairConfigValidation) error {
	var errs ValidationErrors

	errs.AddError("symbol", ValidateSymbol(cfg.Symbol))
	errs.AddError("entry_spread", ValidateSpread(cfg.EntrySpread))
	errs.AddError("exit_spread", ValidateSpread(cfg.ExitSpread))
	errs.AddError("volume", ValidateVolume(cfg.Volume))
	errs.AddError("n_orders", ValidateNOrders(cfg.NOrders))

	if cfg.StopLoss != 0 {
		errs.AddError("stop_loss", ValidateStopLoss(cfg.StopLoss))
	}

	if cfg.ExchangeA != "" {
		errs.AddError("exchange_a", ValidateExchange(cfg.ExchangeA))
	}
	if cfg.ExchangeB != "" {
		errs.AddError("exchange_b", ValidateExchange(cfg.ExchangeB))
	}
	if cfg.ExchangeA != "" && cfg.ExchangeB != "" && NormalizeExchange(cfg.ExchangeA) == NormalizeExchange(cfg.ExchangeB) {
		errs.Add("exchange_b", "exchange_a and exchange_b must differ")
	}

	if cfg.EntrySpread <= cfg.ExitSpread {
		errs.Add("entry_spread", "entry spread must be greater than exit spread")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ValidationError - одна ошибка валидации, привязанная к полю.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors - набор ошибок валидации, сам являющийся error.
type ValidationErrors []ValidationError

// Add добавляет ошибку по полю и сообщению.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку err для поля field, если err не nil.
func (e *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	*e = append(*e, ValidationError{Field: field, Message: err.Error()})
}

// HasErrors сообщает, есть ли накопленные ошибки.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Error реализует интерфейс error.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e))
	for _, v := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return strings.Join(parts, "; ")
}

// IsValidSymbol - булев помощник поверх ValidateSymbol.
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// IsValidEmail - булев помощник поверх ValidateEmail.
func IsValidEmail(email string) bool {
	return ValidateEmail(email) == nil
}

// IsValidAPIKey - булев помощник поверх ValidateAPIKey.
func IsValidAPIKey(apiKey string) bool {
	return ValidateAPIKey(apiKey) == nil
}

// IsValidExchange - булев помощник поверх ValidateExchange.
func IsValidExchange(exchange string) bool {
	return ValidateExchange(exchange) == nil
}

// GetSupportedExchanges возвращает копию списка поддерживаемых бирж.
func GetSupportedExchanges() []string {
	out := make([]string, len(SupportedExchanges))
	copy(out, SupportedExchanges)
	return out
}
