// Package apperrors централизует классификацию ошибок домена - персистентный
// слой, биржевой клиент и шина сообщений оборачивают свои отказы в Kind,
// чтобы вызывающий код (HTTP-слой, менеджер агентов) мог единообразно
// реагировать без знания внутренностей каждого пакета.
package apperrors

import "fmt"

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindExchangeTransient
	KindExchangeRateLimited
	KindExchangeFatal
	KindPersistence
	KindBusUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExchangeTransient:
		return "exchange_transient"
	case KindExchangeRateLimited:
		return "exchange_rate_limited"
	case KindExchangeFatal:
		return "exchange_fatal"
	case KindPersistence:
		return "persistence"
	case KindBusUnavailable:
		return "bus_unavailable"
	default:
		return "unknown"
	}
}

// AppError - типизированная ошибка уровня приложения.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *AppError        { return New(KindValidation, message) }
func NotFound(message string) *AppError          { return New(KindNotFound, message) }
func Conflict(message string) *AppError          { return New(KindConflict, message) }
func Persistence(message string, err error) *AppError {
	return Wrap(KindPersistence, message, err)
}
func BusUnavailable(message string) *AppError { return New(KindBusUnavailable, message) }

func ExchangeTransient(message string, err error) *AppError {
	return Wrap(KindExchangeTransient, message, err)
}
func ExchangeRateLimited(message string, err error) *AppError {
	return Wrap(KindExchangeRateLimited, message, err)
}
func ExchangeFatal(message string, err error) *AppError {
	return Wrap(KindExchangeFatal, message, err)
}

// Is сообщает, относится ли ошибка (напрямую или через Unwrap) к данному Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			return ae.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
