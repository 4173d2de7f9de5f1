package utils

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - настройка логирования
//
// Назначение:
// Инициализация и настройка структурированного логирования.
//
// Функции:
// - InitLogger: создать и настроить logger
//   * Выбор формата (JSON, text)
//   * Уровни: DEBUG, INFO, WARN, ERROR
// - GetGlobalLogger/InitGlobalLogger/SetGlobalLogger: доступ к глобальному логгеру
//
// Библиотека: zap (uber-go/zap) - fast structured logging

// LogConfig - конфигурация логгера.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Development bool
	Output      string // путь к файлу; пусто - stdout
}

// Logger оборачивает zap.Logger парой полей - структурированный и sugared логгеры.
type Logger struct {
	Logger *zap.Logger
	sugar  *zap.SugaredLogger
}

var (
	globalLogger *Logger
	globalMu     sync.Mutex
)

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug", "DEBUG":
		return zapcore.DebugLevel
	case "info", "INFO":
		return zapcore.InfoLevel
	case "warn", "WARN", "warning", "WARNING":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	case "fatal", "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger создает новый Logger по конфигурации. Невалидный путь вывода
// приводит к fallback на stderr, без паники.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var writer zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stdout":
		writer = zapcore.AddSync(os.Stdout)
	case "stderr":
		writer = zapcore.AddSync(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			writer = zapcore.AddSync(os.Stderr)
		} else {
			writer = zapcore.AddSync(f)
		}
	}

	core := zapcore.NewCore(encoder, writer, level)

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)

	return &Logger{
		Logger: zl,
		sugar:  zl.Sugar(),
	}
}

// GetGlobalLogger возвращает глобальный логгер, лениво создавая его по умолчанию.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// InitGlobalLogger создает логгер по конфигурации и устанавливает его глобальным.
func InitGlobalLogger(cfg LogConfig) *Logger {
	logger := InitLogger(cfg)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает готовый логгер как глобальный.
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// L - короткий алиас для GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

// With возвращает новый Logger с прикрепленными полями.
func (l *Logger) With(fields ...zap.Field) *Logger {
	newZl := l.Logger.With(fields...)
	return &Logger{
		Logger: newZl,
		sugar:  newZl.Sugar(),
	}
}

// WithComponent прикрепляет имя компонента.
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(Component(component))
}

// WithExchange прикрепляет имя биржи.
func (l *Logger) WithExchange(exchange string) *Logger {
	return l.With(Exchange(exchange))
}

// WithSymbol прикрепляет торговый символ.
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(Symbol(symbol))
}

// WithPairID прикрепляет идентификатор пары.
func (l *Logger) WithPairID(pairID int) *Logger {
	return l.With(PairID(pairID))
}

// Sugar возвращает sugared логгер для fmt-style вызовов.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.Logger.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.Logger.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.Logger.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.Logger.Error(msg, fields...) }

// Sync сбрасывает буферы логгера.
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}

// Пакетные функции логирования поверх глобального логгера.

func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetGlobalLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { GetGlobalLogger().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { GetGlobalLogger().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(format, args...) }

// Кастомные конструкторы полей для доменных понятий.

func Exchange(v string) zap.Field  { return zap.String("exchange", v) }
func Symbol(v string) zap.Field    { return zap.String("symbol", v) }
func PairID(v int) zap.Field       { return zap.Int("pair_id", v) }
func OrderID(v string) zap.Field   { return zap.String("order_id", v) }
func Price(v float64) zap.Field    { return zap.Float64("price", v) }
func Volume(v float64) zap.Field   { return zap.Float64("volume", v) }
func Spread(v float64) zap.Field   { return zap.Float64("spread", v) }
func PNL(v float64) zap.Field      { return zap.Float64("pnl", v) }
func Side(v string) zap.Field      { return zap.String("side", v) }
func State(v string) zap.Field     { return zap.String("state", v) }
func Latency(v float64) zap.Field  { return zap.Float64("latency_ms", v) }
func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func UserID(v int) zap.Field       { return zap.Int("user_id", v) }
func Component(v string) zap.Field { return zap.String("component", v) }

// Переэкспорт часто используемых конструкторов zap, чтобы вызывающий код
// не импортировал zap напрямую.

func String(key, value string) zap.Field        { return zap.String(key, value) }
func Int(key string, value int) zap.Field       { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field   { return zap.Int64(key, value) }
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }
func Bool(key string, value bool) zap.Field     { return zap.Bool(key, value) }
func Err(err error) zap.Field                   { return zap.Error(err) }
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

// fieldsToInterface разворачивает zap.Field в чередующийся список ключ/значение
// для использования с sugared-логгером.
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		result = append(result, f.Key, enc.Fields[f.Key])
	}
	return result
}
