// Package bus реализует шину событий на Redis Pub/Sub для обмена сообщениями
// между воркерами-агентами, менеджером и модулем анализа.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"tradingagent/pkg/utils"
)

// Имена каналов - см. redis_pubsub.py оригинала.
const (
	ChannelAgentEvents    = "agent_events"
	ChannelGroupUpdates   = "group_updates"
	ChannelLearningModule = "learning_module"
)

// Message - конверт сообщения шины. AgentID/GroupID опциональны в
// зависимости от типа события.
type Message struct {
	Type    string          `json:"type"`
	AgentID int             `json:"agent_id,omitempty"`
	GroupID int             `json:"group_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler обрабатывает одно входящее сообщение канала.
type Handler func(Message)

// Config конфигурация подключения к Redis.
type Config struct {
	Host string
	Port int
	DB   int

	ReconnectDelay time.Duration
	MaxReconnectDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:              "redis",
		Port:              6379,
		DB:                0,
		ReconnectDelay:    5 * time.Second,
		MaxReconnectDelay: 20 * time.Second,
	}
}

// connState отражает состояние соединения с Redis.
type connState int32

const (
	stateDisconnected connState = iota
	stateConnected
	stateClosed
)

// subscription - сохраненная подписка на канал, нужна для переподписки
// после восстановления соединения.
type subscription struct {
	channel string
	handler Handler
}

// Bus - менеджер publish/subscribe поверх Redis. В отличие от прототипа
// (redis_pubsub.py, _listener_loop), реально переподписывается на все
// каналы после восстановления соединения, а не оставляет это как TODO.
type Bus struct {
	cfg    Config
	client *redis.Client
	logger *utils.Logger

	state int32 // atomic connState

	subsMu sync.RWMutex
	subs   []subscription

	cancelFuncs   map[string]context.CancelFunc
	cancelFuncsMu sync.Mutex

	closeCh chan struct{}
	closeOnce sync.Once
}

// New создает шину и устанавливает первоначальное соединение. Ошибка
// подключения не возвращается как фатальная - IsReady() сообщает о
// готовности, а публикации/подписки до восстановления связи отклоняются.
func New(cfg Config) *Bus {
	b := &Bus{
		cfg:         cfg,
		logger:      utils.L().WithComponent("bus"),
		cancelFuncs: make(map[string]context.CancelFunc),
		closeCh:     make(chan struct{}),
	}
	b.connect()
	return b
}

func (b *Bus) connect() {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", b.cfg.Host, b.cfg.Port),
		DB:   b.cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		b.logger.Warn("failed to connect to redis", utils.Err(err), utils.String("addr", fmt.Sprintf("%s:%d", b.cfg.Host, b.cfg.Port)))
		atomic.StoreInt32(&b.state, int32(stateDisconnected))
		_ = client.Close()
		return
	}

	b.client = client
	atomic.StoreInt32(&b.state, int32(stateConnected))
	b.logger.Info("bus connected to redis", utils.String("addr", fmt.Sprintf("%s:%d", b.cfg.Host, b.cfg.Port)))
}

// IsReady сообщает, активно ли соединение с Redis.
func (b *Bus) IsReady() bool {
	return connState(atomic.LoadInt32(&b.state)) == stateConnected
}

// Publish публикует сообщение (как JSON) в указанный канал.
func (b *Bus) Publish(ctx context.Context, channel string, msg Message) error {
	if !b.IsReady() {
		return fmt.Errorf("bus not ready: cannot publish to %s", channel)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("publish failed, scheduling reconnect", utils.String("channel", channel), utils.Err(err))
		b.handleDisconnect()
		return err
	}

	return nil
}

// Subscribe подписывается на канал и регистрирует обработчик. Подписка
// сохраняется для восстановления после переподключения.
func (b *Bus) Subscribe(channel string, handler Handler) {
	b.subsMu.Lock()
	b.subs = append(b.subs, subscription{channel: channel, handler: handler})
	b.subsMu.Unlock()

	if b.IsReady() {
		b.startListening(channel, handler)
	}
}

func (b *Bus) startListening(channel string, handler Handler) {
	ctx, cancel := context.WithCancel(context.Background())

	b.cancelFuncsMu.Lock()
	if existing, ok := b.cancelFuncs[channel]; ok {
		existing()
	}
	b.cancelFuncs[channel] = cancel
	b.cancelFuncsMu.Unlock()

	pubsub := b.client.Subscribe(ctx, channel)
	go b.listenLoop(ctx, channel, pubsub, handler)
}

func (b *Bus) listenLoop(ctx context.Context, channel string, pubsub *redis.PubSub, handler Handler) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closeCh:
			return
		case rawMsg, ok := <-ch:
			if !ok {
				b.logger.Warn("redis subscription channel closed", utils.String("channel", channel))
				b.handleDisconnect()
				return
			}

			var msg Message
			if err := json.Unmarshal([]byte(rawMsg.Payload), &msg); err != nil {
				b.logger.Warn("received non-JSON message", utils.String("channel", channel), utils.Err(err))
				continue
			}

			// Listener один на канал (повторная подписка перезапускает его),
			// поэтому сообщение получают все сохраненные обработчики канала.
			b.subsMu.RLock()
			var handlers []Handler
			for _, s := range b.subs {
				if s.channel == channel {
					handlers = append(handlers, s.handler)
				}
			}
			b.subsMu.RUnlock()
			for _, h := range handlers {
				h(msg)
			}
		}
	}
}

// handleDisconnect помечает шину отключенной и запускает цикл
// переподключения с exponential backoff, восстанавливая все сохраненные
// подписки по завершении.
func (b *Bus) handleDisconnect() {
	if !atomic.CompareAndSwapInt32(&b.state, int32(stateConnected), int32(stateDisconnected)) {
		return // уже в процессе переподключения или закрыта
	}

	b.cancelFuncsMu.Lock()
	for _, cancel := range b.cancelFuncs {
		cancel()
	}
	b.cancelFuncs = make(map[string]context.CancelFunc)
	b.cancelFuncsMu.Unlock()

	if b.client != nil {
		_ = b.client.Close()
		b.client = nil
	}

	go b.reconnectLoop()
}

func (b *Bus) reconnectLoop() {
	delay := b.cfg.ReconnectDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	maxDelay := b.cfg.MaxReconnectDelay
	if maxDelay <= 0 {
		maxDelay = 16 * time.Second
	}

	for {
		select {
		case <-b.closeCh:
			return
		case <-time.After(delay):
		}

		b.connect()
		if b.IsReady() {
			b.resubscribeAll()
			b.logger.Info("bus reconnected and resubscribed")
			return
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// resubscribeAll восстанавливает все сохраненные подписки. Это - именно та
// логика, которую _listener_loop оригинала явно не реализовывал
// ("Need to re-implement channel resubscription logic after reconnect").
func (b *Bus) resubscribeAll() {
	b.subsMu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.subsMu.RUnlock()

	for _, s := range subs {
		b.startListening(s.channel, s.handler)
	}

	if len(subs) > 0 {
		b.logger.Info("resubscribed to channels", utils.Int("count", len(subs)))
	}
}

// Close останавливает все подписки и закрывает соединение с Redis.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		close(b.closeCh)
	})

	atomic.StoreInt32(&b.state, int32(stateClosed))

	b.cancelFuncsMu.Lock()
	for _, cancel := range b.cancelFuncs {
		cancel()
	}
	b.cancelFuncsMu.Unlock()

	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
