// Package manager владеет процессом-синглтоном запущенных воркеров
// стратегий: карта agent-id → воркер, разделяемый биржевой клиент и
// разделяемая шина.
package manager

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tradingagent/internal/bus"
	"tradingagent/internal/exchange"
	"tradingagent/internal/models"
	"tradingagent/internal/worker"
	"tradingagent/pkg/utils"
)

// runningAgent хранит рантайм-информацию о запущенном воркере.
type runningAgent struct {
	instance  worker.Runnable
	kind      string
	startedAt time.Time
	cancel    context.CancelFunc
}

// Manager - процесс-синглтон; конструируется один раз в cmd/server и
// передается по зависимостям, а не хранится в package-level переменной.
type Manager struct {
	mu     sync.Mutex
	agents map[int]*runningAgent

	db     *sql.DB
	client exchange.Client
	bus    *bus.Bus
	logger *utils.Logger
}

// New создает менеджер с разделяемым биржевым клиентом и шиной. client
// может быть not-ready - в этом случае все попытки старта будут отказывать,
// как того требует контракт.
func New(db *sql.DB, client exchange.Client, b *bus.Bus) *Manager {
	return &Manager{
		agents: make(map[int]*runningAgent),
		db:     db,
		client: client,
		bus:    b,
		logger: utils.L().WithComponent("agent_manager"),
	}
}

// StartAgentProcess запускает воркер для агента. Отказывает, если агент
// уже отслеживается, биржевой клиент не готов, или вид агента не поддержан.
func (m *Manager) StartAgentProcess(agentID int, kind string, config json.RawMessage, groupID *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[agentID]; exists {
		return fmt.Errorf("agent %d is already running", agentID)
	}

	if m.client == nil || !m.client.IsReady() {
		return fmt.Errorf("shared exchange client is not ready")
	}

	session := worker.NewSession(m.db)

	current, err := session.GetAgent(agentID)
	if err != nil {
		return fmt.Errorf("failed to load agent before start: %w", err)
	}
	if !worker.CanTransition(current.Status, models.AgentStatusStarting) {
		return fmt.Errorf("agent %d cannot start from status %q", agentID, current.Status)
	}
	if _, err := session.UpdateAgentStatus(agentID, models.AgentStatusStarting, ""); err != nil {
		m.logger.Error("failed to persist starting status", utils.Int("agent_id", agentID), utils.Err(err))
		return err
	}

	w, err := worker.New(agentID, kind, groupID, config, session, m.client, m.bus)
	if err != nil {
		m.logger.Error("failed to construct worker", utils.Int("agent_id", agentID), utils.Err(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	m.agents[agentID] = &runningAgent{
		instance:  w,
		kind:      kind,
		startedAt: time.Now(),
		cancel:    cancel,
	}

	m.logger.Info("agent process started", utils.Int("agent_id", agentID), utils.String("kind", kind))
	return nil
}

// StopAgentProcess сигнализирует остановку и немедленно снимает агента с
// отслеживания - воркер сам завершится и персистирует терминальный статус.
func (m *Manager) StopAgentProcess(agentID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, exists := m.agents[agentID]
	if !exists {
		return false
	}

	session := worker.NewSession(m.db)
	if current, err := session.GetAgent(agentID); err != nil {
		m.logger.Warn("failed to load agent status before stop", utils.Int("agent_id", agentID), utils.Err(err))
	} else if worker.CanTransition(current.Status, models.AgentStatusStopping) {
		if _, err := session.UpdateAgentStatus(agentID, models.AgentStatusStopping, ""); err != nil {
			m.logger.Error("failed to persist stopping status", utils.Int("agent_id", agentID), utils.Err(err))
		}
	}

	agent.instance.Stop()
	agent.cancel()
	delete(m.agents, agentID)

	m.logger.Info("stop signaled and agent removed from tracking", utils.Int("agent_id", agentID))
	return true
}

// IsAgentRunning сообщает, отслеживается ли агент и жив ли его воркер.
// Устаревшая запись (воркер умер, не сообщив об этом) удаляется.
func (m *Manager) IsAgentRunning(agentID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkAliveLocked(agentID)
}

func (m *Manager) checkAliveLocked(agentID int) bool {
	agent, exists := m.agents[agentID]
	if !exists {
		return false
	}
	if agent.instance.IsRunning() {
		return true
	}
	m.logger.Warn("stale entry found for non-alive worker, cleaning up", utils.Int("agent_id", agentID))
	delete(m.agents, agentID)
	return false
}

// RunningAgentInfo - снимок рантайм-состояния агента для внешних читателей.
type RunningAgentInfo struct {
	AgentID   int
	Kind      string
	StartedAt time.Time
}

// GetRunningAgentInfo возвращает снимок информации о трекаемом агенте,
// либо ok=false если агент не отслеживается (или запись устарела).
func (m *Manager) GetRunningAgentInfo(agentID int) (RunningAgentInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.checkAliveLocked(agentID) {
		return RunningAgentInfo{}, false
	}

	agent := m.agents[agentID]
	return RunningAgentInfo{
		AgentID:   agentID,
		Kind:      agent.kind,
		StartedAt: agent.startedAt,
	}, true
}

// ListRunningAgentIDs возвращает id всех живых агентов, попутно вычищая
// устаревшие записи.
func (m *Manager) ListRunningAgentIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int, 0, len(m.agents))
	stale := make([]int, 0)
	for id, agent := range m.agents {
		if agent.instance.IsRunning() {
			ids = append(ids, id)
		} else {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		m.logger.Warn("cleaning up stale agent entry", utils.Int("agent_id", id))
		delete(m.agents, id)
	}

	return ids
}

// ReconcileStatus сопоставляет персистентный статус с живостью, которую
// наблюдает менеджер, и возвращает скорректированный статус и сообщение,
// если требуется исправление. needsFix=false означает, что расхождения нет.
func (m *Manager) ReconcileStatus(agentID int, persistedStatus string) (correctedStatus, message string, needsFix bool) {
	alive := m.IsAgentRunning(agentID)

	switch {
	case persistedStatus == models.AgentStatusRunning && !alive:
		return models.AgentStatusError, "process not found by manager", true
	case persistedStatus != models.AgentStatusRunning && alive:
		return models.AgentStatusRunning, "status corrected from manager state", true
	default:
		return persistedStatus, "", false
	}
}
