package worker

import (
	"database/sql"

	"tradingagent/internal/models"
	"tradingagent/internal/repository"
)

// Store - персистентный доступ, которым пользуется один воркер: статус
// своего агента и запись собственных сделок. Уже сервер конфигурация
// читается один раз при конструировании воркера, поэтому здесь не нужен
// полный набор операций AgentRepository.
type Store interface {
	GetAgent(id int) (*models.Agent, error)
	UpdateAgentStatus(id int, status, message string) (*models.Agent, error)
	CreateTrade(trade *models.Trade) (*models.Trade, error)
}

// dbStore - реализация Store поверх общего пула *sql.DB. "Персистентная
// сессия" воркера в понимании спецификации - это просто набор репозиториев,
// разделяющих один пул соединений: database/sql уже потокобезопасен, в
// отличие от SQLAlchemy Session оригинала, которому требовалась отдельная
// сессия на поток.
type dbStore struct {
	agents *repository.AgentRepository
	trades *repository.TradeRepository
}

// NewSession создает персистентную сессию для одного воркера.
func NewSession(db *sql.DB) Store {
	return &dbStore{
		agents: repository.NewAgentRepository(db),
		trades: repository.NewTradeRepository(db),
	}
}

func (s *dbStore) GetAgent(id int) (*models.Agent, error) {
	return s.agents.GetByID(id)
}

func (s *dbStore) UpdateAgentStatus(id int, status, message string) (*models.Agent, error) {
	return s.agents.UpdateStatus(id, status, message)
}

func (s *dbStore) CreateTrade(trade *models.Trade) (*models.Trade, error) {
	return s.trades.Create(trade)
}
