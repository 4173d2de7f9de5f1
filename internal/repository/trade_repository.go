package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tradingagent/internal/models"
	"tradingagent/pkg/utils"
)

var (
	ErrTradeDuplicateOrderID = errors.New("trade with this exchange order id already exists")
)

// TradeRepository - работа с таблицей trades. Записи иммутабельны после
// вставки - только Create и чтения.
type TradeRepository struct {
	db *sql.DB
}

func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create вставляет сделку. Временная метка всегда проставляется сервером
// (игнорирует trade.Timestamp на входе), соответствуя запрету на
// клиентские временные метки из модели данных.
func (r *TradeRepository) Create(trade *models.Trade) (*models.Trade, error) {
	query := `
		INSERT INTO trades (agent_id, timestamp, symbol, exchange_order_id, client_order_id, side, price, quantity, quote_quantity, commission, commission_asset, realized_pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	now := time.Now()
	err := r.db.QueryRow(
		query,
		trade.AgentID,
		now,
		trade.Symbol,
		trade.ExchangeOrderID,
		trade.ClientOrderID,
		trade.Side,
		trade.Price,
		trade.Quantity,
		trade.QuoteQuantity,
		trade.Commission,
		trade.CommissionAsset,
		trade.RealizedPnL,
	).Scan(&trade.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrTradeDuplicateOrderID
		}
		return nil, err
	}

	trade.Timestamp = now
	return trade, nil
}

// ListForAgent возвращает сделки агента, упорядоченные по времени по убыванию.
func (r *TradeRepository) ListForAgent(agentID, skip, limit int) ([]*models.Trade, error) {
	query := `
		SELECT id, agent_id, timestamp, symbol, exchange_order_id, client_order_id, side, price, quantity, quote_quantity, commission, commission_asset, realized_pnl
		FROM trades
		WHERE agent_id = $1
		ORDER BY timestamp DESC
		OFFSET $2 LIMIT $3`

	rows, err := r.db.Query(query, agentID, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		trade := &models.Trade{}
		// Commission/RealizedPnL scan directly into decimal.NullDecimal - it
		// implements sql.Scanner, no intermediate sql.Null* needed.
		if err := rows.Scan(
			&trade.ID, &trade.AgentID, &trade.Timestamp, &trade.Symbol, &trade.ExchangeOrderID,
			&trade.ClientOrderID, &trade.Side, &trade.Price, &trade.Quantity, &trade.QuoteQuantity,
			&trade.Commission, &trade.CommissionAsset, &trade.RealizedPnL,
		); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// AgentPnLSummary вычисляет сводку P&L агента. Unrealized остается
// заглушкой (0) - реальная переоценка открытых позиций вне скопа.
func (r *TradeRepository) AgentPnLSummary(agentID int) (*models.AgentPnLSummary, error) {
	var realizedTotal sql.NullString
	err := r.db.QueryRow(
		`SELECT COALESCE(SUM(realized_pnl), 0) FROM trades WHERE agent_id = $1`,
		agentID,
	).Scan(&realizedTotal)
	if err != nil {
		return nil, err
	}

	var pnl24h sql.NullString
	err = r.db.QueryRow(
		`SELECT COALESCE(SUM(realized_pnl), 0) FROM trades WHERE agent_id = $1 AND timestamp >= $2`,
		agentID, utils.GetDayStart(),
	).Scan(&pnl24h)
	if err != nil {
		return nil, err
	}

	realized, _ := decimal.NewFromString(realizedTotal.String)
	last24h, _ := decimal.NewFromString(pnl24h.String)

	return &models.AgentPnLSummary{
		RealizedTotal: realized,
		Unrealized:    decimal.Zero,
		PnL24h:        last24h,
	}, nil
}

// GroupPnLSummary агрегирует realized P&L по всем агентам группы.
func (r *TradeRepository) GroupPnLSummary(groupID int, agentIDs []int) (*models.GroupPnLSummary, error) {
	summary := &models.GroupPnLSummary{
		TotalAgents: len(agentIDs),
		PerAgent:    make(map[int]decimal.Decimal, len(agentIDs)),
	}

	total := decimal.Zero
	for _, agentID := range agentIDs {
		agentSummary, err := r.AgentPnLSummary(agentID)
		if err != nil {
			return nil, err
		}
		summary.PerAgent[agentID] = agentSummary.RealizedTotal
		total = total.Add(agentSummary.RealizedTotal)
	}
	summary.AggregatedRealizedPnL = total

	return summary, nil
}
