// Package analyzer реализует наблюдателя за эффективностью агентов: по
// накопленному P&L строит простой тренд и публикует предложения/инсайты
// на шину, которые воркеры могут (но не обязаны) учитывать.
package analyzer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"tradingagent/internal/bus"
	"tradingagent/internal/repository"
	"tradingagent/pkg/utils"
)

const (
	maxTradesForAnalysis = 500
	negativeTrendSlope   = -0.0001 // USD/сек, порог обнаружения отрицательного тренда
)

// Suggestion - предложение по параметрам одного агента.
type Suggestion struct {
	AgentID    int                    `json:"agent_id"`
	Suggestion string                 `json:"suggestion"`
	Details    map[string]interface{} `json:"details"`
}

// Insight - агрегированное наблюдение по группе.
type Insight struct {
	GroupID int                    `json:"group_id"`
	Insight string                 `json:"insight"`
	Details map[string]interface{} `json:"details"`
}

// Analyzer - держит read-only доступ к сделкам/группам и, опционально,
// шину для публикации результатов.
type Analyzer struct {
	agents *repository.AgentRepository
	trades *repository.TradeRepository
	bus    *bus.Bus
	logger *utils.Logger
}

func New(db *sql.DB, b *bus.Bus) *Analyzer {
	return &Analyzer{
		agents: repository.NewAgentRepository(db),
		trades: repository.NewTradeRepository(db),
		bus:    b,
		logger: utils.L().WithComponent("analyzer"),
	}
}

type pnlPoint struct {
	timestamp time.Time
	pnl       float64
}

// tradePnLSeries возвращает отсортированные по времени по возрастанию точки
// (время, реализованный P&L) - только сделки, где P&L известен.
func (a *Analyzer) tradePnLSeries(agentID int) ([]pnlPoint, error) {
	trades, err := a.trades.ListForAgent(agentID, 0, maxTradesForAnalysis)
	if err != nil {
		return nil, err
	}

	points := make([]pnlPoint, 0, len(trades))
	for _, t := range trades {
		if !t.RealizedPnL.Valid {
			continue
		}
		pnl, _ := t.RealizedPnL.Decimal.Float64()
		points = append(points, pnlPoint{timestamp: t.Timestamp, pnl: pnl})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].timestamp.Before(points[j].timestamp)
	})

	return points, nil
}

// AnalyzeAgentPerformance строит тренд кумулятивного P&L по времени.
// При обнаружении устойчиво отрицательного тренда публикует предложение
// на learning_module.
func (a *Analyzer) AnalyzeAgentPerformance(ctx context.Context, agentID int) (string, *Suggestion, error) {
	points, err := a.tradePnLSeries(agentID)
	if err != nil {
		return "", nil, err
	}

	if len(points) == 0 {
		return fmt.Sprintf("agent %d: no trades with realized P&L to analyze", agentID), nil, nil
	}

	if len(points) < 2 {
		return fmt.Sprintf("agent %d: insufficient data points for trend analysis", agentID), nil, nil
	}

	start := points[0].timestamp
	x := make([]float64, len(points))
	y := make([]float64, len(points))
	cumulative := 0.0
	for i, p := range points {
		cumulative += p.pnl
		x[i] = p.timestamp.Sub(start).Seconds()
		y[i] = cumulative
	}

	slope, _, ok := linearRegression(x, y)
	if !ok {
		return fmt.Sprintf("agent %d: trend could not be computed", agentID), nil, nil
	}

	summary := fmt.Sprintf("agent %d: cumulative P&L slope %.6f USD/sec", agentID, slope)

	var suggestion *Suggestion
	if slope < negativeTrendSlope {
		summary += "; negative trend detected"
		suggestion = &Suggestion{
			AgentID:    agentID,
			Suggestion: "negative P&L trend detected, recommend reviewing agent parameters",
			Details:    map[string]interface{}{"pnl_slope": slope},
		}
		a.publishSuggestion(ctx, *suggestion)
	} else {
		summary += "; trend stable or positive"
	}

	a.logger.Info(summary, utils.Int("agent_id", agentID))
	return summary, suggestion, nil
}

func (a *Analyzer) publishSuggestion(ctx context.Context, s Suggestion) {
	if a.bus == nil || !a.bus.IsReady() {
		return
	}

	payload, err := json.Marshal(s)
	if err != nil {
		a.logger.Error("failed to marshal suggestion", utils.Err(err))
		return
	}

	msg := bus.Message{
		Type:    "suggestion",
		AgentID: s.AgentID,
		Payload: payload,
	}

	if err := a.bus.Publish(ctx, bus.ChannelLearningModule, msg); err != nil {
		a.logger.Warn("failed to publish suggestion", utils.Err(err))
	}
}

// AnalyzeGroupPerformance агрегирует реализованный P&L по всем агентам
// группы и публикует инсайт на group_updates.
func (a *Analyzer) AnalyzeGroupPerformance(ctx context.Context, groupID int) (string, *Insight, error) {
	members, err := a.agents.ListInGroup(groupID)
	if err != nil {
		return "", nil, err
	}

	if len(members) == 0 {
		return fmt.Sprintf("group %d: no agents in group", groupID), nil, nil
	}

	pnlByAgent := make(map[int]float64, len(members))
	total := 0.0

	for _, agent := range members {
		points, err := a.tradePnLSeries(agent.ID)
		if err != nil {
			return "", nil, err
		}
		sum := 0.0
		for _, p := range points {
			sum += p.pnl
		}
		pnlByAgent[agent.ID] = sum
		total += sum
	}

	if len(pnlByAgent) == 0 {
		return fmt.Sprintf("group %d: no trade data for any agent", groupID), nil, nil
	}

	bestID, worstID := bestAndWorst(pnlByAgent)

	summary := fmt.Sprintf("group %d: total realized P&L %.2f USD, best performer agent %d, worst performer agent %d",
		groupID, total, bestID, worstID)
	a.logger.Info(summary, utils.Int("group_id", groupID))

	insight := &Insight{
		GroupID: groupID,
		Insight: summary,
		Details: map[string]interface{}{
			"total_pnl":    total,
			"pnl_by_agent": pnlByAgent,
			"best_agent":   bestID,
			"worst_agent":  worstID,
		},
	}
	a.publishInsight(ctx, *insight)

	return summary, insight, nil
}

func bestAndWorst(pnlByAgent map[int]float64) (best, worst int) {
	first := true
	var bestPnL, worstPnL float64
	for id, pnl := range pnlByAgent {
		if first {
			best, worst = id, id
			bestPnL, worstPnL = pnl, pnl
			first = false
			continue
		}
		if pnl > bestPnL {
			best, bestPnL = id, pnl
		}
		if pnl < worstPnL {
			worst, worstPnL = id, pnl
		}
	}
	return best, worst
}

func (a *Analyzer) publishInsight(ctx context.Context, in Insight) {
	if a.bus == nil || !a.bus.IsReady() {
		return
	}

	payload, err := json.Marshal(in)
	if err != nil {
		a.logger.Error("failed to marshal insight", utils.Err(err))
		return
	}

	msg := bus.Message{
		Type:    "insight",
		GroupID: in.GroupID,
		Payload: payload,
	}

	if err := a.bus.Publish(ctx, bus.ChannelGroupUpdates, msg); err != nil {
		a.logger.Warn("failed to publish insight", utils.Err(err))
	}
}
