package worker

import (
	"encoding/json"
	"fmt"

	"tradingagent/internal/bus"
	"tradingagent/internal/exchange"
	"tradingagent/internal/models"
)

// New строит воркер нужного вида по его персистентной конфигурации. Вызов
// NewBase проверяет готовность биржевого клиента и обновляет статус на
// error при провале - ошибка здесь уже означает, что агента запускать
// не нужно.
func New(agentID int, kind string, groupID *int, config json.RawMessage, store Store, client exchange.Client, b *bus.Bus) (Runnable, error) {
	base, err := NewBase(agentID, kind, groupID, store, client, b)
	if err != nil {
		return nil, err
	}

	switch kind {
	case models.AgentKindGrid:
		var cfg models.GridConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("invalid grid config: %w", err)
		}
		return NewGridWorker(base, client, cfg)
	default:
		return nil, fmt.Errorf("unsupported agent kind: %s", kind)
	}
}
