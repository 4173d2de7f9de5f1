package worker

import "tradingagent/internal/models"

// validTransitions - допустимые переходы состояния агента. Переход в error
// разрешен из любого нетерминального состояния, поэтому обрабатывается
// отдельно в CanTransition, а не перечисляется здесь для каждой строки.
var validTransitions = map[string][]string{
	models.AgentStatusCreated:  {models.AgentStatusStarting},
	models.AgentStatusStarting: {models.AgentStatusRunning, models.AgentStatusStopped},
	models.AgentStatusRunning:  {models.AgentStatusStopping, models.AgentStatusStopped},
	models.AgentStatusStopping: {models.AgentStatusStopped},
	models.AgentStatusStopped:  {models.AgentStatusStarting},
	models.AgentStatusError:    {models.AgentStatusStarting},
}

// nonTerminal - статусы, из которых разрешен аварийный переход в error.
var nonTerminal = map[string]bool{
	models.AgentStatusCreated:  true,
	models.AgentStatusStarting: true,
	models.AgentStatusRunning:  true,
	models.AgentStatusStopping: true,
}

// CanTransition проверяет допустимость перехода между статусами агента.
func CanTransition(from, to string) bool {
	if to == models.AgentStatusError {
		return nonTerminal[from]
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, является ли статус конечным для одного запуска агента.
func IsTerminal(status string) bool {
	return status == models.AgentStatusStopped || status == models.AgentStatusError
}
