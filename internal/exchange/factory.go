package exchange

import (
	"fmt"
	"strings"

	"tradingagent/pkg/utils"
)

// SupportedExchanges - список поддерживаемых бирж, зеркалит
// pkg/utils.SupportedExchanges, чтобы у обоих слоев валидации (конфиг и
// фабрика клиента) был один источник истины.
var SupportedExchanges = utils.GetSupportedExchanges()

// NewClient создает новый экземпляр спотового биржевого клиента по имени.
// apiKey/apiSecret/passphrase уже расшифрованы вызывающей стороной.
func NewClient(name, apiKey, apiSecret, passphrase string) (Client, error) {
	name = strings.ToLower(name)

	if !IsSupported(name) {
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}

	// На сегодня единственная реально реализованная интеграция - спотовый
	// REST-клиент, адаптированный из Bybit v5. Остальные имена числятся
	// поддерживаемыми по конфигурации/валидации (pkg/utils.ValidateExchange),
	// но не имеют собственной реализации клиента - см. DESIGN.md.
	return NewSpotClient(name, apiKey, apiSecret, passphrase), nil
}

// IsSupported проверяет, поддерживается ли биржа. Делегирует
// pkg/utils.IsValidExchange, чтобы имя не валидировалось по двум
// независимым спискам.
func IsSupported(name string) bool {
	return utils.IsValidExchange(name)
}
