package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// math.go - математические утилиты
//
// Назначение:
// Вспомогательные математические функции для торговли.
//
// Функции:
// - RoundToLotSize: округление до lot size биржи
//   * Пример: 0.123456 BTC с lot size 0.001 → 0.123 BTC
// - CalculateSpread: расчет спреда между ценами
//   * Formula: (priceHigh - priceLow) / priceLow * 100
// - CalculateNetSpread: чистый спред с учетом комиссий
//   * spread - 2*(feeA + feeB)*100 (spread в процентах, комиссии - доли)
// - CalculateWeightedAverage: средневзвешенная цена
//   * Используется для расчета цены по стакану ордеров

// RoundToLotSize округляет value вниз до ближайшего кратного lotSize.
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// RoundToLotSizeDecimal округляет value вниз до ближайшего кратного lotSize,
// работая в decimal.Decimal - как RoundToLotSize, но без потери точности
// при переводе биржевых количеств через float64.
func RoundToLotSizeDecimal(value, lotSize decimal.Decimal) decimal.Decimal {
	if lotSize.Sign() <= 0 {
		return value
	}
	return value.Div(lotSize).Floor().Mul(lotSize)
}

// RoundToLotSizeUp округляет value вверх до ближайшего кратного lotSize.
func RoundToLotSizeUp(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Ceil(value/lotSize) * lotSize
}

// RoundToLotSizeNearest округляет value до ближайшего кратного lotSize.
func RoundToLotSizeNearest(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Round(value/lotSize) * lotSize
}

// CalculateSpread считает спред в процентах между верхней и нижней ценой.
func CalculateSpread(priceHigh, priceLow float64) float64 {
	if priceLow <= 0 {
		return 0
	}
	return (priceHigh - priceLow) / priceLow * 100
}

// CalculateSpreadFromPrices считает спред между двумя ценами вне зависимости
// от того, какая из них больше.
func CalculateSpreadFromPrices(priceA, priceB float64) float64 {
	if priceA >= priceB {
		return CalculateSpread(priceA, priceB)
	}
	return CalculateSpread(priceB, priceA)
}

// CalculateNetSpread вычитает из спреда комиссии обеих бирж.
func CalculateNetSpread(spreadPct, feeA, feeB float64) float64 {
	return spreadPct - 2*(feeA+feeB)*100
}

// CalculateNetSpreadDirect считает чистый спред напрямую из цен и комиссий.
func CalculateNetSpreadDirect(priceHigh, priceLow, feeA, feeB float64) float64 {
	return CalculateNetSpread(CalculateSpread(priceHigh, priceLow), feeA, feeB)
}

// CalculateWeightedAverage считает средневзвешенное значение values с весами weights.
// Отрицательные веса игнорируются.
func CalculateWeightedAverage(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}

	var sumValue, sumWeight float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		sumValue += values[i] * w
		sumWeight += w
	}

	if sumWeight <= 0 {
		return 0
	}
	return sumValue / sumWeight
}

// OrderBookLevel - один уровень стакана ордеров.
type OrderBookLevel struct {
	Price  float64
	Volume float64
}

// SimulateMarketBuy эмулирует рыночную покупку targetVolume по уровням asks.
func SimulateMarketBuy(asks []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	if len(asks) == 0 || targetVolume <= 0 {
		return 0, 0, 0
	}

	bestPrice := asks[0].Price
	remaining := targetVolume
	var cost float64

	for _, level := range asks {
		if remaining <= 0 {
			break
		}
		take := level.Volume
		if take > remaining {
			take = remaining
		}
		cost += take * level.Price
		filled += take
		remaining -= take
	}

	if filled <= 0 {
		return 0, 0, 0
	}

	avgPrice = cost / filled
	if bestPrice > 0 {
		slippagePct = (avgPrice - bestPrice) / bestPrice * 100
	}
	return avgPrice, filled, slippagePct
}

// SimulateMarketSell эмулирует рыночную продажу targetVolume по уровням bids.
func SimulateMarketSell(bids []OrderBookLevel, targetVolume float64) (avgPrice, filled, slippagePct float64) {
	if len(bids) == 0 || targetVolume <= 0 {
		return 0, 0, 0
	}

	bestPrice := bids[0].Price
	remaining := targetVolume
	var cost float64

	for _, level := range bids {
		if remaining <= 0 {
			break
		}
		take := level.Volume
		if take > remaining {
			take = remaining
		}
		cost += take * level.Price
		filled += take
		remaining -= take
	}

	if filled <= 0 {
		return 0, 0, 0
	}

	avgPrice = cost / filled
	if bestPrice > 0 {
		slippagePct = (avgPrice - bestPrice) / bestPrice * 100
	}
	return avgPrice, filled, slippagePct
}

// CalculatePNL считает PnL для одной ноги позиции.
func CalculatePNL(side string, entryPrice, currentPrice, quantity float64) float64 {
	switch side {
	case "long":
		return (currentPrice - entryPrice) * quantity
	case "short":
		return (entryPrice - currentPrice) * quantity
	default:
		return 0
	}
}

// CalculateTotalPNL считает суммарный PnL по двум ногам арбитражной пары
// (long на бирже A, short на бирже B).
func CalculateTotalPNL(entryA, currentA, entryB, currentB, quantity float64) float64 {
	return CalculatePNL("long", entryA, currentA, quantity) + CalculatePNL("short", entryB, currentB, quantity)
}

// SplitVolume делит totalVolume на nParts равных частей, округленных до lotSize.
func SplitVolume(totalVolume float64, nParts int, lotSize float64) []float64 {
	if nParts <= 0 || totalVolume <= 0 {
		return nil
	}

	part := totalVolume / float64(nParts)
	result := make([]float64, nParts)
	for i := range result {
		result[i] = RoundToLotSize(part, lotSize)
	}
	return result
}

// IsSpreadSufficient проверяет, достаточен ли спред для входа в позицию.
func IsSpreadSufficient(spread, threshold float64) bool {
	return spread >= threshold
}

// ShouldExit проверяет, достигнут ли спред, при котором нужно закрывать позицию.
func ShouldExit(spread, exitThreshold float64) bool {
	return spread <= exitThreshold
}

// IsStopLossHit проверяет, сработал ли стоп-лосс. stopLoss == 0 отключает проверку.
func IsStopLossHit(pnl, stopLoss float64) bool {
	if stopLoss == 0 {
		return false
	}
	return pnl <= -stopLoss
}

// Clamp ограничивает value диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
