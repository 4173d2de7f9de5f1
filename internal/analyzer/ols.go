package analyzer

// linearRegression вычисляет наименьших квадратов наклон и пересечение
// прямой y = slope*x + intercept по точкам (x[i], y[i]). ok=false если
// точек меньше двух или все x совпадают (вертикальная дисперсия равна нулю).
//
// Нарочно без внешней ML-библиотеки: тренд кумулятивного P&L по времени -
// это обычная одномерная OLS-регрессия, для которой нет причины тянуть
// библиотеку статистики/ML ради одной формулы.
func linearRegression(x, y []float64) (slope, intercept float64, ok bool) {
	n := len(x)
	if n < 2 || n != len(y) {
		return 0, 0, false
	}

	var sumX, sumY, sumXY, sumXX float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}

	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0, false
	}

	nf := float64(n)
	slope = (nf*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / nf
	return slope, intercept, true
}
