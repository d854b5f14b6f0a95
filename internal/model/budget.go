package model

// BudgetStats holds monthly budget tracking and forecast data.
type BudgetStats struct {
	MonthlyBudget     float64
	CurrentSpend      float64
	DailyBurnRate     float64
	ProjectedMonthly  float64
	DaysRemaining     int
	BudgetUsedPercent float64
}
