package core

// SeriesSummary condenses a monthly series for the dashboard header.
type SeriesSummary struct {
	TotalUnits  int
	TotalProfit Money
	BestMonth   MonthKey // zero when the series is empty
	BestProfit  Money
	Months      int
}

// Summarize totals a series and picks the month with the highest profit.
// Ties keep the earlier month.
func Summarize(series MonthlySeries) SeriesSummary {
	var s SeriesSummary
	for i, b := range series.Buckets {
		s.TotalUnits += b.UnitsSold
		s.TotalProfit = s.TotalProfit.Add(b.Profit)
		if i == 0 || b.Profit.Amount.GreaterThan(s.BestProfit.Amount) {
			s.BestMonth = b.Key
			s.BestProfit = b.Profit
		}
	}
	s.Months = len(series.Buckets)
	return s
}
