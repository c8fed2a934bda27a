package balances

import (
	"sort"
	"time"

	"finsync-backend/internal/domain"

	"github.com/shopspring/decimal"
)

// Interval is the reporting granularity of a series.
type Interval string

const (
	IntervalDays     Interval = "days"
	IntervalWeeks    Interval = "weeks"
	IntervalMonths   Interval = "months"
	IntervalQuarters Interval = "quarters"
	IntervalYears    Interval = "years"
)

// ParseInterval defaults to days for unknown values.
func ParseInterval(s string) Interval {
	switch Interval(s) {
	case IntervalWeeks, IntervalMonths, IntervalQuarters, IntervalYears:
		return Interval(s)
	default:
		return IntervalDays
	}
}

// Trend describes the movement between two balances.
type Trend struct {
	Direction string          `json:"direction"` // up | down | flat
	Amount    decimal.Decimal `json:"amount"`
	// Percentage is nil when the starting balance is zero: the relative
	// change is undefined, never infinite.
	Percentage *float64 `json:"percentage"`
}

// NewTrend computes the trend from b0 to b1.
func NewTrend(b0, b1 decimal.Decimal) Trend {
	diff := b1.Sub(b0)
	t := Trend{Amount: diff}
	switch diff.Sign() {
	case 1:
		t.Direction = "up"
	case -1:
		t.Direction = "down"
	default:
		t.Direction = "flat"
	}
	if !b0.IsZero() {
		pct := diff.InexactFloat64() / b0.InexactFloat64()
		t.Percentage = &pct
	}
	return t
}

// Point is one row of a balance series. Change is relative to the
// immediately preceding point.
type Point struct {
	Date    time.Time       `json:"date"`
	Balance decimal.Decimal `json:"balance"`
	Change  Trend           `json:"change"`
}

// Series is a gap-filled balance series with its total trend (last vs first).
type Series struct {
	Points []Point `json:"points"`
	Total  Trend   `json:"total"`
}

// observation is one known (date, value) pair the gap-fill interpolates over.
type observation struct {
	date  time.Time
	value decimal.Decimal
}

// observationsFromValuations maps valuation snapshots to observations.
func observationsFromValuations(valuations []domain.Valuation) []observation {
	obs := make([]observation, 0, len(valuations))
	for _, v := range valuations {
		obs = append(obs, observation{date: domain.DayUTC(v.Date), value: v.Value})
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].date.Before(obs[j].date) })
	return obs
}

// observationsFromTransactions walks the transaction ledger from the
// provider-supplied current balance (as of asOf): the opening balance is
// current minus the sum of every signed amount, then per-day closing
// balances accumulate forward from there.
func observationsFromTransactions(txs []domain.Transaction, current decimal.Decimal, asOf time.Time) []observation {
	asOf = domain.DayUTC(asOf)
	if len(txs) == 0 {
		return []observation{{date: asOf, value: current}}
	}
	sorted := make([]domain.Transaction, len(txs))
	copy(sorted, txs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	opening := current
	for _, tx := range sorted {
		opening = opening.Sub(tx.Amount)
	}

	firstDay := domain.DayUTC(sorted[0].Date)
	obs := []observation{{date: firstDay.AddDate(0, 0, -1), value: opening}}
	bal := opening
	for _, tx := range sorted {
		day := domain.DayUTC(tx.Date)
		bal = bal.Add(tx.Amount)
		if n := len(obs); obs[n-1].date.Equal(day) {
			obs[n-1].value = bal
		} else {
			obs = append(obs, observation{date: day, value: bal})
		}
	}
	if obs[len(obs)-1].date.Before(asOf) {
		obs = append(obs, observation{date: asOf, value: current})
	}
	return obs
}

// valueAt resolves the balance for one day with the three-tier fallback:
// latest observation at or before the day, else earliest observation after
// it, else the provider-supplied fallback. Exactly one rule fires.
//
// When interpolate is set and the day falls strictly between two
// observations in different calendar years, the value is linearly
// interpolated instead of carried forward, so multi-year interval series
// stay smooth at year boundaries.
func valueAt(obs []observation, day time.Time, fallback decimal.Decimal, interpolate bool) decimal.Decimal {
	if len(obs) == 0 {
		return fallback
	}
	// first observation strictly after day
	next := sort.Search(len(obs), func(i int) bool { return obs[i].date.After(day) })
	if next == 0 {
		// day precedes all history: earliest-after fallback
		return obs[0].value
	}
	prev := next - 1
	if interpolate && next < len(obs) && obs[prev].date.Year() != obs[next].date.Year() && day.After(obs[prev].date) {
		return lerp(obs[prev], obs[next], day)
	}
	return obs[prev].value
}

func lerp(a, b observation, day time.Time) decimal.Decimal {
	span := b.date.Sub(a.date)
	if span <= 0 {
		return a.value
	}
	elapsed := day.Sub(a.date)
	frac := decimal.NewFromFloat(float64(elapsed) / float64(span))
	return a.value.Add(b.value.Sub(a.value).Mul(frac)).Round(4)
}

// BucketEnds yields the series dates: every day for the daily interval,
// period-end days otherwise, always including the range end.
func BucketEnds(start, end time.Time, interval Interval) []time.Time {
	var out []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Equal(end) || isBucketEnd(day, interval) {
			out = append(out, day)
		}
	}
	return out
}

func isBucketEnd(day time.Time, interval Interval) bool {
	switch interval {
	case IntervalDays:
		return true
	case IntervalWeeks:
		return day.Weekday() == time.Sunday
	case IntervalMonths:
		return day.AddDate(0, 0, 1).Day() == 1
	case IntervalQuarters:
		next := day.AddDate(0, 0, 1)
		return next.Day() == 1 && (next.Month() == time.January || next.Month() == time.April ||
			next.Month() == time.July || next.Month() == time.October)
	case IntervalYears:
		return day.Month() == time.December && day.Day() == 31
	default:
		return true
	}
}

// BuildSeries produces a continuous gap-filled series for one account over
// [start, end]. Days before the account's StartDate read as zero.
func BuildSeries(account *domain.Account, valuations []domain.Valuation, txs []domain.Transaction, start, end time.Time, interval Interval, asOf time.Time) Series {
	start, end = domain.DayUTC(start), domain.DayUTC(end)
	if end.Before(start) {
		start, end = end, start
	}

	var obs []observation
	switch account.BalanceStrategy {
	case domain.StrategyTransactions:
		obs = observationsFromTransactions(txs, account.CurrentBalance, asOf)
	default:
		obs = observationsFromValuations(valuations)
	}

	interpolate := interval != IntervalDays
	dates := BucketEnds(start, end, interval)
	points := make([]Point, 0, len(dates))
	for _, day := range dates {
		var value decimal.Decimal
		if account.StartDate != nil && day.Before(domain.DayUTC(*account.StartDate)) {
			value = decimal.Zero
		} else {
			value = valueAt(obs, day, account.CurrentBalance, interpolate)
		}
		p := Point{Date: day, Balance: value}
		if n := len(points); n > 0 {
			p.Change = NewTrend(points[n-1].Balance, value)
		} else {
			p.Change = NewTrend(value, value)
		}
		points = append(points, p)
	}

	series := Series{Points: points}
	if len(points) > 0 {
		series.Total = NewTrend(points[0].Balance, points[len(points)-1].Balance)
	}
	return series
}
