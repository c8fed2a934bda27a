package rollups

import (
	"context"
	"sort"
	"time"

	"finsync-backend/internal/balances"
	"finsync-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service aggregates per-account daily balances into the three-level
// reporting hierarchy: classification → category → account. It only reads
// the derived AccountBalance series; it never writes back to the ledger.
type Service struct {
	DB *gorm.DB
}

// NodePoint is one dated row of a rollup node.
type NodePoint struct {
	Date    time.Time       `json:"date"`
	Balance decimal.Decimal `json:"balance"`
	// RollupPct is this node's share of its siblings under the same parent;
	// TotalPct its share of every node at the same level across the tree.
	// Both are 0 when the respective sum is 0, never NaN or Inf.
	RollupPct float64 `json:"rollupPct"`
	TotalPct  float64 `json:"totalPct"`
}

// Node is one row of the rollup tree.
type Node struct {
	Level    string         `json:"level"` // classification | category | account
	Key      string         `json:"key"`
	Name     string         `json:"name"`
	Points   []NodePoint    `json:"points"`
	Total    balances.Trend `json:"total"`
	Children []*Node        `json:"children,omitempty"`
}

// Rollup is the full reporting view for a date range.
type Rollup struct {
	Start           time.Time       `json:"start"`
	End             time.Time       `json:"end"`
	Interval        balances.Interval `json:"interval"`
	Classifications []*Node         `json:"classifications"`
	NetWorth        balances.Series `json:"netWorth"`
}

// divOrZero is the guarded division used everywhere a percentage is
// computed: a zero denominator yields 0, never a division error.
func divOrZero(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// valueOn carries the latest persisted balance at or before day forward;
// days before an account's first balance row read as zero.
func valueOn(rows []domain.AccountBalance, day time.Time) decimal.Decimal {
	next := sort.Search(len(rows), func(i int) bool { return rows[i].Date.After(day) })
	if next == 0 {
		return decimal.Zero
	}
	return rows[next-1].Balance
}

func (s *Service) accountsFor(ctx context.Context, userID *uuid.UUID, accountIDs []uuid.UUID) ([]domain.Account, error) {
	q := s.DB.WithContext(ctx)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if len(accountIDs) > 0 {
		q = q.Where("account_id IN ?", accountIDs)
	}
	var accounts []domain.Account
	return accounts, q.Find(&accounts).Error
}

// GetRollup builds the hierarchy for a user's accounts (or an explicit
// account set) over [start, end] at the requested interval.
func (s *Service) GetRollup(ctx context.Context, userID *uuid.UUID, accountIDs []uuid.UUID, start, end time.Time, interval balances.Interval) (*Rollup, error) {
	start, end = domain.DayUTC(start), domain.DayUTC(end)
	if end.Before(start) {
		start, end = end, start
	}
	accounts, err := s.accountsFor(ctx, userID, accountIDs)
	if err != nil {
		return nil, err
	}
	dates := balances.BucketEnds(start, end, interval)

	// per-account series from the derived balance store
	perAccount := make(map[uuid.UUID][]decimal.Decimal, len(accounts))
	for _, acct := range accounts {
		var rows []domain.AccountBalance
		if err := s.DB.WithContext(ctx).
			Where("account_id = ? AND date <= ?", acct.AccountID, end).
			Order("date ASC").Find(&rows).Error; err != nil {
			return nil, err
		}
		values := make([]decimal.Decimal, len(dates))
		for i, day := range dates {
			values[i] = valueOn(rows, day)
		}
		perAccount[acct.AccountID] = values
	}

	// pass 1: sums at every grouping granularity, per date index
	type catKey struct {
		classification domain.Classification
		category       string
	}
	classSums := make(map[domain.Classification][]decimal.Decimal)
	catSums := make(map[catKey][]decimal.Decimal)
	grand := make([]decimal.Decimal, len(dates))
	for _, acct := range accounts {
		values := perAccount[acct.AccountID]
		ck := catKey{acct.Classification, acct.Category}
		if classSums[acct.Classification] == nil {
			classSums[acct.Classification] = make([]decimal.Decimal, len(dates))
		}
		if catSums[ck] == nil {
			catSums[ck] = make([]decimal.Decimal, len(dates))
		}
		for i := range dates {
			classSums[acct.Classification][i] = classSums[acct.Classification][i].Add(values[i])
			catSums[ck][i] = catSums[ck][i].Add(values[i])
			grand[i] = grand[i].Add(values[i])
		}
	}

	catLevelTotals := make([]decimal.Decimal, len(dates))
	for _, sums := range catSums {
		for i := range dates {
			catLevelTotals[i] = catLevelTotals[i].Add(sums[i])
		}
	}

	// pass 2: nodes with windowed shares (parent sum and level total)
	rollup := &Rollup{Start: start, End: end, Interval: interval}
	for _, classification := range []domain.Classification{domain.ClassificationAsset, domain.ClassificationLiability} {
		sums, ok := classSums[classification]
		if !ok {
			continue
		}
		classNode := &Node{
			Level: "classification",
			Key:   string(classification),
			Name:  string(classification),
		}
		classNode.Points = makePoints(dates, sums, grand, grand)
		classNode.Total = seriesTrend(dates, sums)

		var categories []catKey
		for ck := range catSums {
			if ck.classification == classification {
				categories = append(categories, ck)
			}
		}
		sort.Slice(categories, func(i, j int) bool { return categories[i].category < categories[j].category })
		for _, ck := range categories {
			catNode := &Node{
				Level: "category",
				Key:   ck.category,
				Name:  ck.category,
			}
			catNode.Points = makePoints(dates, catSums[ck], sums, catLevelTotals)
			catNode.Total = seriesTrend(dates, catSums[ck])

			var members []domain.Account
			for _, acct := range accounts {
				if acct.Classification == ck.classification && acct.Category == ck.category {
					members = append(members, acct)
				}
			}
			sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
			for _, acct := range members {
				acctNode := &Node{
					Level: "account",
					Key:   acct.AccountID.String(),
					Name:  acct.Name,
				}
				acctNode.Points = makePoints(dates, perAccount[acct.AccountID], catSums[ck], grand)
				acctNode.Total = seriesTrend(dates, perAccount[acct.AccountID])
				catNode.Children = append(catNode.Children, acctNode)
			}
			classNode.Children = append(classNode.Children, catNode)
		}
		rollup.Classifications = append(rollup.Classifications, classNode)
	}

	rollup.NetWorth = netWorthSeries(dates, classSums)
	return rollup, nil
}

// GetNetWorthSeries reduces the rollup to assets minus liabilities per date.
func (s *Service) GetNetWorthSeries(ctx context.Context, userID uuid.UUID, start, end time.Time, interval balances.Interval) (balances.Series, error) {
	rollup, err := s.GetRollup(ctx, &userID, nil, start, end, interval)
	if err != nil {
		return balances.Series{}, err
	}
	return rollup.NetWorth, nil
}

func makePoints(dates []time.Time, values, parentSums, levelTotals []decimal.Decimal) []NodePoint {
	points := make([]NodePoint, len(dates))
	for i, day := range dates {
		points[i] = NodePoint{
			Date:      day,
			Balance:   values[i],
			RollupPct: divOrZero(values[i].InexactFloat64(), parentSums[i].InexactFloat64()),
			TotalPct:  divOrZero(values[i].InexactFloat64(), levelTotals[i].InexactFloat64()),
		}
	}
	return points
}

func seriesTrend(dates []time.Time, values []decimal.Decimal) balances.Trend {
	if len(values) == 0 {
		return balances.NewTrend(decimal.Zero, decimal.Zero)
	}
	return balances.NewTrend(values[0], values[len(values)-1])
}

func netWorthSeries(dates []time.Time, classSums map[domain.Classification][]decimal.Decimal) balances.Series {
	points := make([]balances.Point, len(dates))
	for i, day := range dates {
		value := decimal.Zero
		if sums := classSums[domain.ClassificationAsset]; sums != nil {
			value = value.Add(sums[i])
		}
		if sums := classSums[domain.ClassificationLiability]; sums != nil {
			value = value.Sub(sums[i])
		}
		points[i] = balances.Point{Date: day, Balance: value}
		if i > 0 {
			points[i].Change = balances.NewTrend(points[i-1].Balance, value)
		} else {
			points[i].Change = balances.NewTrend(value, value)
		}
	}
	series := balances.Series{Points: points}
	if len(points) > 0 {
		series.Total = balances.NewTrend(points[0].Balance, points[len(points)-1].Balance)
	}
	return series
}
