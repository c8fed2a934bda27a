package provider

import (
	"context"
	"sync"
	"time"
)

// Fixture is deterministic in-memory upstream data for the sandbox connector.
type Fixture struct {
	Accounts               []RawAccount
	Transactions           []RawTransaction
	InvestmentTransactions []RawInvestmentTransaction
	Securities             []RawSecurity
	Holdings               []RawHolding
	Liabilities            []RawLiability
}

// Sandbox is a fixture-backed Connector used in local development and tests.
// It serializes its own calls (one upstream request at a time, like a real
// rate-limited connector) and drives everything through the generic paginator
// so the pagination path is exercised end to end.
type Sandbox struct {
	mu sync.Mutex

	Fixture   Fixture
	Retry     RetryConfig
	PageSize  int
	PageDelay time.Duration

	// FailWith injects a classified error per category; FailCount limits how
	// many calls fail (0 = every call), letting tests exercise the retry path.
	FailWith    map[Category]error
	FailCount   map[Category]int
	failedSoFar map[Category]int

	// Calls counts upstream page requests per category.
	Calls map[Category]int
}

func NewSandbox(fixture Fixture) *Sandbox {
	return &Sandbox{
		Fixture:  fixture,
		Retry:    DefaultRetry,
		PageSize: 100,
		Calls:    make(map[Category]int),
	}
}

func (s *Sandbox) Name() string { return "sandbox" }

// begin serializes upstream calls and applies injected failures.
func (s *Sandbox) begin(category Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls[category]++
	err, ok := s.FailWith[category]
	if !ok {
		return nil
	}
	if limit := s.FailCount[category]; limit > 0 {
		if s.failedSoFar == nil {
			s.failedSoFar = make(map[Category]int)
		}
		if s.failedSoFar[category] >= limit {
			return nil
		}
		s.failedSoFar[category]++
	}
	return err
}

func pageOf[T any](items []T, cursor string, pageSize int) (Page[T], error) {
	start := 0
	if cursor != "" {
		// sandbox cursors are plain offsets
		for i := range cursor {
			start = start*10 + int(cursor[i]-'0')
		}
	}
	if start >= len(items) {
		return Page[T]{}, nil
	}
	end := start + pageSize
	next := ""
	if end < len(items) {
		next = itoa(end)
	} else {
		end = len(items)
	}
	return Page[T]{Items: items[start:end], NextCursor: next}, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func fetchCategory[T any](ctx context.Context, s *Sandbox, category Category, items []T) ([]T, error) {
	return FetchAll(ctx, s.Retry, s.PageSize, s.PageDelay, func(ctx context.Context, cursor string, pageSize int) (Page[T], error) {
		if err := s.begin(category); err != nil {
			return Page[T]{}, err
		}
		return pageOf(items, cursor, pageSize)
	})
}

func (s *Sandbox) FetchAccounts(ctx context.Context) ([]RawAccount, error) {
	return fetchCategory(ctx, s, CategoryAccounts, s.Fixture.Accounts)
}

func (s *Sandbox) FetchTransactions(ctx context.Context, w Window) ([]RawTransaction, error) {
	var inWindow []RawTransaction
	for _, tx := range s.Fixture.Transactions {
		if day, err := time.Parse("2006-01-02", tx.Date); err == nil && !w.Contains(day) {
			continue
		}
		inWindow = append(inWindow, tx)
	}
	return fetchCategory(ctx, s, CategoryTransactions, inWindow)
}

func (s *Sandbox) FetchInvestmentTransactions(ctx context.Context, w Window) ([]RawInvestmentTransaction, []RawSecurity, error) {
	var inWindow []RawInvestmentTransaction
	for _, tx := range s.Fixture.InvestmentTransactions {
		if day, err := time.Parse("2006-01-02", tx.Date); err == nil && !w.Contains(day) {
			continue
		}
		inWindow = append(inWindow, tx)
	}
	items, err := fetchCategory(ctx, s, CategoryInvestmentTransactions, inWindow)
	if err != nil {
		return nil, nil, err
	}
	return items, s.Fixture.Securities, nil
}

func (s *Sandbox) FetchHoldings(ctx context.Context) ([]RawHolding, []RawSecurity, error) {
	items, err := fetchCategory(ctx, s, CategoryHoldings, s.Fixture.Holdings)
	if err != nil {
		return nil, nil, err
	}
	return items, s.Fixture.Securities, nil
}

func (s *Sandbox) FetchLiabilities(ctx context.Context) ([]RawLiability, error) {
	return fetchCategory(ctx, s, CategoryLiabilities, s.Fixture.Liabilities)
}
