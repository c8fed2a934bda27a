package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Category is one independently-fetchable entity category. Categories are
// extracted concurrently and fail independently.
type Category string

const (
	CategoryAccounts               Category = "accounts"
	CategoryTransactions           Category = "transactions"
	CategoryInvestmentTransactions Category = "investment_transactions"
	CategoryHoldings               Category = "holdings"
	CategoryLiabilities            Category = "liabilities"
)

// AllCategories returns every category, in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryAccounts,
		CategoryTransactions,
		CategoryInvestmentTransactions,
		CategoryHoldings,
		CategoryLiabilities,
	}
}

// Window is the inclusive date range a dated category was fetched for.
// Reconciliation deletes are scoped to exactly this range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether day falls inside the window (inclusive).
func (w Window) Contains(day time.Time) bool {
	return !day.Before(w.Start) && !day.After(w.End)
}

// Raw rows are the provider's shape before Transform. Dates stay strings
// ("2006-01-02") so a malformed row can be skipped and logged instead of
// failing the whole batch.

type RawAccount struct {
	ExternalID     string
	Name           string
	Type           string // depository | credit | loan | investment | property ...
	Subtype        string
	Currency       string // may be empty; Transform defaults it
	CurrentBalance decimal.Decimal
	// OriginationDate is set for liabilities with a known start (loans).
	OriginationDate string
}

type RawTransaction struct {
	ExternalID        string
	AccountExternalID string
	Date              string
	Amount            decimal.Decimal
	Name              string
	Category          string
	Currency          string
	Pending           bool
}

type RawInvestmentTransaction struct {
	ExternalID         string
	AccountExternalID  string
	SecurityExternalID string // may be empty (cash movements)
	Date               string
	Type               string
	Amount             decimal.Decimal
	Quantity           decimal.Decimal
	Price              decimal.Decimal
	Fees               decimal.Decimal
	Name               string
	Currency           string
}

type RawSecurity struct {
	ExternalID string
	Ticker     string
	Name       string
	Cusip      string
	Isin       string
	Type       string // equity | etf | mutual fund | derivative | cash ...
	Currency   string
}

type RawHolding struct {
	AccountExternalID  string
	SecurityExternalID string
	// LotID disambiguates multiple lots of one security when the provider
	// exposes lot-level positions; empty otherwise.
	LotID            string
	Quantity         decimal.Decimal
	CostBasis        decimal.Decimal
	InstitutionValue decimal.Decimal
	InstitutionPrice decimal.Decimal
}

type RawLiability struct {
	AccountExternalID string
	OriginationDate   string
	InterestRate      decimal.Decimal
}

// Connector abstracts one upstream financial-data source. Implementations
// must serialize their own upstream calls to respect the provider's QPS;
// the orchestrator fans categories out concurrently.
//
// Every method returns classified errors (see Error); the orchestrator only
// looks at the class, never at the provider.
type Connector interface {
	Name() string

	FetchAccounts(ctx context.Context) ([]RawAccount, error)
	FetchTransactions(ctx context.Context, w Window) ([]RawTransaction, error)
	// FetchInvestmentTransactions also returns the securities referenced by
	// the returned transactions, as providers ship them side by side.
	FetchInvestmentTransactions(ctx context.Context, w Window) ([]RawInvestmentTransaction, []RawSecurity, error)
	FetchHoldings(ctx context.Context) ([]RawHolding, []RawSecurity, error)
	FetchLiabilities(ctx context.Context) ([]RawLiability, error)
}
