package etl

import (
	"regexp"
	"strings"
	"time"

	"finsync-backend/internal/domain"
	"finsync-backend/internal/provider"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Transform is the pure middle phase: no I/O, raw provider rows in,
// validated normalized rows out. Malformed rows are dropped and logged;
// a single bad row never fails a sync.

const defaultCurrency = "USD"

// occContractRe matches OCC-style option symbols: underlying (1-6 letters),
// yymmdd expiry, C/P, 8-digit strike. AAPL240315P00115000 → AAPL.
var occContractRe = regexp.MustCompile(`^([A-Z]{1,6})\d{6}[CP]\d{8}$`)

// NormalizeTicker rewrites an options-contract ticker to its underlying
// symbol for equity/etf security types only. Derivative types keep the raw
// contract symbol, since no underlying concept applies to them.
func NormalizeTicker(ticker, securityType string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	switch strings.ToLower(securityType) {
	case "equity", "etf":
		if m := occContractRe.FindStringSubmatch(ticker); m != nil {
			return m[1]
		}
	}
	return ticker
}

// NormalizeCurrency defaults to USD when the provider supplied neither an
// ISO nor a provider-specific code.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return defaultCurrency
	}
	return code
}

func parseDay(s string) (time.Time, bool) {
	day, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return domain.DayUTC(day), true
}

// Normalized rows still keyed by external identity; Load resolves them to
// ledger rows inside the commit transaction.

type AccountRow struct {
	ExternalID      string
	Name            string
	Classification  domain.Classification
	Category        string
	Subtype         *string
	Currency        string
	CurrentBalance  decimal.Decimal
	BalanceStrategy domain.BalanceStrategy
	Origination     *time.Time
}

type TxRow struct {
	ExternalID        string
	AccountExternalID string
	Date              time.Time
	Amount            decimal.Decimal
	Name              string
	Category          *string
	Currency          string
	Pending           bool
}

type InvTxRow struct {
	ExternalID         string
	AccountExternalID  string
	SecurityExternalID string
	Date               time.Time
	Type               string
	Amount             decimal.Decimal
	Quantity           decimal.Decimal
	Price              decimal.Decimal
	Fees               decimal.Decimal
	Name               string
	Currency           string
}

type SecurityRow struct {
	ExternalID string
	Ticker     *string
	Name       string
	Cusip      *string
	Isin       *string
	Type       string
	Currency   string
}

type HoldingRow struct {
	AccountExternalID  string
	SecurityExternalID string
	Key                string
	Quantity           decimal.Decimal
	CostBasis          decimal.Decimal
	InstitutionValue   decimal.Decimal
	InstitutionPrice   decimal.Decimal
}

type LiabilityRow struct {
	AccountExternalID string
	Origination       *time.Time
	InterestRate      decimal.Decimal
}

// Snapshot is one consistent, validated view of the extraction, ready for an
// atomic load.
type Snapshot struct {
	Fetched     map[provider.Category]bool
	Degraded    map[provider.Category]string
	TxWindow    provider.Window
	InvTxWindow provider.Window

	Accounts               []AccountRow
	Transactions           []TxRow
	InvestmentTransactions []InvTxRow
	Securities             []SecurityRow
	Holdings               []HoldingRow
	Liabilities            []LiabilityRow

	SkippedRows int
}

// classifyAccount maps a provider account type onto the ledger's
// classification, category and balance strategy.
func classifyAccount(rawType string) (domain.Classification, string, domain.BalanceStrategy) {
	switch strings.ToLower(rawType) {
	case "depository":
		return domain.ClassificationAsset, "cash", domain.StrategyTransactions
	case "credit":
		return domain.ClassificationLiability, "credit", domain.StrategyTransactions
	case "loan":
		return domain.ClassificationLiability, "loan", domain.StrategyValuations
	case "investment", "brokerage":
		return domain.ClassificationAsset, "investment", domain.StrategyValuations
	case "property":
		return domain.ClassificationAsset, "property", domain.StrategyValuations
	default:
		return domain.ClassificationAsset, "other", domain.StrategyValuations
	}
}

// Transform validates and normalizes an extraction. Pure except for skip
// logging.
func Transform(ext *Extraction) *Snapshot {
	snap := &Snapshot{
		Fetched:     ext.Fetched,
		Degraded:    ext.Degraded,
		TxWindow:    ext.TxWindow,
		InvTxWindow: ext.InvTxWindow,
	}

	for _, a := range ext.Accounts {
		if a.ExternalID == "" {
			snap.skip("account", "missing external id")
			continue
		}
		classification, category, strategy := classifyAccount(a.Type)
		row := AccountRow{
			ExternalID:      a.ExternalID,
			Name:            a.Name,
			Classification:  classification,
			Category:        category,
			Currency:        NormalizeCurrency(a.Currency),
			CurrentBalance:  a.CurrentBalance,
			BalanceStrategy: strategy,
		}
		if a.Subtype != "" {
			sub := a.Subtype
			row.Subtype = &sub
		}
		if day, ok := parseDay(a.OriginationDate); ok {
			row.Origination = &day
		}
		snap.Accounts = append(snap.Accounts, row)
	}

	for _, t := range ext.Transactions {
		day, ok := parseDay(t.Date)
		if t.ExternalID == "" || t.AccountExternalID == "" || !ok {
			snap.skip("transaction", "missing id or malformed date")
			continue
		}
		row := TxRow{
			ExternalID:        t.ExternalID,
			AccountExternalID: t.AccountExternalID,
			Date:              day,
			Amount:            t.Amount,
			Name:              t.Name,
			Currency:          NormalizeCurrency(t.Currency),
			Pending:           t.Pending,
		}
		if t.Category != "" {
			cat := t.Category
			row.Category = &cat
		}
		snap.Transactions = append(snap.Transactions, row)
	}

	for _, t := range ext.InvestmentTransactions {
		day, ok := parseDay(t.Date)
		if t.ExternalID == "" || t.AccountExternalID == "" || !ok {
			snap.skip("investment_transaction", "missing id or malformed date")
			continue
		}
		snap.InvestmentTransactions = append(snap.InvestmentTransactions, InvTxRow{
			ExternalID:         t.ExternalID,
			AccountExternalID:  t.AccountExternalID,
			SecurityExternalID: t.SecurityExternalID,
			Date:               day,
			Type:               t.Type,
			Amount:             t.Amount,
			Quantity:           t.Quantity,
			Price:              t.Price,
			Fees:               t.Fees,
			Name:               t.Name,
			Currency:           NormalizeCurrency(t.Currency),
		})
	}

	seenSecurities := make(map[string]bool)
	for _, sec := range ext.Securities {
		if sec.ExternalID == "" {
			snap.skip("security", "missing external id")
			continue
		}
		if seenSecurities[sec.ExternalID] {
			continue
		}
		seenSecurities[sec.ExternalID] = true
		row := SecurityRow{
			ExternalID: sec.ExternalID,
			Name:       sec.Name,
			Type:       strings.ToLower(sec.Type),
			Currency:   NormalizeCurrency(sec.Currency),
		}
		if sec.Ticker != "" {
			ticker := NormalizeTicker(sec.Ticker, sec.Type)
			row.Ticker = &ticker
		}
		if sec.Cusip != "" {
			c := sec.Cusip
			row.Cusip = &c
		}
		if sec.Isin != "" {
			i := sec.Isin
			row.Isin = &i
		}
		snap.Securities = append(snap.Securities, row)
	}

	for _, h := range ext.Holdings {
		if h.AccountExternalID == "" || h.SecurityExternalID == "" {
			snap.skip("holding", "missing account or security id")
			continue
		}
		snap.Holdings = append(snap.Holdings, HoldingRow{
			AccountExternalID:  h.AccountExternalID,
			SecurityExternalID: h.SecurityExternalID,
			Key:                domain.HoldingKey(h.AccountExternalID, h.SecurityExternalID, h.LotID),
			Quantity:           h.Quantity,
			CostBasis:          h.CostBasis,
			InstitutionValue:   h.InstitutionValue,
			InstitutionPrice:   h.InstitutionPrice,
		})
	}

	for _, l := range ext.Liabilities {
		if l.AccountExternalID == "" {
			snap.skip("liability", "missing account id")
			continue
		}
		row := LiabilityRow{AccountExternalID: l.AccountExternalID, InterestRate: l.InterestRate}
		if day, ok := parseDay(l.OriginationDate); ok {
			row.Origination = &day
		}
		snap.Liabilities = append(snap.Liabilities, row)
	}

	return snap
}

func (s *Snapshot) skip(entity, reason string) {
	s.SkippedRows++
	log.Warn().Str("entity", entity).Str("reason", reason).Msg("Skipping malformed provider row")
}
