package etl

import (
	"context"
	"sync"

	"finsync-backend/internal/provider"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Extraction is the raw result of one provider pull. Dated categories carry
// the exact window fetched; Degraded records categories that hit an ignorable
// error and were emptied instead of failing the sync.
type Extraction struct {
	Accounts               []provider.RawAccount
	Transactions           []provider.RawTransaction
	InvestmentTransactions []provider.RawInvestmentTransaction
	Securities             []provider.RawSecurity
	Holdings               []provider.RawHolding
	Liabilities            []provider.RawLiability

	TxWindow    provider.Window
	InvTxWindow provider.Window

	Fetched  map[provider.Category]bool
	Degraded map[provider.Category]string
}

func wantsCategory(subset []provider.Category, c provider.Category) bool {
	if len(subset) == 0 {
		return true
	}
	for _, s := range subset {
		if s == c {
			return true
		}
	}
	return false
}

// extract fans independent categories out concurrently. An ignorable error
// for one category degrades it to empty; a fatal error anywhere cancels the
// group and aborts the sync.
func extract(ctx context.Context, conn provider.Connector, subset []provider.Category, window provider.Window) (*Extraction, error) {
	ext := &Extraction{
		Fetched:  make(map[provider.Category]bool),
		Degraded: make(map[provider.Category]string),
	}
	var mu sync.Mutex

	// degrade records an ignorable failure; any other class propagates.
	degrade := func(category provider.Category, err error) error {
		if provider.Classify(err) != provider.ClassIgnorable {
			return err
		}
		mu.Lock()
		ext.Degraded[category] = provider.Reason(err)
		mu.Unlock()
		log.Info().
			Str("connector", conn.Name()).
			Str("category", string(category)).
			Str("reason", provider.Reason(err)).
			Msg("Category not applicable upstream, degrading to empty")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if wantsCategory(subset, provider.CategoryAccounts) {
		ext.Fetched[provider.CategoryAccounts] = true
		g.Go(func() error {
			accounts, err := conn.FetchAccounts(gctx)
			if err != nil {
				return degrade(provider.CategoryAccounts, err)
			}
			mu.Lock()
			ext.Accounts = accounts
			mu.Unlock()
			return nil
		})
	}

	if wantsCategory(subset, provider.CategoryTransactions) {
		ext.Fetched[provider.CategoryTransactions] = true
		ext.TxWindow = window
		g.Go(func() error {
			txs, err := conn.FetchTransactions(gctx, window)
			if err != nil {
				return degrade(provider.CategoryTransactions, err)
			}
			mu.Lock()
			ext.Transactions = txs
			mu.Unlock()
			return nil
		})
	}

	if wantsCategory(subset, provider.CategoryInvestmentTransactions) {
		ext.Fetched[provider.CategoryInvestmentTransactions] = true
		ext.InvTxWindow = window
		g.Go(func() error {
			txs, securities, err := conn.FetchInvestmentTransactions(gctx, window)
			if err != nil {
				return degrade(provider.CategoryInvestmentTransactions, err)
			}
			mu.Lock()
			ext.InvestmentTransactions = txs
			ext.Securities = append(ext.Securities, securities...)
			mu.Unlock()
			return nil
		})
	}

	if wantsCategory(subset, provider.CategoryHoldings) {
		ext.Fetched[provider.CategoryHoldings] = true
		g.Go(func() error {
			holdings, securities, err := conn.FetchHoldings(gctx)
			if err != nil {
				return degrade(provider.CategoryHoldings, err)
			}
			mu.Lock()
			ext.Holdings = holdings
			ext.Securities = append(ext.Securities, securities...)
			mu.Unlock()
			return nil
		})
	}

	if wantsCategory(subset, provider.CategoryLiabilities) {
		ext.Fetched[provider.CategoryLiabilities] = true
		g.Go(func() error {
			liabilities, err := conn.FetchLiabilities(gctx)
			if err != nil {
				return degrade(provider.CategoryLiabilities, err)
			}
			mu.Lock()
			ext.Liabilities = liabilities
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// A degraded category must not prune: it fetched nothing.
	for category := range ext.Degraded {
		ext.Fetched[category] = false
	}
	return ext, nil
}
