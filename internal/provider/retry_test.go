package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestWithRetry_RetryableRecovers(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable("upstream 503", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_BudgetExhaustedPromotesToFatal(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) error {
		calls++
		return Retryable("upstream 503", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, ClassFatal, Classify(err))
	assert.Equal(t, "retry budget exhausted", Reason(err))
}

func TestWithRetry_FatalReturnsImmediately(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) error {
		calls++
		return Fatal("item login required", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ClassFatal, Classify(err))
}

func TestWithRetry_IgnorableReturnsImmediately(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) error {
		calls++
		return Ignorable("no investment accounts", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ClassIgnorable, Classify(err))
}

func TestWithRetry_DeadlineCountsAsRetryable(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestClassify_UnclassifiedIsFatal(t *testing.T) {
	assert.Equal(t, ClassFatal, Classify(errors.New("surprise")))
	assert.Equal(t, ClassRetryable, Classify(Retryable("x", nil)))
	assert.Equal(t, ClassIgnorable, Classify(Ignorable("x", nil)))
	// wrapped classified errors keep their class
	wrapped := errors.Join(errors.New("outer"), Retryable("inner", nil))
	assert.Equal(t, ClassRetryable, Classify(wrapped))
}

func TestFetchAll_PaginatesToExhaustion(t *testing.T) {
	var cursors []string
	items, err := FetchAll(context.Background(), fastRetry, 2, 0,
		func(ctx context.Context, cursor string, pageSize int) (Page[int], error) {
			cursors = append(cursors, cursor)
			switch cursor {
			case "":
				return Page[int]{Items: []int{1, 2}, NextCursor: "2"}, nil
			case "2":
				return Page[int]{Items: []int{3, 4}, NextCursor: "4"}, nil
			default:
				return Page[int]{Items: []int{5}}, nil
			}
		})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, items)
	assert.Equal(t, []string{"", "2", "4"}, cursors)
}

func TestFetchAll_RetriesEachPageIndependently(t *testing.T) {
	failedOnce := false
	items, err := FetchAll(context.Background(), fastRetry, 2, 0,
		func(ctx context.Context, cursor string, pageSize int) (Page[int], error) {
			if cursor == "2" && !failedOnce {
				failedOnce = true
				return Page[int]{}, Retryable("flaky page", nil)
			}
			if cursor == "" {
				return Page[int]{Items: []int{1, 2}, NextCursor: "2"}, nil
			}
			return Page[int]{Items: []int{3}}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, items)
}

func TestSandbox_PaginatesFixture(t *testing.T) {
	fixture := Fixture{}
	for i := 0; i < 5; i++ {
		fixture.Accounts = append(fixture.Accounts, RawAccount{ExternalID: itoa(i)})
	}
	sandbox := NewSandbox(fixture)
	sandbox.PageSize = 2
	sandbox.Retry = fastRetry

	accounts, err := sandbox.FetchAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 5)
	assert.Equal(t, 3, sandbox.Calls[CategoryAccounts])
}

func TestSandbox_WindowFiltersDatedCategories(t *testing.T) {
	sandbox := NewSandbox(Fixture{
		Transactions: []RawTransaction{
			{ExternalID: "in", Date: "2024-02-10"},
			{ExternalID: "out", Date: "2023-01-01"},
			{ExternalID: "unparseable", Date: "garbage"}, // kept so Transform rejects it
		},
	})
	sandbox.Retry = fastRetry

	window := Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	txs, err := sandbox.FetchTransactions(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "in", txs[0].ExternalID)
	assert.Equal(t, "unparseable", txs[1].ExternalID)
}

func TestSandbox_FailCountLimitsInjectedFailures(t *testing.T) {
	sandbox := NewSandbox(Fixture{Accounts: []RawAccount{{ExternalID: "a"}}})
	sandbox.Retry = fastRetry
	sandbox.FailWith = map[Category]error{CategoryAccounts: Retryable("boom", nil)}
	sandbox.FailCount = map[Category]int{CategoryAccounts: 2}

	accounts, err := sandbox.FetchAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, 3, sandbox.Calls[CategoryAccounts])
}
