package holdings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
)

type fakeProvider struct {
	accounts     []types.Account
	listCalls    atomic.Int32
	holdingCalls atomic.Int32

	mu      sync.Mutex
	fail    error
	release chan struct{}
}

func (p *fakeProvider) ListAccounts(ctx context.Context) ([]types.Account, error) {
	p.listCalls.Add(1)
	return p.accounts, nil
}

func (p *fakeProvider) GetHoldings(ctx context.Context, accountID string) (*types.Holdings, error) {
	p.holdingCalls.Add(1)

	p.mu.Lock()
	fail, release := p.fail, p.release
	p.mu.Unlock()

	if release != nil {
		<-release
	}
	if fail != nil {
		return nil, fail
	}
	return &types.Holdings{
		Balances: []interface{}{map[string]interface{}{"type": "cash"}},
		Positions: []interface{}{
			map[string]interface{}{
				"symbol": map[string]interface{}{"symbol": map[string]interface{}{"symbol": "AAPL"}},
				"units":  float64(100),
				"price":  float64(10),
			},
		},
	}, nil
}

func (p *fakeProvider) setFail(err error) {
	p.mu.Lock()
	p.fail = err
	p.mu.Unlock()
}

func newProvider() *fakeProvider {
	return &fakeProvider{accounts: []types.Account{{ID: "acc-1"}, {ID: "acc-2"}}}
}

func TestHoldingsServedFromCacheWithinTTL(t *testing.T) {
	p := newProvider()
	c := New(p, Config{TTL: 50 * time.Millisecond})
	ctx := context.Background()

	first, err := c.Holdings(ctx)
	if err != nil {
		t.Fatalf("Holdings() error = %v", err)
	}
	if first.AccountID != "acc-1" || len(first.Positions) != 1 {
		t.Errorf("snapshot = %+v, want acc-1 with one position", first)
	}

	second, _ := c.Holdings(ctx)
	if second != first {
		t.Error("second call within TTL returned a different snapshot")
	}
	if n := p.holdingCalls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}

	time.Sleep(80 * time.Millisecond)

	third, err := c.Holdings(ctx)
	if err != nil {
		t.Fatalf("Holdings() after TTL error = %v", err)
	}
	if third == first {
		t.Error("call after TTL returned the stale snapshot")
	}
	if n := p.holdingCalls.Load(); n != 2 {
		t.Errorf("provider calls = %d, want 2", n)
	}
	if n := p.listCalls.Load(); n != 1 {
		t.Errorf("account listings = %d, want 1", n)
	}
}

func TestConcurrentMissesShareOneRefresh(t *testing.T) {
	p := newProvider()
	p.release = make(chan struct{})
	c := New(p, Config{TTL: time.Minute})

	// Resolve the account first so every goroutine goes straight to the slot
	if _, err := c.PrimaryAccountID(context.Background()); err != nil {
		t.Fatalf("PrimaryAccountID() error = %v", err)
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*types.Snapshot, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Holdings(context.Background())
		}(i)
	}

	// Let the callers pile up on the in-flight refresh
	time.Sleep(50 * time.Millisecond)
	close(p.release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d got a different snapshot", i)
		}
	}
	if n := p.holdingCalls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

func TestFailedRefreshKeepsLastSnapshot(t *testing.T) {
	p := newProvider()
	c := New(p, Config{TTL: 20 * time.Millisecond})
	ctx := context.Background()

	good, err := c.Holdings(ctx)
	if err != nil {
		t.Fatalf("Holdings() error = %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	p.setFail(errors.New("503 Service Unavailable"))

	_, err = c.Holdings(ctx)
	if !errors.Is(err, types.ErrProviderUnavailable) {
		t.Fatalf("Holdings() error = %v, want ErrProviderUnavailable", err)
	}
	if c.Last() != good {
		t.Error("Last() does not return the previous snapshot after a failed refresh")
	}

	p.setFail(nil)
	fresh, err := c.Holdings(ctx)
	if err != nil || fresh == good {
		t.Errorf("Holdings() after recovery = %v, %v, want a new snapshot", fresh, err)
	}
}

func TestInvalidate(t *testing.T) {
	p := newProvider()
	c := New(p, Config{TTL: time.Minute})
	ctx := context.Background()

	c.Holdings(ctx)
	c.Invalidate()
	c.Holdings(ctx)

	if n := p.holdingCalls.Load(); n != 2 {
		t.Errorf("provider calls = %d, want 2 after Invalidate", n)
	}
}

func TestPrimaryAccount(t *testing.T) {
	ctx := context.Background()

	pinned := New(newProvider(), Config{AccountID: "acc-9"})
	if id, _ := pinned.PrimaryAccountID(ctx); id != "acc-9" {
		t.Errorf("PrimaryAccountID() = %q, want the configured account", id)
	}

	empty := New(&fakeProvider{}, Config{})
	if _, err := empty.Holdings(ctx); !errors.Is(err, types.ErrProviderUnavailable) {
		t.Errorf("Holdings() without accounts error = %v, want ErrProviderUnavailable", err)
	}
}
