package orders

import (
	"context"
	"testing"
	"time"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
)

func TestPollerCompletesFilledOrders(t *testing.T) {
	s := newTestService(t, paperVenue())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := s.Submit(ctx, newOrder("AAPL", types.OptionTypePut))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := s.Execute(ctx, id); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		NewPoller(s, 10*time.Millisecond).Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		order, err := s.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if order.Status == types.StatusCompleted {
			if !order.Executed {
				t.Error("completed order is not marked executed")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("order status = %s after 2s, want completed", order.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}
