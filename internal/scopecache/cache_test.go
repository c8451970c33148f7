package scopecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/giftly/metrics-reporter/internal/domain"
)

func bundleFor(v float64) *domain.MetricBundle {
	return &domain.MetricBundle{Results: []domain.MetricResult{
		{Name: domain.MetricPopulation, CurrentValue: v},
	}}
}

func TestGetOrCompute_ComputesOncePerKey(t *testing.T) {
	c := New()
	var calls int32

	scope := domain.RestrictedTo([]string{"CI"})
	fn := func(ctx context.Context) (*domain.MetricBundle, error) {
		atomic.AddInt32(&calls, 1)
		return bundleFor(50), nil
	}

	for i := 0; i < 3; i++ {
		b, err := c.GetOrCompute(context.Background(), scope, fn)
		if err != nil {
			t.Fatalf("GetOrCompute() error: %v", err)
		}
		if b.Results[0].CurrentValue != 50 {
			t.Errorf("cached value = %v, want 50", b.Results[0].CurrentValue)
		}
	}
	if calls != 1 {
		t.Errorf("compute calls = %d, want 1", calls)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestGetOrCompute_DistinctKeysComputeSeparately(t *testing.T) {
	c := New()
	var calls int32
	fn := func(ctx context.Context) (*domain.MetricBundle, error) {
		atomic.AddInt32(&calls, 1)
		return bundleFor(1), nil
	}

	c.GetOrCompute(context.Background(), domain.Unrestricted(), fn)
	c.GetOrCompute(context.Background(), domain.RestrictedTo([]string{"CI"}), fn)
	c.GetOrCompute(context.Background(), domain.RestrictedTo([]string{"CI", "SN"}), fn)

	if calls != 3 {
		t.Errorf("compute calls = %d, want 3", calls)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestGetOrCompute_SingleFlightUnderConcurrency(t *testing.T) {
	c := New()
	var calls int32
	gate := make(chan struct{})

	fn := func(ctx context.Context) (*domain.MetricBundle, error) {
		atomic.AddInt32(&calls, 1)
		<-gate // hold the first computation open while others pile up
		return bundleFor(7), nil
	}

	scope := domain.RestrictedTo([]string{"SN"})
	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := c.GetOrCompute(context.Background(), scope, fn)
			if err != nil {
				t.Errorf("GetOrCompute() error: %v", err)
				return
			}
			if b.Results[0].CurrentValue != 7 {
				t.Errorf("value = %v, want 7", b.Results[0].CurrentValue)
			}
		}()
	}
	close(gate)
	wg.Wait()

	if calls != 1 {
		t.Errorf("compute calls = %d, want 1 (single-flight)", calls)
	}
}

func TestGetOrCompute_ErrorCachedForRun(t *testing.T) {
	c := New()
	var calls int32
	boom := errors.New("relation does not exist")

	scope := domain.RestrictedTo([]string{"CI"})
	fn := func(ctx context.Context) (*domain.MetricBundle, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	}

	for i := 0; i < 2; i++ {
		if _, err := c.GetOrCompute(context.Background(), scope, fn); !errors.Is(err, boom) {
			t.Errorf("GetOrCompute() error = %v, want %v", err, boom)
		}
	}
	if calls != 1 {
		t.Errorf("compute calls = %d, want 1 (failure is not retried within a run)", calls)
	}
}
