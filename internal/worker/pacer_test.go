package worker

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/patentscan/internal/testutil"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPacer_FirstUseIsImmediate(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	pacer := NewPacer(3*time.Second, clock)

	waited, err := pacer.Wait(context.Background(), "http://proxy-a:8080")
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if waited != 0 {
		t.Errorf("expected no wait on first use, got %v", waited)
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("expected no sleeps, got %v", clock.Sleeps())
	}
}

func TestPacer_BackToBackWaitsRemainder(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	pacer := NewPacer(3*time.Second, clock)
	ctx := context.Background()

	if _, err := pacer.Wait(ctx, "proxy"); err != nil {
		t.Fatal(err)
	}
	first := clock.Now()

	clock.Advance(1 * time.Second)

	waited, err := pacer.Wait(ctx, "proxy")
	if err != nil {
		t.Fatal(err)
	}
	second := clock.Now()

	if waited != 2*time.Second {
		t.Errorf("expected 2s wait, got %v", waited)
	}
	if gap := second.Sub(first); gap < 3*time.Second {
		t.Errorf("second request began %v after first, want >= 3s", gap)
	}
}

func TestPacer_ElapsedIntervalNoWait(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	pacer := NewPacer(3*time.Second, clock)
	ctx := context.Background()

	_, _ = pacer.Wait(ctx, "proxy")
	clock.Advance(5 * time.Second)

	waited, err := pacer.Wait(ctx, "proxy")
	if err != nil {
		t.Fatal(err)
	}
	if waited != 0 {
		t.Errorf("expected no wait after interval elapsed, got %v", waited)
	}
}

func TestPacer_KeysAreIndependent(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	pacer := NewPacer(3*time.Second, clock)
	ctx := context.Background()

	_, _ = pacer.Wait(ctx, "proxy-a")
	waited, _ := pacer.Wait(ctx, "proxy-b")
	if waited != 0 {
		t.Errorf("different key should not wait, got %v", waited)
	}
	if len(pacer.entries) != 2 {
		t.Errorf("expected 2 keys, got %d", len(pacer.entries))
	}
}

func TestPacer_ConcurrentCallersAreSpaced(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	pacer := NewPacer(3*time.Second, clock)
	ctx := context.Background()

	const callers = 4
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		delays []time.Duration
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := pacer.Wait(ctx, "proxy")
			if err != nil {
				t.Errorf("wait failed: %v", err)
				return
			}
			mu.Lock()
			delays = append(delays, d)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Callers may observe an already advanced clock, so individual delays
	// vary; the reserved turns are always one interval apart.
	sort.Slice(delays, func(i, j int) bool { return delays[i] < delays[j] })
	if delays[0] != 0 {
		t.Errorf("expected one caller to proceed immediately, got %v", delays)
	}
	turns := pacer.entries["proxy"].last.Sub(epoch)
	if turns != time.Duration(callers-1)*3*time.Second {
		t.Errorf("expected last turn at %v, got %v", time.Duration(callers-1)*3*time.Second, turns)
	}
}

func TestPacer_Disabled(t *testing.T) {
	pacer := NewPacer(0, nil)
	for i := 0; i < 3; i++ {
		waited, err := pacer.Wait(context.Background(), "proxy")
		if err != nil || waited != 0 {
			t.Fatalf("expected no pacing, got %v %v", waited, err)
		}
	}
}

func TestPacer_CancelledWait(t *testing.T) {
	pacer := NewPacer(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := pacer.Wait(ctx, "proxy"); err != nil {
		t.Fatal(err)
	}

	cancel()
	start := time.Now()
	if _, err := pacer.Wait(ctx, "proxy"); err == nil {
		t.Error("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled wait should return promptly")
	}
}
