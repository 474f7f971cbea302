package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vlmd/internal/engine"
)

// fakeEngine tracks Close calls; pool tests never invoke Generate.
type fakeEngine struct {
	closed atomic.Bool
}

func (f *fakeEngine) Generate(ctx context.Context, req engine.Request, onDelta func(string) error) (engine.Result, error) {
	return engine.Result{}, errors.New("not used")
}

func (f *fakeEngine) Close() error {
	f.closed.Store(true)
	return nil
}

func fakeFactory(engines *[]*fakeEngine) engine.Factory {
	return func(slotID int) (engine.Engine, error) {
		fe := &fakeEngine{}
		*engines = append(*engines, fe)
		return fe, nil
	}
}

func newTestPool(t *testing.T, size int, wait time.Duration) (*Pool, []*fakeEngine) {
	t.Helper()
	var engines []*fakeEngine
	p, err := New(size, wait, fakeFactory(&engines), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, engines
}

func TestConcurrencyCeiling(t *testing.T) {
	const size = 3
	p, _ := newTestPool(t, size, 5*time.Second)

	var inflight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2*size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer p.Release(s)
			cur := inflight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inflight.Add(-1)
		}()
	}
	wg.Wait()
	if got := peak.Load(); got > size {
		t.Fatalf("observed %d concurrent holders, ceiling is %d", got, size)
	}
	if st := p.Stats(); st.Free != size {
		t.Fatalf("slots leaked: %+v", st)
	}
}

func TestAcquireTimeoutWhenExhausted(t *testing.T) {
	p, _ := newTestPool(t, 1, 50*time.Millisecond)
	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release(s)

	_, err = p.Acquire(context.Background())
	if !IsExhausted(err) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	p, _ := newTestPool(t, 1, 5*time.Second)
	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release(s)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := p.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	p, _ := newTestPool(t, 1, 100*time.Millisecond)
	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(s)
	p.Release(s) // double release must not duplicate the slot
	if st := p.Stats(); st.Free != 1 {
		t.Fatalf("free = %d after double release, want 1", st.Free)
	}
	s2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	p.Release(s2)
}

func TestMarkBrokenShrinksCapacity(t *testing.T) {
	p, engines := newTestPool(t, 2, 50*time.Millisecond)
	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.MarkBroken(s, errors.New("device wedged"))
	p.Release(s)

	st := p.Stats()
	if st.Broken != 1 || st.Free != 1 {
		t.Fatalf("stats after break: %+v", st)
	}
	if !engines[s.ID()-1].closed.Load() {
		t.Fatalf("broken engine was not closed")
	}

	// Remaining capacity is one: a single acquire succeeds, a second times out.
	s2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire survivor: %v", err)
	}
	defer p.Release(s2)
	if _, err := p.Acquire(context.Background()); !IsExhausted(err) {
		t.Fatalf("expected exhausted on shrunken pool, got %v", err)
	}
}

func TestCloseClosesEngines(t *testing.T) {
	p, engines := newTestPool(t, 2, 100*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for i, fe := range engines {
		if !fe.closed.Load() {
			t.Fatalf("engine %d not closed", i)
		}
	}
	if _, err := p.Acquire(context.Background()); !IsClosed(err) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestCloseWaitsForHolders(t *testing.T) {
	p, engines := newTestPool(t, 1, 100*time.Millisecond)
	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		p.Release(s)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !engines[0].closed.Load() {
		t.Fatalf("engine not closed after holder released")
	}
}

func TestCloseUnblocksOnBrokenHolder(t *testing.T) {
	p, _ := newTestPool(t, 1, 100*time.Millisecond)
	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- p.Close(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	p.MarkBroken(s, errors.New("wedged"))
	p.Release(s)
	if err := <-done; err != nil {
		t.Fatalf("Close after broken holder: %v", err)
	}
}

func TestFactoryFailureTearsDown(t *testing.T) {
	var engines []*fakeEngine
	boom := errors.New("no device")
	_, err := New(2, time.Second, func(slotID int) (engine.Engine, error) {
		if slotID == 2 {
			return nil, boom
		}
		fe := &fakeEngine{}
		engines = append(engines, fe)
		return fe, nil
	}, zerolog.Nop())
	if !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
	if len(engines) != 1 || !engines[0].closed.Load() {
		t.Fatalf("first engine not torn down on startup failure")
	}
}
