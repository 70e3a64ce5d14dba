package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Genrec-Community/tabble-v3.1-sub000/internal/lib/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor опрашивает условие до дедлайна; защищает тесты от гонок со временем
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, msg)
}

func TestFailureBackoffSchedule(t *testing.T) {
	// после k подряд ошибок интервал равен min(base·2^k, max)
	opts := Options{BaseInterval: 10 * time.Second, FastInterval: time.Second, MaxInterval: 50 * time.Second}
	b := newFailureBackoff(opts)

	assert.Equal(t, 20*time.Second, b.NextBackOff())
	assert.Equal(t, 40*time.Second, b.NextBackOff())
	assert.Equal(t, 50*time.Second, b.NextBackOff())
	assert.Equal(t, 50*time.Second, b.NextBackOff())
}

func TestStartInvokesImmediately(t *testing.T) {
	var calls atomic.Int64
	s := New(Options{BaseInterval: time.Hour, FastInterval: time.Minute, MaxInterval: 2 * time.Hour, IdleAfter: time.Hour}, nil, logger.Discard())
	defer s.Stop()

	s.Start(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	waitFor(t, time.Second, func() bool { return calls.Load() == 1 }, "expected an immediate invocation")

	// повторный Start на работающем планировщике — no-op
	s.Start(func(ctx context.Context) error {
		calls.Add(100)
		return nil
	})
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}

func TestNoOverlappingInvocations(t *testing.T) {
	var active, maxActive, calls atomic.Int64
	fetch := func(ctx context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		calls.Add(1)
		return nil
	}

	s := New(Options{BaseInterval: 10 * time.Millisecond, FastInterval: 5 * time.Millisecond, MaxInterval: time.Second, IdleAfter: time.Hour}, nil, logger.Discard())
	defer s.Stop()
	s.Start(fetch)

	// внеочередные refresh и всплески активности сыплются поверх тиков
	for range 5 {
		go s.Refresh(context.Background()) //nolint:errcheck
		s.NotifyActivity()
		time.Sleep(15 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 5 }, "expected several invocations")
	assert.EqualValues(t, 1, maxActive.Load(), "two invocations were active at once")
}

func TestBackoffAndRecovery(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	s := New(Options{BaseInterval: 10 * time.Millisecond, FastInterval: 5 * time.Millisecond, MaxInterval: 60 * time.Millisecond, IdleAfter: time.Hour}, nil, logger.Discard())
	defer s.Stop()

	s.Start(func(ctx context.Context) error {
		if failing.Load() {
			return errors.New("remote transient error on \"orders\"")
		}
		return nil
	})

	// лестница 20ms → 40ms → 60ms → 60ms, дальше потолок
	waitFor(t, 2*time.Second, func() bool { return s.State().ConsecutiveErrors >= 4 }, "expected consecutive failures to accumulate")
	assert.Equal(t, 60*time.Millisecond, s.State().Interval)

	// один успех обнуляет счётчик и возвращает LastSuccessAt
	failing.Store(false)
	waitFor(t, 2*time.Second, func() bool { return s.State().ConsecutiveErrors == 0 }, "expected success to reset error count")
	assert.False(t, s.State().LastSuccessAt.IsZero())
}

func TestNotifyActivitySchedulesFastInvocation(t *testing.T) {
	// base=10s: без всплеска активности второй вызов не случился бы в тесте,
	// с всплеском он должен прийти через fast, а не через base
	var calls atomic.Int64
	s := New(Options{BaseInterval: 10 * time.Second, FastInterval: 30 * time.Millisecond, MaxInterval: time.Minute, IdleAfter: time.Hour}, nil, logger.Discard())
	defer s.Stop()

	s.Start(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	waitFor(t, time.Second, func() bool { return calls.Load() == 1 }, "expected the immediate invocation")

	s.NotifyActivity()
	assert.Equal(t, 30*time.Millisecond, s.State().Interval)

	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 }, "expected a fast follow-up invocation")
}

func TestStopIsIdempotentAndFinal(t *testing.T) {
	var calls atomic.Int64
	s := New(Options{BaseInterval: 10 * time.Millisecond, FastInterval: 5 * time.Millisecond, MaxInterval: time.Second, IdleAfter: time.Hour}, nil, logger.Discard())

	s.Start(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 }, "expected the loop to run")

	s.Stop()
	s.Stop() // идемпотентность

	settled := calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, calls.Load(), "an invocation fired after Stop")

	// Start после Stop снова запускает цикл с немедленным вызовом
	s.Start(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	defer s.Stop()
	waitFor(t, time.Second, func() bool { return calls.Load() > settled }, "expected a catch-up invocation after restart")
}

func TestRefreshDoesNotDisturbSchedule(t *testing.T) {
	var calls atomic.Int64
	s := New(Options{BaseInterval: 10 * time.Second, FastInterval: time.Second, MaxInterval: time.Minute, IdleAfter: time.Hour}, nil, logger.Discard())
	defer s.Stop()

	s.Start(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	waitFor(t, time.Second, func() bool { return calls.Load() == 1 }, "expected the immediate invocation")

	interval := s.State().Interval
	require.NoError(t, s.Refresh(context.Background()))
	assert.EqualValues(t, 2, calls.Load())
	// политика интервалов на refresh не реагирует
	assert.Equal(t, interval, s.State().Interval)
	assert.Equal(t, 0, s.State().ConsecutiveErrors)
}

func TestRefreshBeforeStart(t *testing.T) {
	s := New(Options{BaseInterval: time.Second, FastInterval: time.Second, MaxInterval: time.Minute}, nil, logger.Discard())
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrNotStarted)
}

// idleAlways — источник активности, считающий актора всегда простаивающим
type idleAlways struct{}

func (idleAlways) IsIdle(time.Duration) bool { return true }

func TestIdleResetsIntervalToBase(t *testing.T) {
	s := New(Options{BaseInterval: 80 * time.Millisecond, FastInterval: 10 * time.Millisecond, MaxInterval: time.Second, IdleAfter: time.Millisecond}, idleAlways{}, logger.Discard())
	defer s.Stop()

	var calls atomic.Int64
	s.Start(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	// даже после всплеска активности простой возвращает базовую частоту
	waitFor(t, time.Second, func() bool { return calls.Load() >= 1 }, "expected the immediate invocation")
	s.NotifyActivity()
	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 }, "expected the fast invocation")
	waitFor(t, time.Second, func() bool { return s.State().Interval == 80*time.Millisecond }, "expected idle to reset the interval to base")
}
