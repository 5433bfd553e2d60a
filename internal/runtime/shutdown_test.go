package runtime

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joss/aiden/internal/logging"
)

func TestNewShutdownManager(t *testing.T) {
	m := NewShutdownManager(5*time.Second, nil)

	if m == nil {
		t.Fatal("NewShutdownManager returned nil")
	}
	if m.timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", m.timeout)
	}

	if d := NewShutdownManager(0, nil).timeout; d != DefaultShutdownTimeout {
		t.Errorf("expected default timeout, got %v", d)
	}
}

func TestShutdownManager_Register(t *testing.T) {
	m := NewShutdownManager(5*time.Second, nil)

	var called int32
	m.Register("test-handler", func(ctx context.Context) error {
		atomic.AddInt32(&called, 1)
		return nil
	})

	m.Shutdown()

	if atomic.LoadInt32(&called) != 1 {
		t.Error("handler was not called")
	}
}

func TestShutdownManager_RegisterCloser(t *testing.T) {
	m := NewShutdownManager(5*time.Second, nil)

	var closed bool
	m.RegisterCloser("store", func() error {
		closed = true
		return nil
	})

	m.Shutdown()

	if !closed {
		t.Error("closer was not called")
	}
}

func TestShutdownManager_LIFO(t *testing.T) {
	m := NewShutdownManager(5*time.Second, nil)

	order := make([]string, 0, 3)
	for _, name := range []string{"store", "gateway", "server"} {
		m.RegisterCloser(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	m.Shutdown()

	if got := strings.Join(order, ","); got != "server,gateway,store" {
		t.Errorf("expected server,gateway,store got %s", got)
	}
}

func TestShutdownManager_Context(t *testing.T) {
	m := NewShutdownManager(5*time.Second, nil)
	ctx := m.Context()

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled before shutdown")
	default:
	}

	m.Shutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context should be cancelled after shutdown")
	}
}

func TestShutdownManager_Done(t *testing.T) {
	m := NewShutdownManager(5*time.Second, nil)
	done := m.Done()

	select {
	case <-done:
		t.Fatal("done channel should not be closed before shutdown")
	default:
	}

	m.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel should be closed after shutdown")
	}
}

func TestShutdownManager_Timeout(t *testing.T) {
	m := NewShutdownManager(100*time.Millisecond, nil)

	var secondRan atomic.Bool
	m.Register("never-reached", func(ctx context.Context) error {
		secondRan.Store(true)
		return nil
	})
	m.Register("slow-handler", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})

	start := time.Now()
	m.Shutdown()

	if d := time.Since(start); d > 500*time.Millisecond {
		t.Errorf("shutdown took too long: %v", d)
	}
	if secondRan.Load() {
		t.Error("handler after the timeout should be skipped")
	}
	if !errors.Is(m.Err(), context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", m.Err())
	}
}

func TestShutdownManager_ErrorHandling(t *testing.T) {
	var buf bytes.Buffer
	m := NewShutdownManager(5*time.Second, logging.NewWithWriter("runtime", &buf))

	boom := errors.New("test error")
	m.Register("error-handler", func(ctx context.Context) error { return boom })
	m.Register("success-handler", func(ctx context.Context) error { return nil })

	if m.Err() != nil {
		t.Error("Err should be nil before shutdown")
	}

	m.Shutdown()

	if !errors.Is(m.Err(), boom) {
		t.Errorf("expected joined error, got %v", m.Err())
	}
	if !strings.Contains(m.Err().Error(), "error-handler") {
		t.Errorf("error should name the handler: %v", m.Err())
	}
	if !strings.Contains(buf.String(), "shutdown_handler") {
		t.Error("expected handler events in log")
	}
}

func TestShutdownManager_OnlyOnce(t *testing.T) {
	m := NewShutdownManager(5*time.Second, nil)

	var callCount int32
	m.Register("once-handler", func(ctx context.Context) error {
		atomic.AddInt32(&callCount, 1)
		return nil
	})

	m.Shutdown()
	m.Shutdown()
	m.Shutdown()

	if atomic.LoadInt32(&callCount) != 1 {
		t.Errorf("handler should only be called once, got %d", callCount)
	}
}

func TestShutdownManager_ListenForSignalsStop(t *testing.T) {
	m := NewShutdownManager(time.Second, nil)
	stop := m.ListenForSignals()
	stop()
	stop()

	select {
	case <-m.Done():
		t.Fatal("stopping the listener should not shut down")
	default:
	}
}
