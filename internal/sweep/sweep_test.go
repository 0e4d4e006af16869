package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (e *countingExpirer) ExpireStale(_ context.Context) (int, error) {
	e.calls.Add(1)
	if e.err != nil {
		return 0, e.err
	}
	return 1, nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func TestRunner_SweepsImmediatelyAndOnTicks(t *testing.T) {
	expirer := &countingExpirer{}
	runner := New(10*time.Millisecond, expirer, nopLogger{})

	runner.Start(context.Background())
	defer runner.Close()

	deadline := time.After(2 * time.Second)
	for expirer.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d sweeps ran, want at least 3", expirer.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunner_CloseStopsLoop(t *testing.T) {
	expirer := &countingExpirer{}
	runner := New(5*time.Millisecond, expirer, nopLogger{})

	runner.Start(context.Background())
	runner.Close()

	settled := expirer.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := expirer.calls.Load(); got != settled {
		t.Errorf("sweeps continued after Close: %d -> %d", settled, got)
	}

	// Idempotent
	runner.Close()
}

func TestRunner_SurvivesSweepErrors(t *testing.T) {
	expirer := &countingExpirer{err: errors.New("db locked")}
	runner := New(5*time.Millisecond, expirer, nopLogger{})

	runner.Start(context.Background())
	defer runner.Close()

	deadline := time.After(2 * time.Second)
	for expirer.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("loop stopped after errors: %d sweeps", expirer.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
