// Package testutils holds helpers shared by package tests.
package testutils

import (
	"io"
	"sync"
	"testing"

	"github.com/decred/slog"
)

// TestLogBackend is a slog backend that writes through t.Log.
type TestLogBackend struct {
	mtx  sync.Mutex
	tb   testing.TB
	w    io.Writer
	done bool
}

func (tlb *TestLogBackend) Write(b []byte) (int, error) {
	tlb.mtx.Lock()
	if !tlb.done {
		tlb.tb.Log(string(b[:len(b)-1]))
	}
	if tlb.w != nil {
		tlb.w.Write(b)
	}
	tlb.mtx.Unlock()
	return len(b), nil
}

// NewTestLogBackend returns a log backend that stops writing once the test
// finishes. Extra output is also copied to w when it is not nil.
func NewTestLogBackend(t testing.TB, w io.Writer) *TestLogBackend {
	tlb := &TestLogBackend{tb: t, w: w}
	t.Cleanup(func() {
		tlb.mtx.Lock()
		tlb.done = true
		tlb.mtx.Unlock()
	})
	return tlb
}

// TestLoggerSys returns an slog.Logger that logs by issuing t.Log calls.
func TestLoggerSys(t testing.TB, sys string) slog.Logger {
	bknd := slog.NewBackend(NewTestLogBackend(t, nil))
	logg := bknd.Logger(sys)
	logg.SetLevel(slog.LevelTrace)
	return logg
}
