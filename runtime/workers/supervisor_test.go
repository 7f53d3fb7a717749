package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingWorker struct {
	runs    atomic.Int32
	panicAt int32
}

func (w *countingWorker) Run(ctx context.Context) error {
	run := w.runs.Add(1)
	if run <= w.panicAt {
		panic("boom")
	}
	<-ctx.Done()
	return nil
}

func Test_Supervisor_Restarts_After_Panic(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(slog.Default(), time.Millisecond)
	worker := &countingWorker{panicAt: 2}
	sup.Add(worker)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	// The worker panics twice and must be restarted both times
	req.Eventually(func() bool {
		return worker.runs.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	sup.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("supervisor did not stop in time")
	}
}

func Test_Supervisor_Stops_On_Parent_Cancel(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(slog.Default(), time.Millisecond)
	worker := &countingWorker{}
	sup.Add(worker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	req.Eventually(func() bool { return worker.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("supervisor did not honor parent cancellation")
	}
}

func Test_Supervisor_Lets_Finished_Worker_Rest(t *testing.T) {
	req := require.New(t)
	sup := NewSupervisor(slog.Default(), time.Millisecond)

	finished := &oneShotWorker{}
	sup.Add(finished)

	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	// A worker returning nil terminated properly and is never restarted
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("supervisor kept a finished worker alive")
	}
	req.Equal(int32(1), finished.runs.Load())
}

type oneShotWorker struct {
	runs atomic.Int32
}

func (w *oneShotWorker) Run(_ context.Context) error {
	w.runs.Add(1)
	return nil
}
