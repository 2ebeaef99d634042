package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adlens/adlens/intel"
	"github.com/adlens/adlens/intel/store"
	"github.com/adlens/adlens/normalize"
)

// fakeExec stands in for the intelligence service. Calls optionally block
// on release so tests can observe scheduling decisions mid-flight.
type fakeExec struct {
	mu      sync.Mutex
	started []string
	cur     int
	maxCur  int

	release chan struct{}
	err     error
	during  func(opts intel.Options) // runs before blocking
	lastCtx context.Context
}

func (f *fakeExec) GetOrCreate(ctx context.Context, url string, opts intel.Options) (intel.Result, error) {
	f.mu.Lock()
	f.started = append(f.started, url)
	f.lastCtx = ctx
	f.cur++
	if f.cur > f.maxCur {
		f.maxCur = f.cur
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.cur--
		f.mu.Unlock()
	}()

	if f.during != nil {
		f.during(opts)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return intel.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return intel.Result{}, f.err
	}
	return intel.Result{Intelligence: &store.NicheIntelligence{
		Niche: "dental",
		Ads:   make([]normalize.AdRecord, 3),
	}}, nil
}

func (f *fakeExec) startedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueue_PriorityOrderingWithinAndAcrossTiers(t *testing.T) {
	// WHAT: with one worker slot, jobs submitted while it is busy dispatch
	// instant first, then standard (FIFO), then deep.
	exec := &fakeExec{release: make(chan struct{})}
	q := New(exec, Config{MaxConcurrent: 1}, nil)
	defer q.Close()

	if _, err := q.Enqueue("first", "", PriorityStandard); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first job to start", func() bool { return len(exec.startedURLs()) == 1 })

	for _, j := range []struct {
		url  string
		prio Priority
	}{
		{"deep-1", PriorityDeep},
		{"standard-2", PriorityStandard},
		{"instant-1", PriorityInstant},
		{"standard-3", PriorityStandard},
	} {
		if _, err := q.Enqueue(j.url, "", j.prio); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 5; i++ {
		exec.release <- struct{}{}
	}
	want := []string{"first", "instant-1", "standard-2", "standard-3", "deep-1"}
	waitFor(t, "all jobs to start", func() bool { return len(exec.startedURLs()) == len(want) })

	got := exec.startedURLs()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", got, want)
		}
	}
}

func TestQueue_ConcurrencyBound(t *testing.T) {
	exec := &fakeExec{release: make(chan struct{})}
	q := New(exec, Config{MaxConcurrent: 2}, nil)
	defer q.Close()

	for i := 0; i < 5; i++ {
		if _, err := q.Enqueue("job", "", PriorityStandard); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "two jobs running", func() bool { return len(exec.startedURLs()) == 2 })

	// Give the dispatcher a chance to overshoot; it must not.
	time.Sleep(50 * time.Millisecond)
	if n := len(exec.startedURLs()); n != 2 {
		t.Fatalf("started = %d with bound 2", n)
	}

	close(exec.release)
	waitFor(t, "all jobs done", func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.maxCur <= 2 && len(exec.started) == 5 && exec.cur == 0
	})
	if exec.maxCur > 2 {
		t.Errorf("max concurrent = %d, want <= 2", exec.maxCur)
	}
}

func TestQueue_ProgressIsMonotonic(t *testing.T) {
	// WHY: consumers poll progress; a checkpoint arriving out of order must
	// never make the bar move backwards.
	exec := &fakeExec{release: make(chan struct{})}
	exec.during = func(opts intel.Options) {
		opts.OnHarvest(2, 2, 10)          // lands at 80
		opts.OnStage(intel.StageClassify) // earlier checkpoint, must not regress
	}
	q := New(exec, Config{MaxConcurrent: 1}, nil)
	defer q.Close()

	job, err := q.Enqueue("dental clinic", "", PriorityStandard)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "checkpoint to land", func() bool {
		s, err := q.GetStatus(job.ID)
		return err == nil && s.Progress == 80
	})

	s, _ := q.GetStatus(job.ID)
	if s.Collected.AdsFound != 10 || s.Collected.KeywordsSearched != 2 {
		t.Errorf("collected = %+v, want 10 ads over 2 keywords", s.Collected)
	}

	close(exec.release)
	waitFor(t, "completion", func() bool {
		s, _ := q.GetStatus(job.ID)
		return s.Status == StatusCompleted
	})
	s, _ = q.GetStatus(job.ID)
	if s.Progress != 100 {
		t.Errorf("final progress = %d, want 100", s.Progress)
	}
	if s.Collected.AdsFound != 3 {
		t.Errorf("final ads found = %d, want 3 from the result", s.Collected.AdsFound)
	}
	if s.CompletedAt == nil || s.StartedAt == nil {
		t.Error("terminal job must carry started/completed timestamps")
	}
}

func TestQueue_ReleasesCancelTokenOnCompletion(t *testing.T) {
	// WHY: each job gets a child context of the queue's root; if it is not
	// cancelled when the job finishes, a long-running server accumulates
	// one live context per job ever processed.
	exec := &fakeExec{}
	q := New(exec, Config{MaxConcurrent: 1}, nil)
	defer q.Close()

	job, err := q.Enqueue("dental clinic", "", PriorityStandard)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "completion", func() bool {
		s, _ := q.GetStatus(job.ID)
		return s.Status == StatusCompleted
	})

	waitFor(t, "job context to be released", func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.lastCtx != nil && exec.lastCtx.Err() != nil
	})
}

func TestQueue_ReleasesCancelTokenOnFailure(t *testing.T) {
	exec := &fakeExec{err: errors.New("portal unreachable")}
	q := New(exec, Config{MaxConcurrent: 1}, nil)
	defer q.Close()

	job, err := q.Enqueue("dental clinic", "", PriorityStandard)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "failure", func() bool {
		s, _ := q.GetStatus(job.ID)
		return s.Status == StatusFailed
	})

	waitFor(t, "job context to be released", func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.lastCtx != nil && exec.lastCtx.Err() != nil
	})
}

func TestQueue_CancelQueuedJob(t *testing.T) {
	exec := &fakeExec{release: make(chan struct{})}
	q := New(exec, Config{MaxConcurrent: 1}, nil)
	defer q.Close()

	if _, err := q.Enqueue("running", "", PriorityStandard); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first job to start", func() bool { return len(exec.startedURLs()) == 1 })

	waiting, err := q.Enqueue("waiting", "", PriorityStandard)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Cancel(waiting.ID); err != nil {
		t.Fatal(err)
	}

	s, err := q.GetStatus(waiting.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", s.Status)
	}

	close(exec.release)
	waitFor(t, "running job to finish", func() bool {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		return exec.cur == 0
	})
	for _, url := range exec.startedURLs() {
		if url == "waiting" {
			t.Error("cancelled queued job must never dispatch")
		}
	}
}

func TestQueue_CancelRunningJob(t *testing.T) {
	exec := &fakeExec{release: make(chan struct{})}
	q := New(exec, Config{MaxConcurrent: 1}, nil)
	defer q.Close()

	job, err := q.Enqueue("running", "", PriorityStandard)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "job to start", func() bool { return len(exec.startedURLs()) == 1 })

	if err := q.Cancel(job.ID); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "cancellation to land", func() bool {
		s, _ := q.GetStatus(job.ID)
		return s.Status == StatusCancelled
	})

	// Cancelling again is a no-op.
	if err := q.Cancel(job.ID); err != nil {
		t.Errorf("cancel of terminal job: %v", err)
	}
}

func TestQueue_FailedJobIsTerminal(t *testing.T) {
	exec := &fakeExec{err: errors.New("portal unreachable")}
	q := New(exec, Config{MaxConcurrent: 1}, nil)
	defer q.Close()

	job, err := q.Enqueue("dental clinic", "", PriorityStandard)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "failure", func() bool {
		s, _ := q.GetStatus(job.ID)
		return s.Status == StatusFailed
	})

	s, _ := q.GetStatus(job.ID)
	if s.Error != "portal unreachable" {
		t.Errorf("error = %q", s.Error)
	}
	if s.Progress == 100 {
		t.Error("failed job must not report full progress")
	}

	// No retry: the executor ran exactly once.
	time.Sleep(50 * time.Millisecond)
	if n := len(exec.startedURLs()); n != 1 {
		t.Errorf("executor ran %d times, want 1", n)
	}
}

func TestQueue_PriorityMapsToPipelineOptions(t *testing.T) {
	var mu sync.Mutex
	got := map[string]bool{}
	exec := &fakeExec{}
	exec.during = func(opts intel.Options) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case opts.QuickScan:
			got["quick"] = true
		case opts.ForceRefresh:
			got["force"] = true
		default:
			got["plain"] = true
		}
	}
	q := New(exec, Config{}, nil)
	defer q.Close()

	for _, prio := range []Priority{PriorityInstant, PriorityStandard, PriorityDeep} {
		if _, err := q.Enqueue("dental clinic", "", prio); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "all three variants", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	if _, ok := got["quick"]; !ok {
		t.Error("instant job must run a quick scan")
	}
	if _, ok := got["force"]; !ok {
		t.Error("deep job must force a refresh")
	}
	if _, ok := got["plain"]; !ok {
		t.Error("standard job must neither quick-scan nor force")
	}
}

func TestQueue_NotifierSeesTerminalStates(t *testing.T) {
	var mu sync.Mutex
	var seen []Status
	notifier := notifyFunc(func(_ context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.Status)
		return nil
	})

	exec := &fakeExec{}
	q := New(exec, Config{MaxConcurrent: 1}, nil, WithNotifier(notifier))
	defer q.Close()

	if _, err := q.Enqueue("dental clinic", "", PriorityInstant); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "notification", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if seen[0] != StatusCompleted {
		t.Errorf("notified status = %s, want completed", seen[0])
	}
}

type notifyFunc func(ctx context.Context, job Job) error

func (f notifyFunc) Notify(ctx context.Context, job Job) error { return f(ctx, job) }

func TestQueue_GetStatusUnknown(t *testing.T) {
	q := New(&fakeExec{}, Config{}, nil)
	defer q.Close()

	if _, err := q.GetStatus("job_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := q.Cancel("job_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cancel err = %v, want ErrNotFound", err)
	}
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	q := New(&fakeExec{}, Config{}, nil)
	q.Close()

	if _, err := q.Enqueue("dental clinic", "", PriorityStandard); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestParsePriority(t *testing.T) {
	cases := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"instant", PriorityInstant, false},
		{"standard", PriorityStandard, false},
		{"deep", PriorityDeep, false},
		{"", PriorityStandard, false},
		{"urgent", "", true},
	}
	for _, tc := range cases {
		got, err := ParsePriority(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParsePriority(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParsePriority(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}
