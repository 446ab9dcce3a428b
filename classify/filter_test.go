package classify_test

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macadamian/dicomscan/classify"
)

type fakeInfo struct {
	name string
	dir  bool
	mod  time.Time
}

func (i fakeInfo) Name() string       { return i.name }
func (i fakeInfo) Size() int64        { return 0 }
func (i fakeInfo) ModTime() time.Time { return i.mod }
func (i fakeInfo) IsDir() bool        { return i.dir }
func (i fakeInfo) Sys() any           { return nil }
func (i fakeInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func file(name string, mod time.Time) classify.Entry {
	return classify.Entry{Path: "/data/" + name, Info: fakeInfo{name: name, mod: mod}}
}

// harness records content checks and queued jobs instead of running them.
type harness struct {
	checks map[string]int
	result map[string]bool
	jobs   []func()
}

func newHarness() *harness {
	return &harness{checks: map[string]int{}, result: map[string]bool{}}
}

func (h *harness) options(deep bool, budget int) classify.Options {
	opts := classify.DefaultOptions()
	opts.DeepCheck = deep
	opts.SyncBudget = budget
	opts.Check = func(path string) bool {
		h.checks[path]++
		return h.result[path]
	}
	opts.Submit = func(job func()) { h.jobs = append(h.jobs, job) }
	return opts
}

// run executes queued jobs and delivers their completions.
func (h *harness) run(t *testing.T, f *classify.Filter) int {
	t.Helper()
	jobs := h.jobs
	h.jobs = nil
	refilters := 0
	for _, job := range jobs {
		job()
		select {
		case c := <-f.Completions():
			if f.Deliver(c) {
				refilters++
			}
		case <-time.After(time.Second):
			t.Fatal("no completion delivered")
		}
	}
	return refilters
}

func TestExtensionPassesWithoutIO(t *testing.T) {
	h := newHarness()
	f := classify.New(h.options(false, 0))
	defer f.Close()

	assert.True(t, f.Accept(file("scan.dcm", t0)))
	assert.True(t, f.Accept(file("DICOMDIR", t0)))
	assert.False(t, f.Accept(file("IM0001", t0)))
	assert.Empty(t, h.checks)
	assert.Empty(t, h.jobs)
}

func TestDirectoriesAlwaysPass(t *testing.T) {
	h := newHarness()
	f := classify.New(h.options(true, 0))
	defer f.Close()

	dir := classify.Entry{Path: "/data/sub", Info: fakeInfo{name: "sub", dir: true}}
	assert.True(t, f.Accept(dir))
	f.SetMode(classify.IndexFileMode)
	assert.True(t, f.Accept(dir))
}

func TestIndexFileMode(t *testing.T) {
	h := newHarness()
	opts := h.options(true, 8)
	opts.Mode = classify.IndexFileMode
	f := classify.New(opts)
	defer f.Close()

	f.BeginPass()
	assert.True(t, f.Accept(file("skull.3DR", t0)))
	assert.False(t, f.Accept(file("scan.dcm", t0)))
	assert.False(t, f.Accept(file("IM0001", t0)))
	assert.Empty(t, h.checks)
}

func TestZeroBudgetDefersOnce(t *testing.T) {
	h := newHarness()
	h.result["/data/IM0001"] = true
	f := classify.New(h.options(true, 0))
	defer f.Close()

	e := file("IM0001", t0)
	f.BeginPass()
	assert.False(t, f.Accept(e))
	assert.True(t, f.IsPending(e.Path))
	assert.Len(t, h.jobs, 1)

	// evaluated again before the job ran
	f.BeginPass()
	assert.False(t, f.Accept(e))
	assert.Len(t, h.jobs, 1)
	assert.Equal(t, 1, f.Pending())
	assert.Empty(t, h.checks)

	assert.Equal(t, 1, h.run(t, f))
	assert.False(t, f.IsPending(e.Path))
	assert.Equal(t, 1, h.checks[e.Path])

	f.BeginPass()
	assert.True(t, f.Accept(e))
	assert.Equal(t, 1, h.checks[e.Path], "cached result reused")
}

func TestSyncBudgetPerPass(t *testing.T) {
	h := newHarness()
	f := classify.New(h.options(true, 2))
	defer f.Close()

	entries := []classify.Entry{file("a", t0), file("b", t0), file("c", t0), file("d", t0)}
	h.result["/data/b"] = true

	got := f.Filter(entries)
	assert.Equal(t, []classify.Entry{entries[1]}, got)
	assert.Equal(t, 1, h.checks["/data/a"])
	assert.Equal(t, 1, h.checks["/data/b"])
	assert.Len(t, h.jobs, 2)
	assert.Equal(t, 2, f.Pending())

	// the budget is restored by the next pass, but c and d are already pending
	h.result["/data/d"] = true
	f.Filter(entries)
	assert.Len(t, h.jobs, 2)
	assert.Equal(t, 1, h.checks["/data/a"])

	assert.Equal(t, 2, h.run(t, f))
	got = f.Filter(entries)
	assert.Equal(t, []classify.Entry{entries[1], entries[3]}, got)
}

func TestModTimeChangeInvalidatesEntry(t *testing.T) {
	h := newHarness()
	f := classify.New(h.options(true, 4))
	defer f.Close()

	f.BeginPass()
	assert.False(t, f.Accept(file("IM1", t0)))
	assert.Equal(t, 1, h.checks["/data/IM1"])

	h.result["/data/IM1"] = true
	f.BeginPass()
	assert.False(t, f.Accept(file("IM1", t0)), "unchanged file is served from cache")
	assert.Equal(t, 1, h.checks["/data/IM1"])

	f.BeginPass()
	assert.True(t, f.Accept(file("IM1", t0.Add(time.Second))))
	assert.Equal(t, 2, h.checks["/data/IM1"])
}

func TestModeChangeDropsStaleCompletions(t *testing.T) {
	h := newHarness()
	h.result["/data/IM1"] = true
	f := classify.New(h.options(true, 0))
	defer f.Close()

	f.BeginPass()
	assert.False(t, f.Accept(file("IM1", t0)))
	require.Len(t, h.jobs, 1)

	f.SetMode(classify.IndexFileMode)
	f.SetMode(classify.TargetFormatMode)
	assert.Equal(t, 0, f.Pending())

	assert.Equal(t, 0, h.run(t, f), "stale completion must not trigger a refilter")

	// nothing leaked into the cache: the entry is deferred again
	f.BeginPass()
	assert.False(t, f.Accept(file("IM1", t0)))
	assert.Len(t, h.jobs, 1)
	assert.Equal(t, 1, f.Pending())
}

func TestDeepCheckToggleClearsCache(t *testing.T) {
	h := newHarness()
	h.result["/data/IM1"] = true
	f := classify.New(h.options(true, 4))
	defer f.Close()

	f.BeginPass()
	assert.True(t, f.Accept(file("IM1", t0)))

	f.SetDeepCheck(false)
	f.BeginPass()
	assert.False(t, f.Accept(file("IM1", t0)))

	f.SetDeepCheck(true)
	f.BeginPass()
	assert.True(t, f.Accept(file("IM1", t0)))
	assert.Equal(t, 2, h.checks["/data/IM1"])
}

func TestMaxPending(t *testing.T) {
	h := newHarness()
	opts := h.options(true, 0)
	opts.MaxPending = 2
	f := classify.New(opts)
	defer f.Close()

	f.Filter([]classify.Entry{file("a", t0), file("b", t0), file("c", t0)})
	assert.Len(t, h.jobs, 2)
	assert.False(t, f.IsPending("/data/c"))

	h.run(t, f)
	f.Filter([]classify.Entry{file("a", t0), file("b", t0), file("c", t0)})
	assert.Len(t, h.jobs, 1)
	assert.True(t, f.IsPending("/data/c"))
}

func value(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	require.NoError(t, (<-ch).Write(&m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestMetrics(t *testing.T) {
	h := newHarness()
	opts := h.options(true, 1)
	opts.Metrics = classify.NewMetrics(prometheus.NewRegistry())
	f := classify.New(opts)
	defer f.Close()

	f.Filter([]classify.Entry{file("x.dcm", t0), file("a", t0), file("b", t0)})
	assert.Equal(t, 1.0, value(t, opts.Metrics.Decisions.WithLabelValues("name")))
	assert.Equal(t, 1.0, value(t, opts.Metrics.Decisions.WithLabelValues("sync_check")))
	assert.Equal(t, 1.0, value(t, opts.Metrics.Decisions.WithLabelValues("async_submitted")))
	assert.Equal(t, 1.0, value(t, opts.Metrics.Pending))

	h.run(t, f)
	assert.Equal(t, 1.0, value(t, opts.Metrics.Completions.WithLabelValues("applied")))
	assert.Equal(t, 0.0, value(t, opts.Metrics.Pending))
}

func TestServeRefiltersAfterCompletions(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"one", "two", "three"} {
		p := filepath.Join(dir, name)
		data := make([]byte, 200)
		copy(data[128:], "DICM")
		require.NoError(t, os.WriteFile(p, data, 0o644))
		paths = append(paths, p)
	}

	opts := classify.DefaultOptions()
	opts.DeepCheck = true
	opts.SyncBudget = 0
	opts.RefilterDelay = 20 * time.Millisecond
	f := classify.New(opts)
	defer f.Close()

	entries := make([]classify.Entry, len(paths))
	for i, p := range paths {
		entries[i] = classify.Entry{Path: p}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		visible []int
	)
	var passes atomic.Int32
	refilter := func() {
		passes.Add(1)
		n := len(f.Filter(entries))
		mu.Lock()
		visible = append(visible, n)
		mu.Unlock()
		if n == len(entries) {
			cancel()
		}
	}

	// first pass on the owning goroutine, before Serve takes over
	assert.Empty(t, f.Filter(entries))

	err := f.Serve(ctx, refilter, nil)
	assert.ErrorIs(t, err, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, visible)
	assert.Equal(t, len(entries), visible[len(visible)-1])
	assert.LessOrEqual(t, passes.Load(), int32(len(entries)))
}

func TestServeStopsOnClose(t *testing.T) {
	f := classify.New(classify.DefaultOptions())
	changes := make(chan struct{})
	close(changes)

	errc := make(chan error, 1)
	go func() { errc <- f.Serve(context.Background(), func() {}, changes) }()
	f.Close()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestCloseReleasesBlockedJobs(t *testing.T) {
	var wg sync.WaitGroup
	opts := classify.DefaultOptions()
	opts.DeepCheck = true
	opts.SyncBudget = 0
	opts.InboxSize = 1
	opts.Check = func(string) bool { return true }
	opts.Submit = func(job func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job()
		}()
	}
	f := classify.New(opts)

	f.Filter([]classify.Entry{file("a", t0), file("b", t0), file("c", t0)})
	f.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("jobs still blocked after Close")
	}
}
