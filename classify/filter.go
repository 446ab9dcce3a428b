// Package classify decides which directory entries a DICOM file browser shows. Names are checked
// first; files that need a look at their content are checked synchronously up to a per-pass
// budget and asynchronously beyond it, with results memoized by modification time.
package classify

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/macadamian/dicomscan/sniff"
)

// Mode selects what the filter looks for.
type Mode int

const (
	// TargetFormatMode shows DICOM files and directory indexes.
	TargetFormatMode Mode = iota
	// IndexFileMode shows only files carrying the index suffix.
	IndexFileMode
)

func (m Mode) String() string {
	switch m {
	case TargetFormatMode:
		return "target"
	case IndexFileMode:
		return "index"
	default:
		return "unknown"
	}
}

// Defaults for Options.
const (
	DefaultSyncBudget    = 32
	DefaultRefilterDelay = 256 * time.Millisecond
	DefaultIndexSuffix   = ".3dr"
	DefaultInboxSize     = 64
)

// Options configures a Filter.
type Options struct {
	Mode      Mode
	DeepCheck bool

	// SyncBudget is the number of synchronous content checks allowed per pass.
	SyncBudget int
	// MaxPending caps the asynchronous checks in flight; 0 means no cap.
	MaxPending int
	// RefilterDelay is the debounce window of Serve.
	RefilterDelay time.Duration
	// IndexSuffix is matched case-insensitively in IndexFileMode.
	IndexSuffix string
	InboxSize   int

	Sniffer *sniff.Sniffer
	// Check is the content check, sniffer.LooksLikeDICOM when nil. It runs on worker goroutines.
	Check func(path string) bool
	// Submit runs an asynchronous job, on a new goroutine when nil.
	Submit func(job func())

	Logger  zerolog.Logger
	Metrics *Metrics
}

// DefaultOptions returns the options of a filter in TargetFormatMode with deep checking off.
func DefaultOptions() Options {
	return Options{
		Mode:          TargetFormatMode,
		SyncBudget:    DefaultSyncBudget,
		RefilterDelay: DefaultRefilterDelay,
		IndexSuffix:   DefaultIndexSuffix,
		InboxSize:     DefaultInboxSize,
		Logger:        zerolog.Nop(),
	}
}

// Entry is one enumerated directory entry.
type Entry struct {
	Path string
	Info fs.FileInfo
}

// Completion is the result of an asynchronous check, delivered back to the owning goroutine.
type Completion struct {
	Path    string
	ModTime time.Time
	Target  bool

	generation uint64
}

type cacheEntry struct {
	modTime time.Time
	target  bool
}

// Filter evaluates entries. It is owned by a single goroutine: every method except Close must be
// called from it. Asynchronous checks report back through Completions and only touch the cache
// once handed to Deliver.
type Filter struct {
	opts   Options
	log    zerolog.Logger
	check  func(string) bool
	submit func(func())

	mode    Mode
	deep    bool
	budget  int
	cache   map[string]cacheEntry
	pending map[string]struct{}

	// generation is bumped on every invalidation; completions from older generations are dropped.
	generation uint64

	inbox     chan Completion
	done      chan struct{}
	closeOnce sync.Once
}

// New returns a Filter. Zero values in opts fall back to the defaults, except SyncBudget and
// MaxPending where zero is meaningful.
func New(opts Options) *Filter {
	if opts.Sniffer == nil {
		opts.Sniffer = sniff.Default
	}
	if opts.IndexSuffix == "" {
		opts.IndexSuffix = DefaultIndexSuffix
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultInboxSize
	}
	if opts.RefilterDelay < 0 {
		opts.RefilterDelay = 0
	}

	f := &Filter{
		opts:    opts,
		log:     opts.Logger,
		check:   opts.Check,
		submit:  opts.Submit,
		mode:    opts.Mode,
		deep:    opts.DeepCheck,
		cache:   make(map[string]cacheEntry),
		pending: make(map[string]struct{}),
		inbox:   make(chan Completion, opts.InboxSize),
		done:    make(chan struct{}),
	}
	if f.check == nil {
		f.check = opts.Sniffer.LooksLikeDICOM
	}
	if f.submit == nil {
		f.submit = func(job func()) { go job() }
	}
	return f
}

// Mode returns the current mode.
func (f *Filter) Mode() Mode {
	return f.mode
}

// DeepCheck reports whether content checks are enabled.
func (f *Filter) DeepCheck() bool {
	return f.deep
}

// SetMode switches the mode. A change invalidates every cached result and pending check.
func (f *Filter) SetMode(m Mode) {
	if m == f.mode {
		return
	}
	f.mode = m
	f.invalidate()
}

// SetDeepCheck toggles content checks. A change invalidates every cached result and pending check.
func (f *Filter) SetDeepCheck(on bool) {
	if on == f.deep {
		return
	}
	f.deep = on
	f.invalidate()
}

func (f *Filter) invalidate() {
	f.cache = make(map[string]cacheEntry)
	f.pending = make(map[string]struct{})
	f.generation++
	f.opts.Metrics.invalidated()
	f.opts.Metrics.pending(0)
	f.log.Debug().Stringer("mode", f.mode).Bool("deep_check", f.deep).Msg("classification cache invalidated")
}

// BeginPass resets the synchronous budget. Call it before evaluating the entries of one listing.
func (f *Filter) BeginPass() {
	f.budget = f.opts.SyncBudget
}

// Filter runs one pass over entries and returns those that are shown, in order.
func (f *Filter) Filter(entries []Entry) []Entry {
	f.BeginPass()
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Accept(e) {
			out = append(out, e)
		}
	}
	return out
}

// Accept reports whether e is shown. Entries waiting on an asynchronous check are hidden until
// their completion is delivered.
func (f *Filter) Accept(e Entry) bool {
	info := e.Info
	if info == nil {
		var err error
		if info, err = os.Stat(e.Path); err != nil {
			return false
		}
	}

	if info.IsDir() {
		f.opts.Metrics.decision(ruleDirectory)
		return true
	}

	name := info.Name()
	if name == "" {
		name = filepath.Base(e.Path)
	}

	if f.mode == IndexFileMode {
		f.opts.Metrics.decision(ruleIndexFile)
		return strings.HasSuffix(strings.ToLower(name), strings.ToLower(f.opts.IndexSuffix))
	}

	if f.opts.Sniffer.HasImageExtension(name) || f.opts.Sniffer.IsDirectoryIndexName(name) {
		f.opts.Metrics.decision(ruleName)
		return true
	}

	if !f.deep {
		f.opts.Metrics.decision(ruleDisabled)
		return false
	}

	modTime := info.ModTime()
	if c, ok := f.cache[e.Path]; ok && c.modTime.Equal(modTime) {
		f.opts.Metrics.decision(ruleCacheHit)
		return c.target
	}

	if f.budget > 0 {
		f.budget--
		start := time.Now()
		target := f.check(e.Path)
		f.opts.Metrics.observeCheck(time.Since(start).Seconds())
		f.opts.Metrics.decision(ruleSync)
		f.cache[e.Path] = cacheEntry{modTime: modTime, target: target}
		return target
	}

	if _, ok := f.pending[e.Path]; ok {
		f.opts.Metrics.decision(rulePending)
		return false
	}
	if f.opts.MaxPending > 0 && len(f.pending) >= f.opts.MaxPending {
		f.opts.Metrics.decision(ruleSaturated)
		return false
	}

	f.pending[e.Path] = struct{}{}
	f.opts.Metrics.decision(ruleSubmitted)
	f.opts.Metrics.pending(len(f.pending))
	f.log.Debug().Str("path", e.Path).Msg("content check deferred")

	path, gen, check, inbox, done := e.Path, f.generation, f.check, f.inbox, f.done
	f.submit(func() {
		c := Completion{Path: path, ModTime: modTime, Target: check(path), generation: gen}
		select {
		case inbox <- c:
		case <-done:
		}
	})
	return false
}

// Pending returns the number of asynchronous checks in flight.
func (f *Filter) Pending() int {
	return len(f.pending)
}

// IsPending reports whether path waits on an asynchronous check.
func (f *Filter) IsPending(path string) bool {
	_, ok := f.pending[path]
	return ok
}

// Completions is the inbox of asynchronous results. The owner receives from it and passes each
// value to Deliver.
func (f *Filter) Completions() <-chan Completion {
	return f.inbox
}

// Deliver stores an asynchronous result and reports whether the view should be filtered again.
// Results from before the last invalidation are dropped.
func (f *Filter) Deliver(c Completion) bool {
	if c.generation != f.generation {
		f.opts.Metrics.completion("stale")
		f.log.Debug().Str("path", c.Path).Msg("stale classification dropped")
		return false
	}
	if _, ok := f.pending[c.Path]; !ok {
		f.opts.Metrics.completion("unexpected")
		return false
	}
	delete(f.pending, c.Path)
	f.cache[c.Path] = cacheEntry{modTime: c.ModTime, target: c.Target}
	f.opts.Metrics.completion("applied")
	f.opts.Metrics.pending(len(f.pending))
	return true
}

// Serve delivers completions and calls refilter on the calling goroutine, at most once per
// RefilterDelay, after results land or when changes fires. It returns when ctx is done or the
// filter is closed. The goroutine running Serve becomes the owner of the filter: refilter is the
// place to call Filter.
func (f *Filter) Serve(ctx context.Context, refilter func(), changes <-chan struct{}) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var fire <-chan time.Time
	schedule := func() {
		if fire != nil {
			return
		}
		if f.opts.RefilterDelay == 0 {
			refilter()
			return
		}
		timer.Reset(f.opts.RefilterDelay)
		fire = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case c := <-f.inbox:
			if f.Deliver(c) {
				schedule()
			}
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			schedule()
		case <-fire:
			fire = nil
			refilter()
		}
	}
}

// Close stops Serve and releases checks blocked on a full inbox. It may be called from any
// goroutine.
func (f *Filter) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
