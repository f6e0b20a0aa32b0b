// Package health serves liveness and readiness probes.
//
// Checks run in the background on a fixed interval; probe requests only read
// the last result, so a slow dependency never blocks the probe itself. A
// check turns unhealthy after FailureThreshold consecutive failures and
// healthy again after one success.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc reports a problem with a dependency, or nil.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	// Liveness checks failing means the process should be restarted.
	Liveness Kind = iota
	// Readiness checks failing means traffic should be routed elsewhere.
	Readiness
)

// Check describes one registered check.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Func    CheckFunc
	// FailureThreshold defaults to 3.
	FailureThreshold int
}

type result struct {
	err     error
	healthy bool
}

type check struct {
	Check
	fails int // only touched by the check's own goroutine
	last  atomic.Pointer[result]
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	err := c.Func(ctx)
	healthy := c.last.Load().healthy
	if err == nil {
		c.fails = 0
		healthy = true
	} else {
		c.fails++
		if c.fails >= c.FailureThreshold {
			healthy = false
		}
	}
	c.last.Store(&result{err: err, healthy: healthy})
}

// Probe owns a set of checks and the manual readiness switch.
type Probe struct {
	ready atomic.Bool

	mu     sync.Mutex
	checks []*check
	cancel context.CancelFunc
}

// New returns a Probe that is not ready until SetReady(true).
func New() *Probe {
	return &Probe{}
}

// Add registers a check. Checks start healthy.
func (p *Probe) Add(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	ch := &check{Check: c}
	ch.last.Store(&result{healthy: true})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks = append(p.checks, ch)
}

// Start runs every check once immediately and then every interval until Stop
// or ctx cancellation.
func (p *Probe) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	checks := slices.Clone(p.checks)
	p.mu.Unlock()

	for _, c := range checks {
		go func() {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-t.C:
				}
			}
		}()
	}
}

// Stop halts the background checks. It is idempotent.
func (p *Probe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// SetReady flips the manual readiness switch, used around startup and
// graceful shutdown.
func (p *Probe) SetReady(ready bool) {
	p.ready.Store(ready)
}

// Ready reports whether the switch is on and every readiness check passes.
func (p *Probe) Ready() bool {
	return p.ready.Load() && len(p.failures(Readiness)) == 0
}

// failures maps the names of unhealthy checks of kind to their last error.
func (p *Probe) failures(kind Kind) map[string]string {
	p.mu.Lock()
	checks := slices.Clone(p.checks)
	p.mu.Unlock()

	out := make(map[string]string)
	for _, c := range checks {
		if c.Kind != kind {
			continue
		}
		r := c.last.Load()
		if r.healthy {
			continue
		}
		msg := "unhealthy"
		if r.err != nil {
			msg = r.err.Error()
		}
		out[c.Name] = msg
	}
	return out
}

// Handler serves the probe of the given kind: 200 {"status":"ok"} or 503
// with the failing checks.
func (p *Probe) Handler(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		failures := p.failures(kind)
		if kind == Readiness && !p.ready.Load() {
			failures["ready"] = "not accepting traffic"
		}
		writeStatus(w, failures)
	}
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	code := http.StatusOK
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		code = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
