// Package stats implements per-process and kernel-wide accounting, and
// exports it as a pprof profile for the D_PROF pseudo-device. Grounded on
// biscuit's accnt.Accnt_t (mutex-guarded nanosecond counters, merge-by-Add
// idiom) and stats.Counter_t (atomic counters), adapted to jiffy-based
// accounting since this kernel keeps its own simulated clock rather than
// reading the host wall clock.
package stats

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/pprof/profile"
)

// Counter is an atomically-updated statistic, grounded on
// biscuit/stats.Counter_t.
type Counter int64

// Inc increments the counter by one.
func (c *Counter) Inc() { atomic.AddInt64((*int64)(c), 1) }

// Add adds delta to the counter.
func (c *Counter) Add(delta int64) { atomic.AddInt64((*int64)(c), delta) }

// Value reads the counter.
func (c *Counter) Value() int64 { return atomic.LoadInt64((*int64)(c)) }

// Accnt accumulates one process's CPU-time usage in jiffies, grounded on
// accnt.Accnt_t's Userns/Sysns pair and its Add/Fetch merge idiom.
type Accnt struct {
	mu sync.Mutex

	UserJiffies int64
	SysJiffies  int64
}

// AddUser adds delta jiffies of user-mode runtime.
func (a *Accnt) AddUser(delta int64) {
	a.mu.Lock()
	a.UserJiffies += delta
	a.mu.Unlock()
}

// AddSys adds delta jiffies of kernel-mode runtime.
func (a *Accnt) AddSys(delta int64) {
	a.mu.Lock()
	a.SysJiffies += delta
	a.mu.Unlock()
}

// Fetch returns a consistent snapshot of the two counters.
func (a *Accnt) Fetch() (user, sys int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.UserJiffies, a.SysJiffies
}

// Merge adds n's counters into a, matching Accnt_t.Add's merge-on-exit
// use (a parent absorbs a reaped child's accounting).
func (a *Accnt) Merge(n *Accnt) {
	u, s := n.Fetch()
	a.mu.Lock()
	a.UserJiffies += u
	a.SysJiffies += s
	a.mu.Unlock()
}

// Registry is the kernel-wide accounting table: one Accnt per live pid
// plus global event counters, exported together as a pprof profile.
type Registry struct {
	mu    sync.Mutex
	byPid map[int]*Accnt

	ContextSwitches Counter
	PageFaults      Counter
	TimerFires      Counter
	IRQCount        Counter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byPid: make(map[int]*Accnt)}
}

// For returns the Accnt for pid, creating it on first use.
func (r *Registry) For(pid int) *Accnt {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byPid[pid]
	if !ok {
		a = &Accnt{}
		r.byPid[pid] = a
	}
	return a
}

// Forget drops pid's accounting record, used when a process is reaped by
// Join.
func (r *Registry) Forget(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byPid, pid)
}

// Snapshot builds a pprof profile.Profile with one sample per tracked
// process, values [userJiffies, sysJiffies], backing the D_PROF
// pseudo-device's export. The profile carries no Location/Function
// entries since kernel accounting has no call-stack dimension — only the
// two sample types and per-pid labels.
func (r *Registry) Snapshot() *profile.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "user", Unit: "jiffies"},
			{Type: "sys", Unit: "jiffies"},
		},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "jiffies"},
		Period:     1,
	}

	for pid, a := range r.byPid {
		user, sys := a.Fetch()
		p.Sample = append(p.Sample, &profile.Sample{
			Value: []int64{user, sys},
			Label: map[string][]string{"pid": {strconv.Itoa(pid)}},
		})
	}
	return p
}
