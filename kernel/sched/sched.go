// Package sched implements the two coexisting scheduling disciplines of
// spec.md §4.6: 32-level real-time RR/FIFO queues with a non-empty
// bitmap, and a stride-scheduler pool for SCHED_OTHER. Grounded on
// original_source/kernel/proc/sched.c, whose Reschedule/SchedReady/
// SchedUnready this package ports field-for-field.
package sched

const (
	// STRIDE1 is the numerator used to derive a client's stride from its
	// ticket count: stride = STRIDE1 / tickets.
	STRIDE1 = 1_000_000
	// MaxRTPriority is the number of real-time priority levels (0..31).
	MaxRTPriority = 32
	// MaxStrideTickets bounds SCHED_OTHER ticket allocations.
	MaxStrideTickets = 800
	// ProcessQuanta is the number of timer ticks a RR/OTHER client runs
	// before its quantum expires. FIFO clients ignore it.
	ProcessQuanta = 2
)

// Policy selects a client's scheduling discipline.
type Policy int

const (
	Other Policy = iota // stride scheduler
	RR                  // real-time round-robin
	FIFO                // real-time first-in-first-out
	Idle                // the per-CPU idle client, never enqueued by ticket
)

// Client is the scheduling-only state of one schedulable entity (a
// process). kernel/proc.Process embeds Client the way the original
// kernel's struct Process embeds these same fields directly.
type Client struct {
	Policy     Policy
	Priority   int // real-time priority, 0..31 (also doubles as RT ticket count)
	Tickets    int // SCHED_OTHER tickets, 1..800
	Stride     int64
	Pass       int64
	Remaining  int64
	QuantaUsed int

	onRT     bool
	rtIndex  int // position within its priority's FIFO ring, for rotation
	onStride bool
}

// Scheduler owns the ready queues. All methods assume the caller holds the
// kernel-wide big lock.
type Scheduler struct {
	rt       [MaxRTPriority][]*Client
	rtBitmap uint32

	stride []*Client // sorted by Pass ascending, stable

	globalTickets int64
	globalStride  int64
	globalPass    int64

	idle *Client
}

// New returns a Scheduler with no ready clients; idle is the fallback
// client returned by Pick when both queues are empty.
func New(idle *Client) *Scheduler {
	idle.Policy = Idle
	return &Scheduler{idle: idle}
}

// Ready adds proc to the appropriate queue for its policy, per SchedReady.
func (s *Scheduler) Ready(c *Client) {
	switch c.Policy {
	case RR, FIFO:
		s.rt[c.Priority] = append(s.rt[c.Priority], c)
		c.onRT = true
		s.rtBitmap |= 1 << uint(c.Priority)
	case Other:
		if c.Tickets <= 0 {
			c.Tickets = 1
		}
		c.Stride = STRIDE1 / int64(c.Tickets)
		s.globalTickets += int64(c.Tickets)
		if s.globalTickets > 0 {
			s.globalStride = STRIDE1 / s.globalTickets
		}
		c.Pass = s.globalPass - c.Remaining
		s.insertStrideSorted(c)
		c.onStride = true
	}
	c.QuantaUsed = 0
}

func (s *Scheduler) insertStrideSorted(c *Client) {
	idx := len(s.stride)
	for i, other := range s.stride {
		if other.Pass > c.Pass {
			idx = i
			break
		}
	}
	s.stride = append(s.stride, nil)
	copy(s.stride[idx+1:], s.stride[idx:])
	s.stride[idx] = c
}

// Unready removes c from its ready queue, per SchedUnready.
func (s *Scheduler) Unready(c *Client) {
	switch c.Policy {
	case RR, FIFO:
		if !c.onRT {
			return
		}
		q := s.rt[c.Priority]
		for i, x := range q {
			if x == c {
				s.rt[c.Priority] = append(q[:i], q[i+1:]...)
				break
			}
		}
		c.onRT = false
		if len(s.rt[c.Priority]) == 0 {
			s.rtBitmap &^= 1 << uint(c.Priority)
		}
	case Other:
		if !c.onStride {
			return
		}
		s.globalTickets -= int64(c.Tickets)
		c.Remaining = s.globalPass - c.Pass
		for i, x := range s.stride {
			if x == c {
				s.stride = append(s.stride[:i], s.stride[i+1:]...)
				break
			}
		}
		c.onStride = false
	}
	c.QuantaUsed = 0
}

// Tick accounts one timer tick of CPU time against the running client,
// reporting whether its quantum has expired (RR/OTHER only; FIFO runs
// until it sleeps or yields).
func (s *Scheduler) Tick(running *Client) bool {
	if running.Policy == FIFO || running.Policy == Idle {
		return false
	}
	running.QuantaUsed++
	return running.QuantaUsed >= ProcessQuanta
}

// Reschedule implements the outgoing-process bookkeeping and next-client
// selection of the original's Reschedule(): RR clients rotate to the tail
// of their queue; OTHER clients advance pass/global_pass and reinsert
// sorted, clamping global_pass to at most the new head's pass to prevent
// drift. running may be nil (e.g. first schedule at boot).
func (s *Scheduler) Reschedule(running *Client) *Client {
	if running != nil && running != s.idle {
		switch running.Policy {
		case RR:
			s.rotateRT(running)
			running.QuantaUsed = 0
		case Other:
			if s.globalTickets > 0 {
				s.globalStride = STRIDE1 / s.globalTickets
			}
			s.globalPass += s.globalStride
			running.Pass += running.Stride

			s.removeStride(running)
			s.insertStrideSorted(running)

			if head := s.strideHead(); head != nil && s.globalPass > head.Pass {
				s.globalPass = head.Pass
			}
			running.QuantaUsed = 0
		}
	}

	return s.Pick()
}

// Pick returns the next client to run without performing any outgoing
// bookkeeping: highest non-empty real-time priority, else the stride-list
// head, else idle.
func (s *Scheduler) Pick() *Client {
	if s.rtBitmap != 0 {
		for p := MaxRTPriority - 1; p >= 0; p-- {
			if s.rtBitmap&(1<<uint(p)) != 0 {
				return s.rt[p][0]
			}
		}
	}
	if len(s.stride) > 0 {
		return s.stride[0]
	}
	return s.idle
}

func (s *Scheduler) rotateRT(c *Client) {
	q := s.rt[c.Priority]
	for i, x := range q {
		if x == c {
			rotated := append(append([]*Client{}, q[i+1:]...), q[:i+1]...)
			s.rt[c.Priority] = rotated
			return
		}
	}
}

func (s *Scheduler) removeStride(c *Client) {
	for i, x := range s.stride {
		if x == c {
			s.stride = append(s.stride[:i], s.stride[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) strideHead() *Client {
	if len(s.stride) == 0 {
		return nil
	}
	return s.stride[0]
}

// SetParams validates and applies a scheduling-policy change, unreadying
// and re-readying c the way SetSchedParams's
// SchedUnready/.../SchedReady sequence does. Privilege (allow-io) checks
// belong to the caller (kernel/proc), since Scheduler has no notion of
// process privilege.
func (s *Scheduler) SetParams(c *Client, policy Policy, tickets int) bool {
	switch policy {
	case RR, FIFO:
		if tickets < 0 || tickets > MaxRTPriority-1 || tickets == 0 {
			return false
		}
		s.Unready(c)
		c.Policy = policy
		c.Priority = tickets
		s.Ready(c)
	case Other:
		if tickets <= 0 || tickets > MaxStrideTickets {
			return false
		}
		s.Unready(c)
		c.Policy = policy
		c.Tickets = tickets
		c.Stride = STRIDE1 / int64(tickets)
		c.Remaining = c.Stride
		c.Pass = s.globalPass
		s.Ready(c)
	default:
		return false
	}
	return true
}

// Yield rotates an RR/FIFO client to the tail of its queue without
// otherwise touching scheduling state, per the original's Yield().
func (s *Scheduler) Yield(c *Client) {
	if c.Policy == RR || c.Policy == FIFO {
		s.rotateRT(c)
	}
}
