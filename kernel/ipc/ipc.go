// Package ipc implements the three message-passing primitives of
// spec.md §4.10: channels (per-endpoint queued parcels), notifications
// (shared single-slot non-queued state), and message ports (the
// SEND/RECEIVED/REPLIED rendezvous used by the VFS server path).
// Grounded on original_source/kernel/proc/notification.c (Notification),
// original_source/kernel/h/kernel/parcel.h (Channel's parcel payload) and
// original_source/kernel/h/kernel/msg.h (MsgPort's state machine).
package ipc

import (
	"rpikernel/kernel/errs"
	"rpikernel/kernel/rendez"
)

// ParcelType distinguishes a plain message payload from a transferred
// handle, per parcel.h's PARCEL_MSG/PARCEL_HANDLE.
type ParcelType int

const (
	ParcelMsg ParcelType = iota
	ParcelHandle
)

// Parcel is one item queued on a channel endpoint.
type Parcel struct {
	Type    ParcelType
	Payload []byte
	Handle  int
}

// EventRaiser is the minimal per-endpoint-owner hook used to raise the
// peer's pending-event bit and wake its waiters, avoiding an import cycle
// with kernel/event/kernel/proc. ownerHandle identifies which of the
// owner's handles to raise.
type EventRaiser interface {
	RaiseOwnedEvent(ownerHandle int) []rendez.Sleeper
}

// Endpoint is one side of a Channel: its own pending-parcel queue plus the
// means to notify its peer.
type Endpoint struct {
	Handle int
	Owner  EventRaiser
	queue  []Parcel
	closed bool
}

// Channel couples two independently closable endpoints. put_msg on one
// endpoint enqueues onto the *other* endpoint's queue and raises its
// event; get_msg dequeues from the caller's own endpoint.
type Channel struct {
	Ends [2]*Endpoint
}

// NewChannel wires two fresh endpoints together.
func NewChannel(h0, h1 int, owner0, owner1 EventRaiser) *Channel {
	c := &Channel{}
	c.Ends[0] = &Endpoint{Handle: h0, Owner: owner0}
	c.Ends[1] = &Endpoint{Handle: h1, Owner: owner1}
	return c
}

func (c *Channel) other(which int) int { return 1 - which }

// indexOf returns which endpoint h names, or -1.
func (c *Channel) indexOf(h int) int {
	for i, e := range c.Ends {
		if e != nil && e.Handle == h {
			return i
		}
	}
	return -1
}

// Put enqueues p onto the peer endpoint's queue and returns the waiters
// woken by raising the peer's event. Fails with ConnectionErr if the peer
// endpoint has already closed.
func (c *Channel) Put(h int, p Parcel) ([]rendez.Sleeper, errs.Err_t) {
	i := c.indexOf(h)
	if i < 0 {
		return nil, errs.ParamErr
	}
	j := c.other(i)
	peer := c.Ends[j]
	if peer == nil || peer.closed {
		return nil, errs.ConnectionErr
	}
	peer.queue = append(peer.queue, p)
	if peer.Owner != nil {
		return peer.Owner.RaiseOwnedEvent(peer.Handle), errs.OK
	}
	return nil, errs.OK
}

// Get dequeues the oldest parcel from h's own endpoint, FIFO per
// spec.md's ordering guarantee.
func (c *Channel) Get(h int) (Parcel, errs.Err_t) {
	i := c.indexOf(h)
	if i < 0 {
		return Parcel{}, errs.ParamErr
	}
	e := c.Ends[i]
	if len(e.queue) == 0 {
		return Parcel{}, errs.ResourceErr
	}
	p := e.queue[0]
	e.queue = e.queue[1:]
	return p, errs.OK
}

// Close closes h's endpoint, draining its pending parcels into
// drainInto (the receiver's pending-close list per spec.md: "the sender's
// pending lists are drained into the receiver's pending-close list so the
// receiver's KernelExit reclaims them"), and raises an event on the
// surviving peer. Returns true if the whole channel is now fully closed.
func (c *Channel) Close(h int, drainInto *[]Parcel) ([]rendez.Sleeper, bool) {
	i := c.indexOf(h)
	if i < 0 {
		return nil, false
	}
	e := c.Ends[i]
	e.closed = true
	if drainInto != nil {
		*drainInto = append(*drainInto, e.queue...)
	}
	e.queue = nil

	peer := c.Ends[c.other(i)]
	if peer == nil || peer.closed {
		return nil, true
	}
	if peer.Owner != nil {
		return peer.Owner.RaiseOwnedEvent(peer.Handle), false
	}
	return nil, false
}

// Notification is a shared, single-slot, non-queued state cell with two
// endpoint handles. Grounded field-for-field on struct Notification in
// notification.c.
type Notification struct {
	handle [2]int
	owner  [2]EventRaiser
	state  int
}

// NewNotification wires a fresh Notification with both endpoints open.
func NewNotification(h0, h1 int, owner0, owner1 EventRaiser) *Notification {
	return &Notification{handle: [2]int{h0, h1}, owner: [2]EventRaiser{owner0, owner1}}
}

func (n *Notification) indexOf(h int) int {
	if n.handle[0] == h {
		return 0
	}
	if n.handle[1] == h {
		return 1
	}
	return -1
}

// Put overwrites the shared state and raises an event on the peer
// endpoint. ConnectionErr if the peer has already closed, matching
// PutNotification's handle[q] == -1 check.
func (n *Notification) Put(h, value int) ([]rendez.Sleeper, errs.Err_t) {
	i := n.indexOf(h)
	if i < 0 {
		return nil, errs.ParamErr
	}
	peer := 1 - i
	if n.handle[peer] == -1 {
		return nil, errs.ConnectionErr
	}
	n.state = value
	if n.owner[peer] != nil {
		return n.owner[peer].RaiseOwnedEvent(n.handle[peer]), errs.OK
	}
	return nil, errs.OK
}

// Get returns the current shared state; the caller is responsible for
// clearing its own pending-event bit (DoClearEvent in the original),
// since Notification has no handle table of its own.
func (n *Notification) Get(h int) (int, errs.Err_t) {
	if n.indexOf(h) < 0 {
		return 0, errs.ParamErr
	}
	return n.state, errs.OK
}

// Close marks h's endpoint closed. Returns true if both endpoints are now
// closed (the Notification object should be freed), else the waiters
// woken by raising an event on the surviving peer.
func (n *Notification) Close(h int) ([]rendez.Sleeper, bool) {
	i := n.indexOf(h)
	if i < 0 {
		return nil, false
	}
	n.handle[i] = -1
	peer := 1 - i
	if n.handle[peer] == -1 {
		return nil, true
	}
	if n.owner[peer] != nil {
		return n.owner[peer].RaiseOwnedEvent(n.handle[peer]), false
	}
	return nil, false
}

// MsgState is a Msg's position in the SEND/RECEIVED/REPLIED state
// machine, per msg.h's MSG_STATE_* constants.
type MsgState int

const (
	MsgSend MsgState = iota + 1
	MsgReceived
	MsgReplied
)

// Msg is one in-flight request on a MsgPort.
type Msg struct {
	Pid          int
	Payload      []byte
	State        MsgState
	ReplyStatus  int
	SenderRendez *rendez.Rendez
}

// MsgPort is the VFS server rendezvous point: a FIFO of pending messages
// plus the server's own wait rendez, grounded on struct MsgPort in
// msg.h.
type MsgPort struct {
	pending    []*Msg
	ServerWait *rendez.Rendez
}

// NewMsgPort returns an empty port with its own server-side wait rendez.
func NewMsgPort() *MsgPort {
	return &MsgPort{ServerWait: rendez.New()}
}

// Send enqueues m in SEND state and drains the server's wait rendez so
// the scheduler can re-ready it, per send_msg's "blocks the sender ...
// wakes the port". The caller is responsible for then sleeping the
// sending process on m.SenderRendez.
func (p *MsgPort) Send(m *Msg) []rendez.Sleeper {
	m.State = MsgSend
	p.pending = append(p.pending, m)
	return p.ServerWait.DrainAll()
}

// Receive dequeues the oldest pending message and transitions it to
// RECEIVED.
func (p *MsgPort) Receive() (*Msg, bool) {
	if len(p.pending) == 0 {
		return nil, false
	}
	m := p.pending[0]
	p.pending = p.pending[1:]
	m.State = MsgReceived
	return m, true
}

// Reply stores status, transitions m to REPLIED, and drains m's private
// rendez so the sender can be re-readied.
func (p *MsgPort) Reply(m *Msg, status int) []rendez.Sleeper {
	m.ReplyStatus = status
	m.State = MsgReplied
	if m.SenderRendez == nil {
		return nil
	}
	return m.SenderRendez.DrainAll()
}

// Pending reports the number of messages queued on the port.
func (p *MsgPort) Pending() int { return len(p.pending) }
