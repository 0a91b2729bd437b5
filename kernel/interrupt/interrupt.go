// Package interrupt implements the top/bottom-half IRQ dispatcher of
// spec.md §4.8: a per-IRQ list of ISR handlers, automatic nested masking
// at the controller, and a notify-from-ISR hook run from the bottom
// half. Grounded on original_source/kernel/arm/interrupt.c
// (InterruptTopHalf/mask bitmap discipline) and
// original_source/kernel/proc/interrupt.c (CreateInterrupt/
// DoCloseInterruptHandler).
package interrupt

import "sync"

// NumIRQ is the number of distinct IRQ lines the dispatcher tracks,
// matching the Raspberry Pi's combined IRQ1/IRQ2/basic controller banks.
const NumIRQ = 96

// Notifiable is the owner-side hook invoked once per handler when its IRQ
// fires: set the owner handle's pending bit and wake its wait rendez, per
// spec.md's "notify-from-ISR hook" wording. kernel/proc wires this atop
// kernel/handle and kernel/event.
type Notifiable interface {
	NotifyFromISR(handle int)
}

// Handler is one registered ISR: an IRQ line, the handle the owning
// process waits on, and the hook to call when it fires.
type Handler struct {
	IRQ    int
	Handle int
	Owner  Notifiable
}

// Dispatcher owns the per-IRQ handler lists, the controller-visible mask
// state, and the latched pending bitmap written by the top half.
type Dispatcher struct {
	mu sync.Mutex

	handlers [NumIRQ][]*Handler
	pending  [NumIRQ]bool
	maskedAt [NumIRQ]int32 // sum of all handlers' maskCnt for this IRQ; >0 means masked at controller

	RescheduleRequested bool
}

// New returns a Dispatcher with every IRQ initially unmasked and idle.
func New() *Dispatcher { return &Dispatcher{} }

// TopHalf runs in IRQ context: it ORs the hardware-pending bitmap into the
// dispatcher's latch, masks each now-pending IRQ at the controller so the
// bottom half can run with interrupts re-enabled, and requests a
// reschedule, per spec.md's top-half description. It does not invoke any
// handler.
func (d *Dispatcher) TopHalf(pendingBitmap [NumIRQ]bool, maskFn func(irq int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for irq, p := range pendingBitmap {
		if p {
			d.pending[irq] = true
			if maskFn != nil {
				maskFn(irq)
			}
		}
	}
	d.RescheduleRequested = true
}

// AddHandler registers h for its IRQ, unmasking the controller line on the
// first handler added for that IRQ (irq_handler_cnt transition 0->1 in the
// original).
func (d *Dispatcher) AddHandler(h *Handler, unmaskFn func(irq int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	first := len(d.handlers[h.IRQ]) == 0
	d.handlers[h.IRQ] = append(d.handlers[h.IRQ], h)
	if first && unmaskFn != nil {
		unmaskFn(h.IRQ)
	}
}

// RemoveHandler unregisters h, masking the controller line once no
// handlers remain for its IRQ, per DoCloseInterruptHandler.
func (d *Dispatcher) RemoveHandler(h *Handler, maskFn func(irq int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.handlers[h.IRQ]
	for i, x := range q {
		if x == h {
			d.handlers[h.IRQ] = append(q[:i], q[i+1:]...)
			break
		}
	}
	if len(d.handlers[h.IRQ]) == 0 && maskFn != nil {
		maskFn(h.IRQ)
	}
}

// BottomHalf runs with interrupts re-enabled: for every IRQ latched
// pending by TopHalf, it walks that IRQ's handler list, increments each
// handler's mask count, and calls the owner's notify-from-ISR hook.
func (d *Dispatcher) BottomHalf() {
	d.mu.Lock()
	var fire []*Handler
	for irq := 0; irq < NumIRQ; irq++ {
		if !d.pending[irq] {
			continue
		}
		d.pending[irq] = false
		for _, h := range d.handlers[irq] {
			d.maskedAt[irq]++
			fire = append(fire, h)
		}
	}
	d.mu.Unlock()

	for _, h := range fire {
		if h.Owner != nil {
			h.Owner.NotifyFromISR(h.Handle)
		}
	}
}

// MaskInterrupt increments irq's nested mask counter, masking it at the
// controller on the 0->1 transition. Privilege (allow-io) checks belong to
// the caller.
func (d *Dispatcher) MaskInterrupt(irq int, maskFn func(irq int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maskedAt[irq]++
	if d.maskedAt[irq] == 1 && maskFn != nil {
		maskFn(irq)
	}
}

// UnmaskInterrupt decrements irq's nested mask counter, unmasking it at
// the controller once it reaches zero, per spec.md's "decrements the
// count and unmasks at zero".
func (d *Dispatcher) UnmaskInterrupt(irq int, unmaskFn func(irq int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.maskedAt[irq] == 0 {
		return
	}
	d.maskedAt[irq]--
	if d.maskedAt[irq] == 0 && unmaskFn != nil {
		unmaskFn(irq)
	}
}

// MaskCount reports the current nested mask count for irq, for tests.
func (d *Dispatcher) MaskCount(irq int) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maskedAt[irq]
}
