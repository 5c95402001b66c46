// Package throttle implements the per-pane outbound message queue (C5):
// caps on pending items/bytes, a minimum inter-send delay, and routing of
// reserved command strings to the recovery controller.
package throttle

import (
	"log/slog"
	"sync"
	"time"
)

const (
	MaxItems   = 200
	MaxBytes   = 512 << 10
	MinDelayMs = 100

	cmdUnstick         = "(UNSTICK)"
	cmdAggressiveNudge = "(AGGRESSIVE_NUDGE)"
)

// Item is one queued outbound message.
type Item struct {
	PaneID        string
	Message       string
	DeliveryID    string
	TraceContext  map[string]string
	EnqueuedAt    time.Time
}

// InjectResult mirrors the shape inject.Controller.SendToPane reports back
// through onComplete.
type InjectResult struct {
	Success  bool
	Verified bool
	Reason   string
}

// Injector is the subset of inject.Controller the queue depends on.
type Injector interface {
	SendToPane(paneID, message string, onComplete func(InjectResult))
}

// Recovery is the subset of recovery.Controller the queue routes commands to.
type Recovery interface {
	SendUnstick(paneID string)
	AggressiveNudge(paneID string)
}

// OutcomeEmitter receives delivery outcome events, grounded on bus.Bus.Emit.
type OutcomeEmitter interface {
	EmitDeliveryAck(paneID, deliveryID string)
	EmitDeliveryOutcome(paneID, deliveryID string, accepted, verified bool, status string)
}

type paneQueue struct {
	items        []Item
	bytes        int
	processing   bool
	nextAllowed  time.Time
}

// Queue is a registry of per-pane FIFOs sharing one injector/recovery/outcome
// wiring, each created lazily on a pane's first enqueue.
type Queue struct {
	mu        sync.Mutex
	panes     map[string]*paneQueue
	injector  Injector
	recovery  Recovery
	outcome   OutcomeEmitter
	nowFunc   func() time.Time
	afterFunc func(time.Duration, func())
	log       *slog.Logger
}

func New(injector Injector, recovery Recovery, outcome OutcomeEmitter, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Queue{
		panes:     map[string]*paneQueue{},
		injector:  injector,
		recovery:  recovery,
		outcome:   outcome,
		nowFunc:   time.Now,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		log:       log,
	}
}

// SetNowFunc and SetAfterFunc let tests drive time deterministically.
func (q *Queue) SetNowFunc(f func() time.Time) { q.nowFunc = f }
func (q *Queue) SetAfterFunc(f func(time.Duration, func())) { q.afterFunc = f }

// Enqueue drops oversize messages outright, then evicts the oldest queued
// items until both caps are satisfied, then pushes and kicks off the
// processor if idle.
func (q *Queue) Enqueue(paneID, message, deliveryID string, traceContext map[string]string) {
	msgBytes := len(message)
	if msgBytes > MaxBytes {
		q.log.Warn("throttle.dropped.oversize", "paneId", paneID, "bytes", msgBytes)
		q.emitCapacityDrop(paneID, deliveryID)
		return
	}

	q.mu.Lock()
	pq := q.paneQueueLocked(paneID)
	var evictedDeliveries []string
	for len(pq.items) > 0 && (len(pq.items) >= MaxItems || pq.bytes+msgBytes > MaxBytes) {
		evicted := pq.items[0]
		pq.items = pq.items[1:]
		pq.bytes -= len(evicted.Message)
		q.log.Warn("throttle.evicted.oldest", "paneId", paneID)
		if evicted.DeliveryID != "" {
			evictedDeliveries = append(evictedDeliveries, evicted.DeliveryID)
		}
	}
	pq.items = append(pq.items, Item{
		PaneID:       paneID,
		Message:      message,
		DeliveryID:   deliveryID,
		TraceContext: traceContext,
		EnqueuedAt:   q.nowFunc(),
	})
	pq.bytes += msgBytes
	shouldStart := !pq.processing
	if shouldStart {
		pq.processing = true
	}
	q.mu.Unlock()

	for _, id := range evictedDeliveries {
		q.emitCapacityDrop(paneID, id)
	}

	if shouldStart {
		q.processNext(paneID)
	}
}

// emitCapacityDrop reports exactly one delivery outcome for an item that
// never reaches dispatch because it was dropped for capacity reasons,
// either oversize on arrival or evicted to make room for newer items.
func (q *Queue) emitCapacityDrop(paneID, deliveryID string) {
	if q.outcome == nil || deliveryID == "" {
		return
	}
	q.outcome.EmitDeliveryOutcome(paneID, deliveryID, false, false, "queue_capacity_exceeded")
}

func (q *Queue) paneQueueLocked(paneID string) *paneQueue {
	pq := q.panes[paneID]
	if pq == nil {
		pq = &paneQueue{}
		q.panes[paneID] = pq
	}
	return pq
}

func (q *Queue) processNext(paneID string) {
	q.mu.Lock()
	pq := q.panes[paneID]
	if pq == nil || len(pq.items) == 0 {
		if pq != nil {
			pq.processing = false
		}
		q.mu.Unlock()
		return
	}
	now := q.nowFunc()
	if now.Before(pq.nextAllowed) {
		wait := pq.nextAllowed.Sub(now)
		q.mu.Unlock()
		q.afterFunc(wait, func() { q.processNext(paneID) })
		return
	}
	item := pq.items[0]
	pq.items = pq.items[1:]
	pq.bytes -= len(item.Message)
	q.mu.Unlock()

	q.dispatch(item)
}

func (q *Queue) dispatch(item Item) {
	switch item.Message {
	case cmdUnstick:
		if q.recovery != nil {
			q.recovery.SendUnstick(item.PaneID)
		}
		q.finishItem(item, InjectResult{Success: true, Verified: true})
		return
	case cmdAggressiveNudge:
		if q.recovery != nil {
			q.recovery.AggressiveNudge(item.PaneID)
		}
		q.finishItem(item, InjectResult{Success: true, Verified: true})
		return
	}

	message := stripRoutingWrappers(item.Message)
	if q.injector == nil {
		q.finishItem(item, InjectResult{Success: false, Reason: "missing_injection_controller"})
		return
	}
	q.injector.SendToPane(item.PaneID, message, func(result InjectResult) {
		q.finishItem(item, result)
	})
}

func (q *Queue) finishItem(item Item, result InjectResult) {
	if q.outcome != nil && item.DeliveryID != "" {
		switch {
		case !result.Success:
			q.outcome.EmitDeliveryOutcome(item.PaneID, item.DeliveryID, false, false, "")
		case result.Verified:
			q.outcome.EmitDeliveryAck(item.PaneID, item.DeliveryID)
		default:
			q.outcome.EmitDeliveryOutcome(item.PaneID, item.DeliveryID, true, false, "accepted.unverified")
		}
	}

	q.mu.Lock()
	pq := q.paneQueueLocked(item.PaneID)
	pq.nextAllowed = q.nowFunc().Add(MinDelayMs * time.Millisecond)
	hasMore := len(pq.items) > 0
	if !hasMore {
		pq.processing = false
	}
	q.mu.Unlock()

	if hasMore {
		q.afterFunc(MinDelayMs*time.Millisecond, func() { q.processNext(item.PaneID) })
	}
}

// stripRoutingWrappers removes one "[AGENT MSG ...]" prefix, then up to
// three nested "[MSG from ...]:" prefixes.
func stripRoutingWrappers(message string) string {
	message = stripOnce(message, "[AGENT MSG", "]")
	for i := 0; i < 3; i++ {
		stripped, ok := stripPrefixWrapper(message, "[MSG from", "]:")
		if !ok {
			break
		}
		message = stripped
	}
	return message
}

func stripOnce(s, openTag, closeTag string) string {
	stripped, ok := stripPrefixWrapper(s, openTag, closeTag)
	if !ok {
		return s
	}
	return stripped
}

// stripPrefixWrapper removes a leading "<openTag> ... <closeTag>" wrapper
// (optionally followed by whitespace) if present at the start of s.
func stripPrefixWrapper(s, openTag, closeTag string) (string, bool) {
	if len(s) < len(openTag) || s[:len(openTag)] != openTag {
		return s, false
	}
	rest := s[len(openTag):]
	idx := indexOf(rest, closeTag)
	if idx < 0 {
		return s, false
	}
	trimmed := rest[idx+len(closeTag):]
	return trimLeadingSpace(trimmed), true
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func trimLeadingSpace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[i:]
}
