// Package recovery implements the stuck-pane recovery controller (C7): a
// periodic sweep over panes marked potentially stuck, escalating through a
// fixed ladder of increasingly invasive remediation steps.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	SweepInterval       = 10 * time.Second
	RestartExitIgnoreMs = 15 * time.Second
	AggressiveNudgeGapMs = 150 * time.Millisecond
)

// stuckRecord is a potentially-stuck pane's escalation bookkeeping.
type stuckRecord struct {
	firstStuckAt   time.Time
	lastActionAt   time.Time
	escalationLevel int
}

// Terminal is the pane-facing surface recovery escalates through.
type Terminal interface {
	Write(paneID string, data []byte) error
	SendUnstickKeys(paneID string) error
	RestartPane(paneID string) error
}

// FreshStarter recreates every pane from scratch (C9's FreshStartAll).
type FreshStarter interface {
	FreshStartAll(ctx context.Context) error
}

// AuditSink records each escalation step for debug-replay, grounded on the
// teacher's journal persistence idiom.
type AuditSink interface {
	RecordEscalation(paneID string, level int, step string, at time.Time)
}

type Controller struct {
	mu     sync.Mutex
	stuck  map[string]*stuckRecord
	term   Terminal
	fresh  FreshStarter
	audit  AuditSink
	nowFunc   func() time.Time
	afterFunc func(time.Duration, func())
	log    *slog.Logger
}

func New(term Terminal, fresh FreshStarter, audit AuditSink, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		stuck:     map[string]*stuckRecord{},
		term:      term,
		fresh:     fresh,
		audit:     audit,
		nowFunc:   time.Now,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		log:       log,
	}
}

func (c *Controller) SetNowFunc(f func() time.Time)               { c.nowFunc = f }
func (c *Controller) SetAfterFunc(f func(time.Duration, func())) { c.afterFunc = f }

// MarkStuck records a send that completed without verification and no
// subsequent output.
func (c *Controller) MarkStuck(paneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	r := c.stuck[paneID]
	if r == nil {
		c.stuck[paneID] = &stuckRecord{firstStuckAt: now, lastActionAt: now}
	}
}

// ClearStuck resets escalation on any meaningful PTY output for paneID.
func (c *Controller) ClearStuck(paneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stuck, paneID)
}

// EscalationLevel reports the current escalation level for a pane (0 if
// not tracked as stuck).
func (c *Controller) EscalationLevel(paneID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r := c.stuck[paneID]; r != nil {
		return r.escalationLevel
	}
	return 0
}

// Sweep runs one pass over every tracked pane, advancing its escalation
// step, every SweepInterval (the first pass after one interval) until ctx
// is cancelled.
func (c *Controller) Sweep(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce(ctx)
		}
	}
}

func (c *Controller) sweepOnce(ctx context.Context) {
	c.mu.Lock()
	paneIDs := make([]string, 0, len(c.stuck))
	for id := range c.stuck {
		paneIDs = append(paneIDs, id)
	}
	c.mu.Unlock()

	for _, paneID := range paneIDs {
		c.escalate(ctx, paneID)
	}
}

func (c *Controller) escalate(ctx context.Context, paneID string) {
	c.mu.Lock()
	r := c.stuck[paneID]
	if r == nil {
		c.mu.Unlock()
		return
	}
	r.escalationLevel++
	level := r.escalationLevel
	r.lastActionAt = c.nowFunc()
	c.mu.Unlock()

	switch level {
	case 1:
		c.nudge(paneID)
	case 2:
		c.aggressiveNudge(paneID)
	case 3:
		c.sendUnstick(paneID)
	case 4:
		c.restartPane(paneID)
	default:
		c.freshStartAll(ctx)
	}
}

// SendUnstick and AggressiveNudge are the throttle-routed entrypoints for
// the "(UNSTICK)"/"(AGGRESSIVE_NUDGE)" commands, jumping straight to a
// specific ladder step without going through escalate's level counter.
func (c *Controller) SendUnstick(paneID string) {
	c.sendUnstick(paneID)
}

func (c *Controller) AggressiveNudge(paneID string) {
	c.aggressiveNudge(paneID)
}

func (c *Controller) nudge(paneID string) {
	c.audit1(paneID, 1, "nudge")
	if c.term != nil {
		c.term.Write(paneID, []byte("\r"))
	}
}

func (c *Controller) aggressiveNudge(paneID string) {
	c.audit1(paneID, 2, "aggressiveNudge")
	if c.term == nil {
		return
	}
	c.term.Write(paneID, []byte{0x1B})
	c.afterFunc(AggressiveNudgeGapMs, func() {
		c.term.Write(paneID, []byte("\r"))
	})
}

func (c *Controller) sendUnstick(paneID string) {
	c.audit1(paneID, 3, "sendUnstick")
	if c.term != nil {
		c.term.SendUnstickKeys(paneID)
	}
}

func (c *Controller) restartPane(paneID string) {
	c.audit1(paneID, 4, "restartPane")
	if c.term != nil {
		c.term.RestartPane(paneID)
	}
}

func (c *Controller) freshStartAll(ctx context.Context) {
	c.audit1("", 5, "freshStartAll")
	if c.fresh != nil {
		c.fresh.FreshStartAll(ctx)
	}
	c.mu.Lock()
	c.stuck = map[string]*stuckRecord{}
	c.mu.Unlock()
}

func (c *Controller) audit1(paneID string, level int, step string) {
	if c.audit != nil {
		c.audit.RecordEscalation(paneID, level, step, c.nowFunc())
	}
	c.log.Info("recovery.escalation", "paneId", paneID, "level", level, "step", step)
}
