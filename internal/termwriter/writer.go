// Package termwriter implements the flow-controlled terminal writer (C2):
// serialized, bytes-in-flight-bounded writes to a renderer, with
// watermark-driven PTY producer pause/resume.
package termwriter

import (
	"log/slog"
	"sync"
)

const (
	// TerminalQueueMaxBytes bounds how much unflushed data a pane's queue
	// may hold before incoming or oldest items are dropped.
	TerminalQueueMaxBytes = 2 << 20 // 2 MiB
	// HighWatermark is the queued-byte level above which the PTY producer
	// is asked to pause.
	HighWatermark = 500 << 10 // 500 KiB
	// LowWatermark is the queued-byte level below which a paused producer
	// is resumed.
	LowWatermark = 50 << 10 // 50 KiB
)

// Renderer is the external write callback contract (§6.1): data is handed
// over and onFlushed is invoked once the renderer has consumed it.
type Renderer interface {
	Write(paneID string, data []byte, onFlushed func())
}

// PTYControl is the advisory backpressure contract the writer calls into.
type PTYControl interface {
	Pause(paneID string)
	Resume(paneID string)
}

type chunk struct {
	data    []byte
	byteLen int
}

type paneFlow struct {
	mu             sync.Mutex
	queue          []chunk
	writing        bool
	watermarkBytes int
	producerPaused bool
}

// Writer owns one paneFlow per pane and drains it against a Renderer,
// calling PTYControl for watermark-driven pause/resume.
type Writer struct {
	mu       sync.Mutex
	flows    map[string]*paneFlow
	renderer Renderer
	pty      PTYControl
	log      *slog.Logger
}

func New(renderer Renderer, pty PTYControl, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Writer{
		flows:    map[string]*paneFlow{},
		renderer: renderer,
		pty:      pty,
		log:      log,
	}
}

func (w *Writer) flowFor(paneID string) *paneFlow {
	w.mu.Lock()
	defer w.mu.Unlock()
	f := w.flows[paneID]
	if f == nil {
		f = &paneFlow{}
		w.flows[paneID] = f
	}
	return f
}

// Write enqueues data for paneID, applying the drop-oldest-when-full rule
// and the high/low watermark pause/resume signals, then drains
// asynchronously if not already draining.
func (w *Writer) Write(paneID string, data []byte) {
	if len(data) == 0 {
		return
	}
	f := w.flowFor(paneID)

	f.mu.Lock()
	byteLen := len(data)
	if f.watermarkBytes+byteLen > TerminalQueueMaxBytes {
		for len(f.queue) > 0 && f.watermarkBytes+byteLen > TerminalQueueMaxBytes {
			dropped := f.queue[0]
			f.queue = f.queue[1:]
			f.watermarkBytes -= dropped.byteLen
			w.log.Warn("termwriter dropped oldest queued chunk", "pane", paneID, "bytes", dropped.byteLen)
		}
		if f.watermarkBytes+byteLen > TerminalQueueMaxBytes {
			w.log.Warn("termwriter dropped incoming chunk, queue already at cap", "pane", paneID, "bytes", byteLen)
			f.mu.Unlock()
			return
		}
	}

	f.queue = append(f.queue, chunk{data: data, byteLen: byteLen})
	f.watermarkBytes += byteLen

	if f.watermarkBytes > HighWatermark && !f.producerPaused {
		f.producerPaused = true
		if w.pty != nil {
			w.pty.Pause(paneID)
		}
	}

	shouldDrain := !f.writing
	if shouldDrain {
		f.writing = true
	}
	f.mu.Unlock()

	if shouldDrain {
		w.drain(paneID, f)
	}
}

func (w *Writer) drain(paneID string, f *paneFlow) {
	f.mu.Lock()
	if len(f.queue) == 0 {
		f.writing = false
		f.mu.Unlock()
		return
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	f.mu.Unlock()

	w.renderer.Write(paneID, next.data, func() {
		f.mu.Lock()
		f.watermarkBytes -= next.byteLen
		if f.watermarkBytes < 0 {
			f.watermarkBytes = 0
		}
		if f.producerPaused && f.watermarkBytes < LowWatermark {
			f.producerPaused = false
			if w.pty != nil {
				w.pty.Resume(paneID)
			}
		}
		more := len(f.queue) > 0
		if !more {
			f.writing = false
		}
		f.mu.Unlock()

		if more {
			w.drain(paneID, f)
		}
	})
}

// WatermarkBytes reports the current queued-byte count for paneID.
func (w *Writer) WatermarkBytes(paneID string) int {
	f := w.flowFor(paneID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermarkBytes
}

// ProducerPaused reports whether paneID's producer is currently paused.
func (w *Writer) ProducerPaused(paneID string) bool {
	f := w.flowFor(paneID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.producerPaused
}
