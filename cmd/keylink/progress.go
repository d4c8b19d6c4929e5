package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a status line with the elapsed time while a link
// operation runs. Nothing is printed when the writer is not a terminal.
//
// Usage:
//
//	p := NewProgressPrinter(w, "Connecting to AA:BB:CC:DD:EE:01", "handshake")
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. Stop may be called any number of times.
type ProgressPrinter struct {
	w         io.Writer
	prefix    string
	phase     atomic.Value // string
	enabled   bool
	startTime time.Time
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
}

// NewProgressPrinter creates a progress printer that counts up (shows elapsed time).
func NewProgressPrinter(w io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{
		w:        w,
		prefix:   prefix,
		enabled:  isTerminal(w),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	p.startTime = time.Now()

	if !p.enabled {
		close(p.done)
		return
	}

	p.printProgress(p.phase.Load().(string), 0)
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.printProgress(p.phase.Load().(string), int(time.Since(p.startTime).Seconds()))
			}
		}
	}()
}

// SetPhase changes the phase shown in parentheses.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// printProgress displays a progress line with optional elapsed seconds
func (p *ProgressPrinter) printProgress(phase string, seconds int) {
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// Stop stops the progress display and clears the line.
// This function is safe to call multiple times and from multiple goroutines.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if !p.started.Load() {
			return
		}
		<-p.done
		if p.enabled {
			fmt.Fprint(p.w, clearLineSequence)
		}
	})
}
