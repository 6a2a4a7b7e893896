// Package watcher reads a child process's output line by line on its own
// goroutine and reports the first line that satisfies a Matcher.
//
// A watch delivers exactly one Result. Whatever the outcome, the goroutine
// keeps reading the stream until EOF and discards what it reads: a child
// whose stdout or stderr pipe fills up blocks on write, so a stream nobody
// reads eventually wedges the process.
package watcher

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// maxLineBytes bounds a single scanned line.
const maxLineBytes = 1024 * 1024

// Kind classifies how a watch ended.
type Kind int

const (
	Matched Kind = iota
	Timeout
	StreamClosed
	Canceled
)

func (k Kind) String() string {
	switch k {
	case Matched:
		return "matched"
	case Timeout:
		return "timeout"
	case StreamClosed:
		return "stream closed"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Result is the single value a watch delivers.
type Result struct {
	Kind  Kind
	Value string
	// Err carries the read error for StreamClosed, or ctx.Err for Canceled.
	Err error
}

// Option configures a watch.
type Option func(*options)

type options struct {
	onLine func(string)
}

// WithLineFunc calls fn with every line read, before and after delivery.
// fn runs on the watch goroutine and must not block.
func WithLineFunc(fn func(line string)) Option {
	return func(o *options) { o.onLine = fn }
}

// Watch starts reading r and returns a channel that receives exactly one
// Result: the first match, a timeout (when timeout > 0), a cancellation, or
// StreamClosed if r ends first. The channel is buffered, so the watch never
// blocks on an absent receiver.
func Watch(ctx context.Context, r io.Reader, m Matcher, timeout time.Duration, opts ...Option) <-chan Result {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	d := &delivery{ch: make(chan Result, 1)}

	var timer *time.Timer
	if timeout > 0 {
		timer = time.AfterFunc(timeout, func() { d.send(Result{Kind: Timeout}) })
	}
	stopCtx := context.AfterFunc(ctx, func() { d.send(Result{Kind: Canceled, Err: ctx.Err()}) })

	go func() {
		defer stopCtx()
		if timer != nil {
			defer timer.Stop()
		}
		err := scanLines(r, func(line string) {
			if o.onLine != nil {
				o.onLine(line)
			}
			if m == nil || d.delivered() {
				return
			}
			if v, ok := m.Match(line); ok {
				d.send(Result{Kind: Matched, Value: v})
			}
		})
		d.send(Result{Kind: StreamClosed, Err: err})
	}()
	return d.ch
}

// Drain reads r to EOF on its own goroutine, passing lines to any
// WithLineFunc option. The returned channel closes when r is exhausted.
func Drain(r io.Reader, opts ...Option) <-chan struct{} {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = scanLines(r, func(line string) {
			if o.onLine != nil {
				o.onLine(line)
			}
		})
	}()
	return done
}

// scanLines feeds each line of r to fn until EOF. Overlong lines stop the
// scanner but not the read: the rest of the stream is discarded so the
// writer never stalls. The returned error is nil on a clean EOF.
func scanLines(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		fn(sc.Text())
	}
	err := sc.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

type delivery struct {
	once sync.Once
	done atomic.Bool
	ch   chan Result
}

func (d *delivery) send(r Result) {
	d.once.Do(func() {
		d.done.Store(true)
		d.ch <- r
	})
}

func (d *delivery) delivered() bool { return d.done.Load() }
