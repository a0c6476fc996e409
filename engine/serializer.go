package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

const serializerQueueSize = 64

type serialJob struct {
	fn   func()
	done chan error
}

// Serializer runs the jobs submitted for one table one at a time, in arrival
// order, on a dedicated goroutine. Jobs must not call Do on the same
// serializer.
type Serializer struct {
	jobs    chan serialJob
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
	onPanic func(recovered interface{})
	logger  zerolog.Logger
}

// NewSerializer starts the worker goroutine. onPanic runs on the worker after
// a job panics, before the next job starts.
func NewSerializer(logger zerolog.Logger, onPanic func(recovered interface{})) *Serializer {
	s := &Serializer{
		jobs:    make(chan serialJob, serializerQueueSize),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		onPanic: onPanic,
		logger:  logger,
	}
	go s.run()
	return s
}

func (s *Serializer) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.quit:
			return
		case j := <-s.jobs:
			j.done <- s.exec(j.fn)
		}
	}
}

func (s *Serializer) exec(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("table job panicked")
			err = fmt.Errorf("table job panicked: %v", r)
			if s.onPanic != nil {
				s.onPanic(r)
			}
		}
	}()
	fn()
	return nil
}

// Do queues fn and waits for it to finish. If ctx ends after fn was queued,
// fn still runs but Do returns early.
func (s *Serializer) Do(ctx context.Context, fn func()) error {
	j := serialJob{fn: fn, done: make(chan error, 1)}
	select {
	case <-s.quit:
		return ErrTableClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.jobs <- j:
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		select {
		case err := <-j.done:
			return err
		default:
			return ErrTableClosed
		}
	}
}

// Close stops the worker after the job in flight. Queued jobs are abandoned
// and their callers receive ErrTableClosed.
func (s *Serializer) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.stopped
}

func (s *Serializer) Closed() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}
