// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package player runs the playback supervisors: ConcatPlayer for video strips
// and AudioPlayer for audio mode.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/metrics"
)

// State is the externally visible player state.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDegraded State = "degraded"
	StateStopped  State = "stopped"
)

var allStates = []string{
	string(StateIdle), string(StateStarting), string(StateRunning),
	string(StateDegraded), string(StateStopped),
}

// transitions lists the legal edges. Stopped is reachable from every state.
var transitions = map[State][]State{
	StateIdle:     {StateStarting},
	StateStarting: {StateRunning, StateDegraded},
	StateRunning:  {StateStarting, StateDegraded},
	StateDegraded: {StateStarting},
	StateStopped:  {StateStarting},
}

func validTransition(from, to State) bool {
	if to == StateStopped || from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	// ErrAlreadyRunning is returned by Start while a loop is active.
	ErrAlreadyRunning = errors.New("player already running")
	// ErrNoMedia means no recognized media appeared within the empty timeout.
	ErrNoMedia = errors.New("no recognized media found")
)

// TransitionFunc observes state changes.
type TransitionFunc func(from, to State)

// lifecycle is the run/stop scaffolding shared by both players. One goroutine
// runs the loop; Stop cancels it and waits for teardown.
type lifecycle struct {
	name   string
	logger zerolog.Logger

	mu           sync.Mutex
	state        State
	err          error
	cancel       context.CancelFunc
	done         chan struct{}
	onTransition TransitionFunc
}

func (l *lifecycle) init(name string, logger zerolog.Logger) {
	l.name = name
	l.logger = logger
	l.state = StateIdle
	metrics.SetPlayerState(name, allStates, string(StateIdle))
}

// State returns the current state.
func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Active reports whether a loop is running (Starting, Running or Degraded).
func (l *lifecycle) Active() bool {
	switch l.State() {
	case StateStarting, StateRunning, StateDegraded:
		return true
	default:
		return false
	}
}

// Err returns the fatal error that stopped the last loop, if any.
func (l *lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done is closed when the current loop has ended. It is nil before the first Start.
func (l *lifecycle) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// OnTransition registers an observer; it is called outside the state lock.
func (l *lifecycle) OnTransition(fn TransitionFunc) {
	l.mu.Lock()
	l.onTransition = fn
	l.mu.Unlock()
}

func (l *lifecycle) setState(to State) {
	l.mu.Lock()
	from := l.state
	if from == to {
		l.mu.Unlock()
		return
	}
	if !validTransition(from, to) {
		l.mu.Unlock()
		l.logger.Error().Str("from", string(from)).Str("to", string(to)).Msg("invalid player transition ignored")
		return
	}
	l.state = to
	fn := l.onTransition
	l.mu.Unlock()

	metrics.SetPlayerState(l.name, allStates, string(to))
	l.logger.Info().
		Str("event", "player.state").
		Str(xglog.FieldOldState, string(from)).
		Str(xglog.FieldNewState, string(to)).
		Msg("player state changed")
	if fn != nil {
		fn(from, to)
	}
}

// launch enters Starting and runs loop in its own goroutine. The loop outlives
// the caller's context; only Stop ends it.
func (l *lifecycle) launch(ctx context.Context, loop func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.done != nil {
		select {
		case <-l.done:
		default:
			l.mu.Unlock()
			return ErrAlreadyRunning
		}
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.err = nil
	l.mu.Unlock()

	l.setState(StateStarting)

	go func() {
		defer close(done)
		err := loop(runCtx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		l.setState(StateStopped)
		if err != nil {
			l.logger.Error().Err(err).Str("event", "player.fatal").Msg("player stopped on error")
		}
		cancel()
	}()
	return nil
}

// Stop ends the loop and blocks until every child process is torn down.
// It is idempotent and safe from any state.
func (l *lifecycle) Stop() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		l.setState(StateStopped)
		return nil
	}
	cancel()
	<-done
	return nil
}

func (l *lifecycle) String() string {
	return fmt.Sprintf("%s(%s)", l.name, l.State())
}
