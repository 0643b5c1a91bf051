package xport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/trickstertwo/xlog"
)

// Stage is where one adapter is in the startup sequence.
type Stage uint8

const (
	StageUnconfigured Stage = iota
	StageResolving
	StageResolved
	StageSetUp
	StageWired
	StageRunning
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageUnconfigured:
		return "unconfigured"
	case StageResolving:
		return "resolving"
	case StageResolved:
		return "resolved"
	case StageSetUp:
		return "set_up"
	case StageWired:
		return "wired"
	case StageRunning:
		return "running"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// ErrInvalidTransition is returned when a stage would move backwards or out of Failed.
var ErrInvalidTransition = errors.New("xport: invalid startup transition")

type cleanup struct {
	tag Tag
	fn  func(ctx context.Context) error
}

// Startup tracks every adapter through the startup sequence. Stages only move forward;
// Failed is terminal. Cleanups registered with OnRollback run in reverse order when
// startup is abandoned.
type Startup struct {
	mu       sync.Mutex
	logger   *xlog.Logger
	stages   map[Tag]Stage
	order    []Tag
	cleanups []cleanup
}

func NewStartup(logger *xlog.Logger) *Startup {
	if logger == nil {
		logger = xlog.Default()
	}
	return &Startup{logger: logger, stages: map[Tag]Stage{}}
}

// Advance moves tag to next. Skipping stages is allowed (a sender has no SetUp),
// going back is not.
func (s *Startup) Advance(tag Tag, next Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, seen := s.stages[tag]
	if !seen {
		s.order = append(s.order, tag)
	}
	if current == StageFailed || next == StageFailed || next <= current {
		return fmt.Errorf("%w: %s from %s to %s", ErrInvalidTransition, tag, current, next)
	}
	s.stages[tag] = next
	s.logger.Debug().Str("adapter", tag.String()).Str("stage", next.String()).Msg("xport: startup")
	return nil
}

// Fail marks tag as failed and returns err annotated with the stage it failed in.
func (s *Startup) Fail(tag Tag, err error) error {
	s.mu.Lock()
	current, seen := s.stages[tag]
	if !seen {
		s.order = append(s.order, tag)
	}
	s.stages[tag] = StageFailed
	s.mu.Unlock()

	s.logger.Error().Err(err).Str("adapter", tag.String()).Str("stage", current.String()).Msg("xport: startup failed")
	return fmt.Errorf("xport: %s failed while %s: %w", tag, current, err)
}

// Stage returns the current stage of tag; unknown tags are Unconfigured.
func (s *Startup) Stage(tag Tag) Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stages[tag]
}

// Stages returns a snapshot of every tracked adapter.
func (s *Startup) Stages() map[Tag]Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Tag]Stage, len(s.stages))
	for k, v := range s.stages {
		out[k] = v
	}
	return out
}

// OnRollback registers fn to release tag if startup is abandoned or shut down.
func (s *Startup) OnRollback(tag Tag, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.cleanups = append(s.cleanups, cleanup{tag: tag, fn: fn})
	s.mu.Unlock()
}

// Rollback runs every registered cleanup once, newest first, and marks each adapter
// that was not already failed as failed. Cleanup errors are joined.
func (s *Startup) Rollback(ctx context.Context) error {
	s.mu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	for _, tag := range s.order {
		s.stages[tag] = StageFailed
	}
	s.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]
		if err := c.fn(ctx); err != nil {
			s.logger.Warn().Err(err).Str("adapter", c.tag.String()).Msg("xport: release failed")
			errs = append(errs, fmt.Errorf("release %s: %w", c.tag, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown runs the cleanups like Rollback but for a clean stop: stages are left as
// they are.
func (s *Startup) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", cleanups[i].tag, err))
		}
	}
	return errors.Join(errs...)
}
