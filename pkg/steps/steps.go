// Package steps runs a command as an ordered list of named steps that stops
// at the first failure.
package steps

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/ayaseen/rhacs-runner/pkg/log"
)

// Step is one unit of work in a command
type Step interface {
	Run(ctx context.Context, log *log.Logger) error
	String() string
}

// ActionFunc performs a task
type ActionFunc func(ctx context.Context) error

// ConditionFunc reports whether the awaited state has been reached and
// describes the state observed
type ConditionFunc func(ctx context.Context) (done bool, state string, err error)

// Action returns a Step running f once
func Action(name string, f ActionFunc) Step {
	return actionStep{name: name, f: f}
}

type actionStep struct {
	name string
	f    ActionFunc
}

func (s actionStep) Run(ctx context.Context, _ *log.Logger) error {
	return s.f(ctx)
}

func (s actionStep) String() string {
	return s.name
}

// Condition returns a Step polling f every interval until it returns true,
// fails or the timeout passes.
func Condition(name string, f ConditionFunc, interval, timeout time.Duration) Step {
	return conditionStep{name: name, f: f, interval: interval, timeout: timeout}
}

type conditionStep struct {
	name     string
	f        ConditionFunc
	interval time.Duration
	timeout  time.Duration
}

func (s conditionStep) Run(ctx context.Context, logger *log.Logger) error {
	var last string
	err := wait.PollUntilContextTimeout(ctx, s.interval, s.timeout, true, func(ctx context.Context) (bool, error) {
		done, state, err := s.f(ctx)
		if state != "" {
			last = state
		}
		if err == nil && !done {
			logger.Debug("%s: %s, retrying in %s", s.name, state, s.interval)
		}
		return done, err
	})
	if err != nil && wait.Interrupted(err) && ctx.Err() == nil {
		if last == "" {
			return fmt.Errorf("%s: timed out after %s", s.name, s.timeout)
		}
		return fmt.Errorf("%s: timed out after %s (last state: %s)", s.name, s.timeout, last)
	}
	return err
}

func (s conditionStep) String() string {
	return s.name
}

// Run executes the steps in order and returns the error of the first failing
// step. Each step is announced and its duration logged.
func Run(ctx context.Context, logger *log.Logger, steps []Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted before step %s: %w", step, err)
		}

		logger.Step("[%d/%d] %s", i+1, len(steps), step)
		start := time.Now()

		if err := step.Run(ctx, logger); err != nil {
			logger.Error("step %s failed: %v", step, err)
			return &Error{Step: step.String(), Err: err}
		}
		logger.Debug("step %s took %s", step, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// Error wraps the failure of a step
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
