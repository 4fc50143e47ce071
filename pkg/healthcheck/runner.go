/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-08

This file implements the runner for verification checks. It:

- Runs the registered checks one after another in registration order
- Bounds every check with its own timeout
- Filters checks by category
- Shows a progress bar while the checks run
*/

package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ayaseen/rhacs-runner/pkg/types"
)

// Config defines the configuration for the runner
type Config struct {
	// CategoryFilter limits checks to specific categories
	CategoryFilter []types.Category

	// Timeout is the maximum time allowed for a single check
	Timeout time.Duration

	// SkipProgressBar indicates whether to skip the progress bar
	SkipProgressBar bool

	// FailFast stops execution after the first critical result
	FailFast bool

	// Out receives the progress bar, os.Stderr when nil
	Out io.Writer
}

// Runner executes checks and collects results
type Runner struct {
	checks  []Check
	ran     []Check
	config  Config
	results map[string]Result
}

// NewRunner creates a new runner
func NewRunner(config Config) *Runner {
	if config.Out == nil {
		config.Out = os.Stderr
	}
	return &Runner{
		config:  config,
		results: make(map[string]Result),
	}
}

// AddCheck adds a check to the runner
func (r *Runner) AddCheck(check Check) {
	r.checks = append(r.checks, check)
}

// AddChecks adds multiple checks to the runner
func (r *Runner) AddChecks(checks []Check) {
	for _, check := range checks {
		r.AddCheck(check)
	}
}

// GetChecks returns the checks that ran, in order
func (r *Runner) GetChecks() []Check {
	return r.ran
}

// Run executes the registered checks that match the category filter
func (r *Runner) Run(ctx context.Context) error {
	if len(r.checks) == 0 {
		return fmt.Errorf("no checks registered")
	}

	var checksToRun []Check
	for _, check := range r.checks {
		if r.selected(check) {
			checksToRun = append(checksToRun, check)
		}
	}
	if len(checksToRun) == 0 {
		return fmt.Errorf("no checks match the specified categories")
	}

	var bar *progressbar.ProgressBar
	if !r.config.SkipProgressBar {
		bar = progressbar.NewOptions(len(checksToRun),
			progressbar.OptionSetWriter(r.config.Out),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(50),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("Verifying"),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerPadding: " ",
				BarStart:      "|",
				BarEnd:        "|",
			}),
		)
	}

	r.ran = nil
	for _, check := range checksToRun {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, _ := r.runCheck(ctx, check)
		r.results[check.ID()] = result
		r.ran = append(r.ran, check)

		if bar != nil {
			_ = bar.Add(1)
		}

		if r.config.FailFast && result.Failed() {
			break
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return nil
}

func (r *Runner) selected(check Check) bool {
	if len(r.config.CategoryFilter) == 0 {
		return true
	}
	for _, cat := range r.config.CategoryFilter {
		if cat == check.Category() {
			return true
		}
	}
	return false
}

// runCheck executes a single check under the configured timeout
func (r *Runner) runCheck(ctx context.Context, check Check) (Result, error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := check.Run(ctx)
	if err != nil {
		msg := fmt.Sprintf("Check failed: %v", err)
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "Check timed out"
		}
		if result.CheckID == "" {
			result = NewResult(check.ID(), types.StatusCritical, msg, types.ResultKeyRequired)
		}
		if result.Detail == "" {
			result.Detail = err.Error()
		}
	}
	if result.CheckID == "" {
		result.CheckID = check.ID()
	}
	return result.WithExecutionTime(time.Since(start)), err
}

// GetResults returns all results keyed by check id
func (r *Runner) GetResults() map[string]Result {
	return r.results
}

// Result returns the result of the check with id
func (r *Runner) Result(id string) (Result, bool) {
	result, ok := r.results[id]
	return result, ok
}

// GetResultsByCategory returns results grouped by category, in run order
func (r *Runner) GetResultsByCategory() map[types.Category][]Result {
	resultsByCategory := make(map[types.Category][]Result)
	for _, check := range r.ran {
		if result, exists := r.results[check.ID()]; exists {
			resultsByCategory[check.Category()] = append(resultsByCategory[check.Category()], result)
		}
	}
	return resultsByCategory
}

// CountByStatus returns the count of results by status
func (r *Runner) CountByStatus() map[types.Status]int {
	counts := make(map[types.Status]int)
	for _, check := range r.ran {
		if result, exists := r.results[check.ID()]; exists {
			counts[result.Status]++
		}
	}
	return counts
}

// Failed reports whether any check produced a critical result
func (r *Runner) Failed() bool {
	return r.CountByStatus()[types.StatusCritical] > 0
}

// checkName returns the name of the check with id
func (r *Runner) checkName(id string) string {
	for _, check := range r.ran {
		if check.ID() == id {
			return check.Name()
		}
	}
	return id
}
