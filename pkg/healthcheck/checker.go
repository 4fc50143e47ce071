/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-08

This file defines the core interfaces and structures for verification checks. It includes:

- The Check interface that all checks implement
- BaseCheck structure providing the identity of a check
- Result structure for storing check results with recommendations and metadata

Checks verify what the install commands left behind: operators, Central,
the secured cluster, certificates, compliance scans and metrics.
*/

package healthcheck

import (
	"context"
	"fmt"
	"time"

	"github.com/ayaseen/rhacs-runner/pkg/types"
)

// BaseCheck provides the identity shared by every check
type BaseCheck struct {
	id          string
	name        string
	description string
	category    types.Category
}

// ID returns the unique identifier for the check
func (b *BaseCheck) ID() string {
	return b.id
}

// Name returns the human-readable name for the check
func (b *BaseCheck) Name() string {
	return b.name
}

// Description returns a description of what the check does
func (b *BaseCheck) Description() string {
	return b.description
}

// Category returns the category the check belongs to
func (b *BaseCheck) Category() types.Category {
	return b.category
}

// NewBaseCheck creates a new BaseCheck
func NewBaseCheck(id, name, description string, category types.Category) BaseCheck {
	return BaseCheck{
		id:          id,
		name:        name,
		description: description,
		category:    category,
	}
}

// Result represents the result of a check
type Result struct {
	// CheckID is the unique identifier of the check
	CheckID string

	// Status indicates the result status (OK, Warning, Critical, etc.)
	Status types.Status

	// Message is a brief description of the result
	Message string

	// ResultKey indicates the importance of the result in a report
	ResultKey types.ResultKey

	// Detail provides detailed information about the result
	Detail string

	// Recommendations are suggestions to address any issues
	Recommendations []string

	// ExecutionTime is how long the check took to run
	ExecutionTime time.Duration

	// Metadata is additional contextual information
	Metadata map[string]string
}

// NewResult creates a new Result
func NewResult(checkID string, status types.Status, message string, resultKey types.ResultKey) Result {
	return Result{
		CheckID:         checkID,
		Status:          status,
		Message:         message,
		ResultKey:       resultKey,
		Recommendations: []string{},
		Metadata:        make(map[string]string),
	}
}

// OK is a passing result
func OK(checkID, format string, args ...interface{}) Result {
	return NewResult(checkID, types.StatusOK, fmt.Sprintf(format, args...), types.ResultKeyNoChange)
}

// Warning is a result that needs attention
func Warning(checkID, format string, args ...interface{}) Result {
	return NewResult(checkID, types.StatusWarning, fmt.Sprintf(format, args...), types.ResultKeyRecommended)
}

// Critical is a failing result
func Critical(checkID, format string, args ...interface{}) Result {
	return NewResult(checkID, types.StatusCritical, fmt.Sprintf(format, args...), types.ResultKeyRequired)
}

// AddRecommendation adds a recommendation to the result
func (r *Result) AddRecommendation(recommendation string) {
	r.Recommendations = append(r.Recommendations, recommendation)
}

// AddMetadata adds or updates metadata in the result
func (r *Result) AddMetadata(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// WithDetail returns a copy of the result with detail set
func (r Result) WithDetail(detail string) Result {
	r.Detail = detail
	return r
}

// WithExecutionTime returns a copy of the result with the execution time set
func (r Result) WithExecutionTime(duration time.Duration) Result {
	r.ExecutionTime = duration
	return r
}

// Failed reports whether the result should fail the verify command
func (r Result) Failed() bool {
	return r.Status == types.StatusCritical
}

// Check defines the interface for a check
type Check interface {
	types.Check

	// Run executes the check. A returned error means the check itself could
	// not run; the result still describes what was observed.
	Run(ctx context.Context) (Result, error)
}
