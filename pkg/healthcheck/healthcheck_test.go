package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayaseen/rhacs-runner/pkg/types"
)

type fakeCheck struct {
	BaseCheck
	run   func(ctx context.Context) (Result, error)
	calls int
}

func (f *fakeCheck) Run(ctx context.Context) (Result, error) {
	f.calls++
	return f.run(ctx)
}

func newFake(id string, category types.Category, run func(ctx context.Context) (Result, error)) *fakeCheck {
	return &fakeCheck{BaseCheck: NewBaseCheck(id, "Check "+id, "Checks "+id, category), run: run}
}

func fixed(status types.Status, message string) func(ctx context.Context) (Result, error) {
	return func(context.Context) (Result, error) {
		r := NewResult("", status, message, types.ResultKeyNoChange)
		if status != types.StatusOK {
			r.AddRecommendation("fix " + message)
		}
		return r, nil
	}
}

func newTestRunner(cfg Config) *Runner {
	cfg.SkipProgressBar = true
	return NewRunner(cfg)
}

func ids(checks []Check) []string {
	var out []string
	for _, c := range checks {
		out = append(out, c.ID())
	}
	return out
}

func TestRunnerRunsChecksInOrder(t *testing.T) {
	r := newTestRunner(Config{})
	r.AddChecks([]Check{
		newFake("a", types.CategoryOperators, fixed(types.StatusOK, "fine")),
		newFake("b", types.CategoryCentral, fixed(types.StatusWarning, "meh")),
		newFake("c", types.CategoryCentral, fixed(types.StatusCritical, "broken")),
	})

	require.NoError(t, r.Run(context.Background()))

	if diff := cmp.Diff([]string{"a", "b", "c"}, ids(r.GetChecks())); diff != "" {
		t.Errorf("checks ran in wrong order (-want +got):\n%s", diff)
	}

	result, ok := r.Result("b")
	require.True(t, ok)
	assert.Equal(t, "b", result.CheckID)
	assert.Equal(t, types.StatusWarning, result.Status)

	assert.Equal(t, map[types.Status]int{types.StatusOK: 1, types.StatusWarning: 1, types.StatusCritical: 1}, r.CountByStatus())
	assert.True(t, r.Failed())
	assert.Len(t, r.GetResultsByCategory()[types.CategoryCentral], 2)
}

func TestRunnerCategoryFilter(t *testing.T) {
	r := newTestRunner(Config{CategoryFilter: []types.Category{types.CategoryCompliance}})
	skipped := newFake("a", types.CategoryOperators, fixed(types.StatusOK, "fine"))
	r.AddCheck(skipped)
	r.AddCheck(newFake("b", types.CategoryCompliance, fixed(types.StatusOK, "fine")))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"b"}, ids(r.GetChecks()))
	assert.Zero(t, skipped.calls)
	assert.False(t, r.Failed())

	r = newTestRunner(Config{CategoryFilter: []types.Category{types.CategoryMonitoring}})
	r.AddCheck(newFake("a", types.CategoryOperators, fixed(types.StatusOK, "fine")))
	assert.Error(t, r.Run(context.Background()))
}

func TestRunnerNoChecks(t *testing.T) {
	assert.Error(t, newTestRunner(Config{}).Run(context.Background()))
}

func TestRunnerFailFast(t *testing.T) {
	r := newTestRunner(Config{FailFast: true})
	last := newFake("c", types.CategoryCentral, fixed(types.StatusOK, "fine"))
	r.AddChecks([]Check{
		newFake("a", types.CategoryCentral, fixed(types.StatusWarning, "meh")),
		newFake("b", types.CategoryCentral, fixed(types.StatusCritical, "broken")),
		last,
	})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"a", "b"}, ids(r.GetChecks()))
	assert.Zero(t, last.calls)
}

func TestRunnerCheckErrors(t *testing.T) {
	r := newTestRunner(Config{Timeout: 10 * time.Millisecond})
	r.AddCheck(newFake("err", types.CategoryCentral, func(context.Context) (Result, error) {
		return Result{}, errors.New("connection refused")
	}))
	r.AddCheck(newFake("slow", types.CategoryCentral, func(ctx context.Context) (Result, error) {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}))

	require.NoError(t, r.Run(context.Background()))

	result, _ := r.Result("err")
	assert.Equal(t, types.StatusCritical, result.Status)
	assert.Equal(t, "Check failed: connection refused", result.Message)

	result, _ = r.Result("slow")
	assert.Equal(t, types.StatusCritical, result.Status)
	assert.Equal(t, "Check timed out", result.Message)
	assert.Equal(t, "slow", result.CheckID)
}

func TestRunnerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newTestRunner(Config{})
	check := newFake("a", types.CategoryCentral, fixed(types.StatusOK, "fine"))
	r.AddCheck(check)

	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	assert.Zero(t, check.calls)
}

func ranRunner(t *testing.T) *Runner {
	t.Helper()
	r := newTestRunner(Config{})
	r.AddChecks([]Check{
		newFake("operator-rhacs-operator", types.CategoryOperators, fixed(types.StatusOK, "rhacs-operator.v4.7.2 is Succeeded")),
		newFake("central-api", types.CategoryCentral, fixed(types.StatusCritical, "Central | down")),
		newFake("compliance-suite", types.CategoryCompliance, fixed(types.StatusWarning, "Scan rhacs-cis-weekly is NON-COMPLIANT")),
	})
	require.NoError(t, r.Run(context.Background()))
	return r
}

func TestReporterJSON(t *testing.T) {
	r := ranRunner(t)
	reporter := NewReporter(ReportConfig{Format: types.FormatJSON, Title: "RHACS Verification"}, r)

	out, err := reporter.Render()
	require.NoError(t, err)

	var report jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "RHACS Verification", report.Title)
	require.Len(t, report.Results, 3)
	assert.Equal(t, "central-api", report.Results[1].CheckID)
	assert.Equal(t, "Central", report.Results[1].Category)
	assert.Equal(t, 1, report.ResultsByStatus["Critical"])
	assert.Equal(t, 100, report.Score)
}

func TestReporterAsciiDoc(t *testing.T) {
	r := ranRunner(t)
	reporter := NewReporter(ReportConfig{Format: types.FormatAsciiDoc, Title: "RHACS Verification", IncludeDetailedResults: true}, r)

	out, err := reporter.Render()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "= RHACS Verification\n"))
	assert.Contains(t, out, "|Critical|1\n")
	assert.Less(t, strings.Index(out, "=== Operators"), strings.Index(out, "=== Central"))
	assert.Contains(t, out, `Central \| down`)
	assert.Contains(t, out, "a|* fix Central \\| down\n")
	assert.Contains(t, out, "== Detailed Results")
	assert.Contains(t, out, "[[central-api]]\n=== Check central-api\n")
	assert.Contains(t, out, "Outcome:: Critical, Central | down\n")
	assert.Contains(t, out, ".Next steps\n1. fix Central | down\n")
	assert.Contains(t, out, "*Overall score:* 100%")
}

func TestReporterSummary(t *testing.T) {
	color.NoColor = true
	r := ranRunner(t)
	reporter := NewReporter(ReportConfig{Format: types.FormatSummary, Title: "RHACS"}, r)

	out, err := reporter.Render()
	require.NoError(t, err)
	assert.Contains(t, out, "Total checks: 3\n")

	critical := strings.Index(out, "[Critical] Check central-api")
	warning := strings.Index(out, "[Warning] Check compliance-suite")
	require.NotEqual(t, -1, critical)
	require.NotEqual(t, -1, warning)
	assert.Less(t, critical, warning)

	var sb strings.Builder
	reporter.PrintSummary(&sb)
	assert.Contains(t, sb.String(), "- OK: 1")
}

func TestReporterGenerate(t *testing.T) {
	r := ranRunner(t)
	dir := filepath.Join(t.TempDir(), "reports")
	reporter := NewReporter(ReportConfig{Format: types.FormatJSON, OutputDir: dir, Filename: "verify", IncludeTimestamp: true, Title: "x"}, r)
	reporter.now = func() time.Time { return time.Date(2025, 5, 9, 10, 30, 0, 0, time.UTC) }

	path, err := reporter.Generate()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "verify-20250509-103000.json"), path)

	_, err = os.Stat(path)
	require.NoError(t, err)

	bad := NewReporter(ReportConfig{Format: "html", OutputDir: dir}, r)
	_, err = bad.Generate()
	assert.Error(t, err)
}

func keyed(status types.Status, key types.ResultKey) func(ctx context.Context) (Result, error) {
	return func(context.Context) (Result, error) {
		return NewResult("", status, string(status), key), nil
	}
}

func TestRunnerScores(t *testing.T) {
	r := newTestRunner(Config{})
	r.AddChecks([]Check{
		newFake("a", types.CategoryOperators, keyed(types.StatusOK, types.ResultKeyNoChange)),
		newFake("b", types.CategoryOperators, keyed(types.StatusCritical, types.ResultKeyRequired)),
		newFake("c", types.CategoryCompliance, keyed(types.StatusWarning, types.ResultKeyRecommended)),
		newFake("d", types.CategoryCompliance, keyed(types.StatusUnknown, types.ResultKeyAdvisory)),
		newFake("e", types.CategoryMonitoring, keyed(types.StatusWarning, "")),
	})
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, map[types.Category]int{
		types.CategoryOperators:  50,
		types.CategoryCompliance: 75,
		types.CategoryMonitoring: 70,
	}, r.CategoryScores())
	assert.Equal(t, 64, r.OverallScore())

	assert.Zero(t, newTestRunner(Config{}).OverallScore())
}
