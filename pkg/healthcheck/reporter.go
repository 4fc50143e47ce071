/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-08

This file implements the reporting for verification results. It:

- Generates reports in AsciiDoc, JSON and text summary formats
- Organizes results by category and status
- Includes details and recommendations for every check
- Prints a colored summary to the terminal
*/

package healthcheck

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ayaseen/rhacs-runner/pkg/types"
)

// ReportConfig defines the configuration for report generation
type ReportConfig struct {
	// Format is the report format to generate
	Format types.ReportFormat

	// OutputDir is where the report will be saved
	OutputDir string

	// Filename is the name of the report file, without extension
	Filename string

	// IncludeTimestamp adds a timestamp to the filename
	IncludeTimestamp bool

	// IncludeDetailedResults includes detailed results in the report
	IncludeDetailedResults bool

	// Title is the title of the report
	Title string
}

// Reporter generates reports for check results
type Reporter struct {
	config ReportConfig
	runner *Runner
	now    func() time.Time
}

// NewReporter creates a new reporter
func NewReporter(config ReportConfig, runner *Runner) *Reporter {
	return &Reporter{config: config, runner: runner, now: time.Now}
}

// Generate writes the report and returns its path
func (r *Reporter) Generate() (string, error) {
	if err := os.MkdirAll(r.config.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	content, err := r.Render()
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	outputPath := filepath.Join(r.config.OutputDir, r.getFilename())
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return outputPath, nil
}

// Render returns the report content in the configured format
func (r *Reporter) Render() (string, error) {
	switch r.config.Format {
	case types.FormatAsciiDoc:
		return r.generateAsciiDoc(), nil
	case types.FormatJSON:
		return r.generateJSON()
	case types.FormatSummary:
		return r.generateSummary(), nil
	default:
		return "", fmt.Errorf("unsupported report format: %s", r.config.Format)
	}
}

// getFilename returns the filename for the report
func (r *Reporter) getFilename() string {
	filename := r.config.Filename
	if filename == "" {
		filename = "rhacs-verify-report"
	}
	if r.config.IncludeTimestamp {
		filename += "-" + r.now().Format("20060102-150405")
	}

	switch r.config.Format {
	case types.FormatAsciiDoc:
		filename += ".adoc"
	case types.FormatJSON:
		filename += ".json"
	case types.FormatSummary:
		filename += ".txt"
	}
	return filename
}

// generateAsciiDoc generates an AsciiDoc report
func (r *Reporter) generateAsciiDoc() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("= %s\n\n", r.config.Title))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.now().Format(time.RFC1123)))

	sb.WriteString("== Summary\n\n")
	counts := r.runner.CountByStatus()
	sb.WriteString("[cols=\"1,1\", options=\"header\"]\n|===\n|Status|Count\n\n")
	for _, status := range types.Statuses {
		sb.WriteString(fmt.Sprintf("|%s|%d\n", status, counts[status]))
	}
	sb.WriteString("|===\n\n")

	sb.WriteString(fmt.Sprintf("*Overall score:* %d%%\n\n", r.runner.OverallScore()))
	scores := r.runner.CategoryScores()
	sb.WriteString("[cols=\"1,1\", options=\"header\"]\n|===\n|Category|Score\n\n")
	for _, category := range types.Categories {
		if score, ok := scores[category]; ok {
			sb.WriteString(fmt.Sprintf("|%s|%d%%\n", category, score))
		}
	}
	sb.WriteString("|===\n\n")

	sb.WriteString("== Results\n\n")
	resultsByCategory := r.runner.GetResultsByCategory()
	for _, category := range types.Categories {
		results, ok := resultsByCategory[category]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("=== %s\n\n", category))
		r.writeAsciiDocResultsTable(&sb, results)
		sb.WriteString("\n")
	}

	if r.config.IncludeDetailedResults {
		r.writeAsciiDocDetails(&sb)
	}

	return sb.String()
}

// writeAsciiDocResultsTable writes a table of results in AsciiDoc format
func (r *Reporter) writeAsciiDocResultsTable(sb *strings.Builder, results []Result) {
	sb.WriteString("[cols=\"1,3,1,3\", options=\"header\"]\n|===\n|Check|Result|Status|Recommendations\n\n")

	for _, result := range results {
		sb.WriteString(fmt.Sprintf("|%s|%s|%s\n",
			r.runner.checkName(result.CheckID),
			escapeCell(result.Message),
			result.Status))

		if len(result.Recommendations) == 0 {
			sb.WriteString("|None\n")
			continue
		}
		sb.WriteString("a|")
		for _, rec := range result.Recommendations {
			sb.WriteString(fmt.Sprintf("* %s\n", escapeCell(rec)))
		}
	}

	sb.WriteString("|===\n")
}

// writeAsciiDocDetails writes one labeled list per check with its
// metadata and the observed state.
func (r *Reporter) writeAsciiDocDetails(sb *strings.Builder) {
	sb.WriteString("== Detailed Results\n\n")

	for _, check := range r.runner.GetChecks() {
		result, ok := r.runner.Result(check.ID())
		if !ok {
			continue
		}

		fmt.Fprintf(sb, "[[%s]]\n=== %s\n\n", check.ID(), check.Name())
		sb.WriteString("[horizontal]\n")
		fmt.Fprintf(sb, "Check:: `%s` (%s)\n", check.ID(), check.Category())
		fmt.Fprintf(sb, "Verifies:: %s\n", check.Description())
		fmt.Fprintf(sb, "Outcome:: %s, %s\n", result.Status, result.Message)
		fmt.Fprintf(sb, "Took:: %s\n", result.ExecutionTime.Round(time.Millisecond))

		keys := make([]string, 0, len(result.Metadata))
		for k := range result.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(sb, "%s:: %s\n", k, result.Metadata[k])
		}
		sb.WriteString("\n")

		if len(result.Recommendations) > 0 {
			sb.WriteString(".Next steps\n")
			for i, rec := range result.Recommendations {
				fmt.Fprintf(sb, "%d. %s\n", i+1, rec)
			}
			sb.WriteString("\n")
		}

		if result.Detail != "" {
			fmt.Fprintf(sb, ".Observed state\n....\n%s\n....\n\n", strings.TrimRight(result.Detail, "\n"))
		}
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

type jsonResult struct {
	CheckID         string            `json:"check_id"`
	CheckName       string            `json:"check_name"`
	Description     string            `json:"description"`
	Category        string            `json:"category"`
	Status          string            `json:"status"`
	Message         string            `json:"message"`
	ResultKey       string            `json:"result_key"`
	Detail          string            `json:"detail,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	ExecutionTime   string            `json:"execution_time"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type jsonReport struct {
	Title           string         `json:"title"`
	GeneratedAt     string         `json:"generated_at"`
	ResultsByStatus map[string]int `json:"results_by_status"`
	Score           int            `json:"score"`
	Results         []jsonResult   `json:"results"`
}

// generateJSON generates a JSON report
func (r *Reporter) generateJSON() (string, error) {
	report := jsonReport{
		Title:           r.config.Title,
		GeneratedAt:     r.now().Format(time.RFC3339),
		ResultsByStatus: make(map[string]int),
		Score:           r.runner.OverallScore(),
		Results:         []jsonResult{},
	}

	for _, check := range r.runner.GetChecks() {
		result, exists := r.runner.Result(check.ID())
		if !exists {
			continue
		}
		report.Results = append(report.Results, jsonResult{
			CheckID:         check.ID(),
			CheckName:       check.Name(),
			Description:     check.Description(),
			Category:        string(check.Category()),
			Status:          string(result.Status),
			Message:         result.Message,
			ResultKey:       string(result.ResultKey),
			Detail:          result.Detail,
			Recommendations: result.Recommendations,
			ExecutionTime:   result.ExecutionTime.String(),
			Metadata:        result.Metadata,
		})
	}
	for status, count := range r.runner.CountByStatus() {
		report.ResultsByStatus[string(status)] = count
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON report: %w", err)
	}
	return string(data), nil
}

// generateSummary generates a plain text summary
func (r *Reporter) generateSummary() string {
	var sb strings.Builder

	sb.WriteString(r.config.Title + "\n")
	sb.WriteString(strings.Repeat("=", len(r.config.Title)))
	sb.WriteString("\n\n")

	r.writeSummary(&sb, func(s types.Status) string { return string(s) })
	return sb.String()
}

// PrintSummary prints a colored summary of the results to w
func (r *Reporter) PrintSummary(w io.Writer) {
	fmt.Fprintln(w)
	r.writeSummary(w, colorStatus)
}

func (r *Reporter) writeSummary(w io.Writer, label func(types.Status) string) {
	counts := r.runner.CountByStatus()
	total := 0
	for _, count := range counts {
		total += count
	}

	fmt.Fprintf(w, "Total checks: %d\n", total)
	fmt.Fprintf(w, "Overall score: %d%%\n", r.runner.OverallScore())
	for _, status := range types.Statuses {
		if count, ok := counts[status]; ok {
			fmt.Fprintf(w, "- %s: %d\n", label(status), count)
		}
	}
	fmt.Fprintln(w)

	issues := 0
	for _, status := range []types.Status{types.StatusCritical, types.StatusWarning} {
		for _, check := range r.runner.GetChecks() {
			result, exists := r.runner.Result(check.ID())
			if !exists || result.Status != status {
				continue
			}
			issues++
			fmt.Fprintf(w, "[%s] %s: %s\n", label(result.Status), check.Name(), result.Message)
			for _, rec := range result.Recommendations {
				fmt.Fprintf(w, "  - %s\n", rec)
			}
		}
	}
	if issues == 0 {
		fmt.Fprintln(w, "No issues found.")
	}
}

func colorStatus(status types.Status) string {
	switch status {
	case types.StatusOK:
		return color.GreenString(string(status))
	case types.StatusWarning:
		return color.YellowString(string(status))
	case types.StatusCritical:
		return color.RedString(string(status))
	case types.StatusUnknown:
		return color.WhiteString(string(status))
	default:
		return string(status)
	}
}
