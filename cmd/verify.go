/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-09

This file implements the verify command. It:

- Builds the dependencies of the verification checks from the cluster and the Central API
- Runs the checks with an optional category filter
- Writes the report in AsciiDoc, JSON or summary format
- Optionally compresses the report into a password protected zip file

The command fails when any check reports a critical result.
*/

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayaseen/rhacs-runner/pkg/checks"
	"github.com/ayaseen/rhacs-runner/pkg/compliance"
	"github.com/ayaseen/rhacs-runner/pkg/healthcheck"
	"github.com/ayaseen/rhacs-runner/pkg/types"
	"github.com/ayaseen/rhacs-runner/pkg/utils"
)

// verifyOptions holds the flags of the verify command
type verifyOptions struct {
	format          string
	outputDir       string
	categories      []string
	failFast        bool
	archive         bool
	archivePassword string
	scanName        string
	checkTimeout    time.Duration
}

func newVerifyCmd(a *app) *cobra.Command {
	opts := verifyOptions{
		format:       string(types.FormatSummary),
		outputDir:    ".",
		scanName:     compliance.DefaultScanName,
		checkTimeout: time.Minute,
	}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the RHACS installation and write a report",
		Long: `Runs read-only checks against the operators, Central, the secured cluster, certificates,
compliance scans and metrics, then writes a report. Exits non-zero when a check is critical.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", opts.format, "Report format (asciidoc, json, summary)")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", opts.outputDir, "Directory the report is written to")
	cmd.Flags().StringSliceVarP(&opts.categories, "category", "c", nil, "Only run checks of these categories")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "Stop after the first critical check")
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "Compress the report into a password protected zip file")
	cmd.Flags().StringVar(&opts.archivePassword, "archive-password", "", "Password of the zip file, generated when empty")
	cmd.Flags().StringVar(&opts.scanName, "scan-name", opts.scanName, "Name of the scan configuration to verify")
	cmd.Flags().DurationVar(&opts.checkTimeout, "check-timeout", opts.checkTimeout, "Maximum time for a single check")
	return cmd
}

// parseFormat validates a report format name
func parseFormat(name string) (types.ReportFormat, error) {
	switch f := types.ReportFormat(strings.ToLower(name)); f {
	case types.FormatAsciiDoc, types.FormatJSON, types.FormatSummary:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q, use asciidoc, json or summary", name)
}

// parseCategories maps category names, in any case, to categories
func parseCategories(names []string) ([]types.Category, error) {
	var out []types.Category
	for _, name := range names {
		found := false
		for _, c := range types.Categories {
			if strings.EqualFold(string(c), name) {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown category %q", name)
		}
	}
	return out, nil
}

// checkDependencies collects what the checks run against. Central and
// Prometheus are optional: checks needing them report what is missing.
func checkDependencies(ctx context.Context, a *app, scanName string) checks.Dependencies {
	deps := checks.Dependencies{
		Clients:     a.clients,
		Installer:   a.installer(),
		RHACS:       a.rhacs(),
		CertManager: a.certManager(),
		Scanner:     a.scanner(),
		IssuerName:  a.cfg.IssuerName,
		ScanName:    scanName,
	}

	if endpoint, err := a.endpoint(ctx); err != nil {
		a.log.Warning("Central endpoint not found: %v", err)
	} else {
		deps.Endpoint = endpoint
	}
	deps.ClusterName = a.clusterName(ctx)

	if api, err := a.centralAPI(ctx); err != nil {
		a.log.Warning("Central API checks run without credentials: %v", err)
	} else {
		deps.Central = api
	}

	if q, err := a.monitoring().ClusterQuerier(ctx); err != nil {
		a.log.Debug("Cluster monitoring cannot be queried: %v", err)
	} else {
		deps.Querier = q
	}
	return deps
}

func runVerify(ctx context.Context, a *app, opts verifyOptions) error {
	format, err := parseFormat(opts.format)
	if err != nil {
		return err
	}
	categories, err := parseCategories(opts.categories)
	if err != nil {
		return err
	}
	if err := a.connect(); err != nil {
		return err
	}

	a.log.Step("Verifying the RHACS installation")
	runner := healthcheck.NewRunner(healthcheck.Config{
		CategoryFilter:  categories,
		Timeout:         opts.checkTimeout,
		SkipProgressBar: a.cfg.NoProgress || a.log.JSON(),
		FailFast:        opts.failFast,
		Out:             a.errOut,
	})
	runner.AddChecks(checks.GetAllChecks(checkDependencies(ctx, a, opts.scanName)))
	if err := runner.Run(ctx); err != nil {
		return err
	}

	reporter := healthcheck.NewReporter(healthcheck.ReportConfig{
		Format:                 format,
		OutputDir:              opts.outputDir,
		Filename:               "rhacs-verify",
		IncludeTimestamp:       true,
		IncludeDetailedResults: true,
		Title:                  "RHACS Verification Report",
	}, runner)

	path, err := reporter.Generate()
	if err != nil {
		return fmt.Errorf("failed to write the report: %w", err)
	}

	if opts.archive {
		path, err = archiveReport(a, path, opts.archivePassword)
		if err != nil {
			return err
		}
	}
	a.log.Success("Report written to %s", path)

	reporter.PrintSummary(a.out)
	if runner.Failed() {
		return fmt.Errorf("verification found critical issues")
	}
	return nil
}

// archiveReport replaces the report with a password protected zip file
func archiveReport(a *app, path, password string) (string, error) {
	if password == "" {
		var err error
		if password, err = utils.RandomPassword(16); err != nil {
			return "", err
		}
		a.log.Info("Archive password: %s", password)
	}

	zipPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".zip"
	if err := utils.CompressWithPassword(zipPath, password, path); err != nil {
		return "", fmt.Errorf("failed to compress the report: %w", err)
	}
	if err := os.Remove(path); err != nil {
		a.log.Warning("Cannot remove %s: %v", path, err)
	}
	return zipPath, nil
}
