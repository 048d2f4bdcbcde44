package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/poolbench/internal/coordinator"
	"github.com/torosent/poolbench/internal/metrics"
)

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Write renders report in the given format. A nil scheme disables colors.
func Write(w io.Writer, format Format, report coordinator.Report, scheme *ColorScheme) error {
	switch format {
	case FormatJSON:
		return PrintJSONReport(w, report)
	case FormatYAML:
		return PrintYAMLReport(w, report)
	case FormatText, "":
		PrintReport(w, report, scheme)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrintReport outputs a human-readable report: a summary table with every
// configuration side by side, then one detail section per configuration.
func PrintReport(w io.Writer, report coordinator.Report, scheme *ColorScheme) {
	if scheme == nil {
		scheme = NoColorScheme()
	}
	fmt.Fprintln(w, scheme.Header.Sprint("\n--- Pool Benchmark Results ---"))
	if len(report.Results) == 0 {
		fmt.Fprintln(w, "No configurations were run.")
		return
	}

	width := len("Benchmark")
	for _, res := range report.Results {
		width = max(width, len(res.Configuration.DisplayName()))
	}

	fmt.Fprintf(w, "%-*s  %7s  %5s  %5s  %4s  %14s    %12s  %-5s  %s\n",
		width, "Benchmark", "Threads", "Forks", "Mode", "Cnt", "Score", "Error", "Units", "Status")
	for _, res := range report.Results {
		rc := res.Configuration
		status := scheme.StatusOK.Sprint(string(res.Status))
		if res.Failed() {
			status = scheme.Failed.Sprint(string(res.Status))
		}
		name := fmt.Sprintf("%-*s", width, rc.DisplayName())
		fmt.Fprintf(w, "%s  %7d  %5d  %5s  %4d  %14.3f  ± %12.3f  %-5s  %s\n",
			scheme.Name.Sprint(name), rc.Threads, rc.Forks, "thrpt", len(res.Samples),
			res.Score, res.ScoreError, "ops/s", status)
	}
	for _, res := range report.Results {
		if res.Failed() || res.Stats.Total == 0 {
			continue
		}
		name := fmt.Sprintf("%-*s", width, res.Configuration.DisplayName())
		fmt.Fprintf(w, "%s  %7d  %5d  %5s  %4d  %14.3f  ± %12s  %-5s\n",
			scheme.Name.Sprint(name), res.Configuration.Threads, res.Configuration.Forks, "avgt",
			res.Stats.Total, res.Stats.MeanLatencyMs, "", "ms/op")
	}

	for _, res := range report.Results {
		printResult(w, res, scheme)
	}
	fmt.Fprintf(w, "\nTotal time:        %s\n", report.Duration.Round(time.Millisecond))
}

func printResult(w io.Writer, res coordinator.RunResult, scheme *ColorScheme) {
	rc := res.Configuration
	fmt.Fprintf(w, "\n%s\n", scheme.Header.Sprintf("# %s", rc.DisplayName()))
	if res.Failed() {
		fmt.Fprintf(w, "Status:            %s\n", scheme.Failed.Sprint("failed"))
		fmt.Fprintf(w, "Reason:            %s\n", res.Reason)
	}
	if len(res.RunIDs) > 0 {
		fmt.Fprintf(w, "Run IDs:           %s\n", scheme.Muted.Sprint(strings.Join(res.RunIDs, ", ")))
	}
	mode := "transactional"
	if !rc.Transactional {
		mode = "non-transactional"
	}
	fmt.Fprintf(w, "Mode:              %s\n", mode)

	stats := res.Stats
	fmt.Fprintf(w, "Iterations:        %d\n", stats.Total)
	fmt.Fprintf(w, "Committed:         %d\n", stats.Committed)
	fmt.Fprintf(w, "Rolled back:       %d\n", stats.RolledBack)
	fmt.Fprintf(w, "Errored:           %d\n", stats.Errored)
	if stats.RollbackFailures > 0 {
		fmt.Fprintf(w, "Rollback failures: %s\n", scheme.Warn.Sprint(stats.RollbackFailures))
	}
	fmt.Fprintf(w, "Measured:          %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Ops/sec:           %.2f\n", stats.OpsPerSec)
	fmt.Fprintf(w, "Invocations/sec:   %.2f\n", stats.InvocationsPerSec)
	if len(res.Samples) > 0 {
		fmt.Fprintf(w, "Score:             %.3f ± %.3f ops/s [min %.3f, max %.3f]\n",
			res.Score, res.ScoreError, res.ScoreMin, res.ScoreMax)
	}

	if stats.Total > 0 {
		fmt.Fprintln(w, "Latency:")
		fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
		fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
		fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
		fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
		fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
		fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
		fmt.Fprintf(w, "  P99.9:           %s\n", stats.P999Latency)
	}

	if len(stats.Failures) > 0 {
		fmt.Fprintln(w, "Failures:")
		writeFailureBuckets(w, stats.Failures, "  ", scheme)
	}

	if len(res.Pools) > 0 {
		fmt.Fprintln(w, "Pools:")
		for _, p := range res.Pools {
			fmt.Fprintf(w, "  - %s: max=%d, created=%d, acquired=%d, waited=%d, timeouts=%d, wait=%s\n",
				p.Strategy, p.MaxSize, p.Created, p.Acquired, p.Waited, p.Timeouts, p.TotalWait.Round(time.Microsecond))
		}
	}
}

func writeFailureBuckets(w io.Writer, rows []metrics.FailureBucket, indent string, scheme *ColorScheme) {
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s in %s: %s\n", indent, row.Cause, row.State, scheme.Warn.Sprint(row.Count))
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report coordinator.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report coordinator.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
