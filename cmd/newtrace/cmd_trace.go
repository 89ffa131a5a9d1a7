package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtrace/pkg/cli"
	"github.com/newtron-network/newtrace/pkg/newtrace/device"
	"github.com/newtron-network/newtrace/pkg/newtrace/device/sonic"
	"github.com/newtron-network/newtrace/pkg/newtrace/report"
	"github.com/newtron-network/newtrace/pkg/newtrace/trace"
	"github.com/newtron-network/newtrace/pkg/profile"
	"github.com/newtron-network/newtrace/pkg/settings"
	"github.com/newtron-network/newtrace/pkg/util"
)

type traceFlags struct {
	from      string
	user      string
	target    string
	reportDir string
	jsonPath  string
	metrics   string
	sshPort   int
	maxHops   int
}

var traceOpts traceFlags

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Trace a target IP through the fabric",
	Long: `Trace the physical path to a target IP.

Starting at the entry switch, newtrace resolves the target's hardware
address, finds the interface (or aggregate members) carrying it on the
switch and on its MCLAG peer, snapshots their error counters, and moves
to the next switch reported by LLDP. The trace ends when no further hop
is found.

Values not given as flags fall back to settings, then to a prompt.
The password is always prompted.

Examples:
  newtrace trace --from 10.0.0.1 --user admin --target 10.10.1.5
  newtrace trace --target 10.10.1.5 --json -
  newtrace trace --target 10.10.1.5 --metrics /var/lib/node_exporter/newtrace.prom`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := progressWriter(traceOpts.jsonPath)
		start, target, creds, err := traceInputs(newPrompter(out), traceOpts, userSettings, prof)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		opts := prof.TracerOptions()
		if traceOpts.maxHops > 0 {
			opts.MaxHops = traceOpts.maxHops
		}
		opts.OnHop = hopPrinter(out)

		fmt.Fprintf(out, "Tracing %s from %s\n\n", cli.Bold(target), start)
		tracer := trace.New(sonic.NewDialer(prof.SonicOptions()), creds, opts)
		tr := tracer.Run(ctx, start, target)

		reportDir := traceOpts.reportDir
		if reportDir == "" {
			reportDir = userSettings.GetReportDir()
		}
		path, err := report.WriteFile(util.ExpandHome(reportDir), tr)
		if err != nil {
			return fmt.Errorf("writing report: %w", err)
		}

		if err := writeExtras(tr, traceOpts.jsonPath, metricsPath(traceOpts.metrics, prof)); err != nil {
			return err
		}

		fmt.Fprintln(out)
		report.Summary(out, tr)
		fmt.Fprintf(out, "Report written to %s\n", path)

		if err := tr.Err(); err != nil {
			return fmt.Errorf("trace %s: %w", tr.Reason, err)
		}
		return nil
	},
}

func init() {
	f := traceCmd.Flags()
	f.StringVar(&traceOpts.from, "from", "", "Entry switch management address (settings: start)")
	f.StringVarP(&traceOpts.user, "user", "u", "", "SSH username (settings: user)")
	f.StringVarP(&traceOpts.target, "target", "t", "", "Target IP address")
	f.StringVar(&traceOpts.reportDir, "report-dir", "", "Directory for the text report (settings: report_dir)")
	f.StringVar(&traceOpts.jsonPath, "json", "", "Also write the trace as JSON to this file (- for stdout)")
	f.StringVar(&traceOpts.metrics, "metrics", "", "Write counters as a Prometheus textfile (default: profile metrics_file)")
	f.IntVar(&traceOpts.sshPort, "ssh-port", 0, "SSH port (default: profile ssh_port)")
	f.IntVar(&traceOpts.maxHops, "max-hops", 0, "Hop limit (default: profile max_hops)")
}

// traceInputs resolves start, target and credentials from flags, settings
// and prompts, in that order.
func traceInputs(p *prompter, fl traceFlags, s *settings.Settings, pr *profile.Profile) (start, target string, creds device.Credentials, err error) {
	start, err = p.ask("Start device IP", fl.from, s.DefaultStart)
	if err != nil {
		return "", "", creds, err
	}

	creds.Port = pr.SSHPort
	if fl.sshPort > 0 {
		creds.Port = fl.sshPort
	}

	// Without a username the dialer reaches Redis directly, which only
	// a profile with redis.direct_port allows.
	if fl.user != "" || pr.Redis.DirectPort == 0 {
		creds.User, err = p.ask("Username", fl.user, s.DefaultUser)
		if err != nil {
			return "", "", creds, err
		}
		creds.Password, err = p.password(fmt.Sprintf("Password for %s@%s", creds.User, start))
		if err != nil {
			return "", "", creds, err
		}
	}

	target, err = p.ask("Target IP", fl.target, "")
	if err != nil {
		return "", "", creds, err
	}
	if !util.IsValidIP(target) {
		return "", "", creds, fmt.Errorf("target %q is not an IP address", target)
	}
	return start, target, creds, nil
}

func metricsPath(flag string, pr *profile.Profile) string {
	if flag != "" {
		return flag
	}
	return util.ExpandHome(pr.MetricsFile)
}

// writeExtras writes the optional JSON and metrics outputs.
func writeExtras(tr *trace.Trace, jsonPath, metrics string) error {
	switch jsonPath {
	case "":
	case "-":
		if err := report.WriteJSON(os.Stdout, tr); err != nil {
			return fmt.Errorf("writing JSON: %w", err)
		}
	default:
		f, err := os.Create(jsonPath)
		if err != nil {
			return fmt.Errorf("writing JSON: %w", err)
		}
		err = report.WriteJSON(f, tr)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing JSON: %w", err)
		}
	}

	if metrics != "" {
		if err := report.WriteMetrics(metrics, tr); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

// progressWriter returns where human-readable output goes: stderr when the
// JSON trace is written to stdout.
func progressWriter(jsonPath string) io.Writer {
	if jsonPath == "-" {
		return os.Stderr
	}
	return os.Stdout
}

// hopPrinter shows progress on w as each hop is recorded.
func hopPrinter(w io.Writer) func(trace.HopRecord) {
	return func(h trace.HopRecord) { printHop(w, h) }
}

func printHop(w io.Writer, h trace.HopRecord) {
	for _, side := range h.Sides() {
		label := cli.DotPad(fmt.Sprintf("hop %d %s", side.Index, side.Device), 44)
		if !side.Resolved() {
			fmt.Fprintf(w, "  %s %s\n", label, cli.Dim("not on path"))
			continue
		}
		line := cli.Green(side.Interface.Name)
		if n := len(side.Interface.Members); n > 0 {
			line += cli.Dim(fmt.Sprintf(" (%d members)", n))
		}
		if len(side.Notes) > 0 {
			line += " " + cli.Yellow(fmt.Sprintf("%d note(s)", len(side.Notes)))
		}
		fmt.Fprintf(w, "  %s %s\n", label, line)
	}
}
