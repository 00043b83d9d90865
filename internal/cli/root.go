// Package cli provides the command-line interface for redirtun, the thin
// demonstration binary the core library (spec.md §6) expects an embedder
// to build. It owns its own small runtime record for convenience across
// separate invocations — the core itself persists nothing.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbowden/redirtun/internal/appconfig"
	"github.com/kbowden/redirtun/internal/diagnostics"
	"github.com/kbowden/redirtun/internal/model"
	"github.com/kbowden/redirtun/internal/netutil"
	"github.com/kbowden/redirtun/internal/portalloc"
	"github.com/kbowden/redirtun/internal/ruledriver"
	"github.com/kbowden/redirtun/internal/sshconfig"
	"github.com/kbowden/redirtun/internal/tunnelmgr"
)

// teardownTimeout bounds how long CloseAll is given to disconnect every
// Supervisor on the way out of `up`, independent of the SSH keepalive
// interval those Supervisors were configured with.
const teardownTimeout = 5 * time.Second

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "redirtun",
		Short: "Hop-relative TCP redirection manager",
	}

	root.AddCommand(newUpCmd())
	root.AddCommand(newDownCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newDoctorCmd())
	return root
}

func newManager(cfg appconfig.Config) *tunnelmgr.Manager {
	return tunnelmgr.New(tunnelmgr.Options{
		ConfigFiles:    cfg.ConfigFiles,
		Driver:         ruledriver.NewIPTables(cfg.RuleDriver.Binary),
		Allocate:       portalloc.Allocate,
		SSHBinary:      cfg.SSHBinary,
		KeepAlive:      cfg.KeepAlive(),
		ReaperInterval: cfg.ReaperInterval(),
	})
}

func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up <hop> <target:port>...",
		Short: "Create a tunnel through hop carrying one or more targets, and hold it open",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}

			hop := args[0]
			targets := make([]model.NetworkAddress, 0, len(args)-1)
			for _, arg := range args[1:] {
				host, port, err := netutil.ParseTarget(arg)
				if err != nil {
					return err
				}
				targets = append(targets, model.NetworkAddress{Host: host, Port: port})
			}

			mgr := newManager(cfg)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sup, err := mgr.CreateTunnel(ctx, hop, targets)
			if err != nil {
				return err
			}
			view := sup.Snapshot()

			if err := appendRecord(record{CLIPID: os.Getpid(), Hop: view.Hop, Forwardings: view.Forwardings}); err != nil {
				return fmt.Errorf("redirtun: recording runtime state: %w", err)
			}
			defer func() { _ = removeRecord(os.Getpid()) }()

			fmt.Printf("up pid=%d hop=%s\n", view.PID, view.Hop)
			for _, f := range view.Forwardings {
				fmt.Printf("  %s -> %s\n", f.Local, f.Target)
			}
			fmt.Println("press Ctrl-C to tear down")

			<-ctx.Done()
			fmt.Println("tearing down")
			teardown, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer cancel()
			mgr.CloseAll(teardown)
			return nil
		},
	}
}

func newDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down <cli-pid>",
		Short: "Tear down the up invocation identified by its CLI process id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pid int
			if _, err := fmt.Sscanf(args[0], "%d", &pid); err != nil {
				return fmt.Errorf("redirtun: %q is not a pid", args[0])
			}
			recs, err := liveRecords()
			if err != nil {
				return err
			}
			for _, r := range recs {
				if r.CLIPID == pid {
					if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
						return fmt.Errorf("redirtun: signaling pid %d: %w", pid, err)
					}
					fmt.Printf("sent SIGTERM to pid %d, it will tear down %s\n", pid, r.Hop)
					return nil
				}
			}
			return fmt.Errorf("redirtun: no tracked tunnel with cli pid %d", pid)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <alias>...",
		Short: "Resolve host aliases against the configured SSH config files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			fmt.Printf("%-16s %-32s %s\n", "ALIAS", "HOSTNAME", "PORT")
			for _, alias := range args {
				addr, warnings := sshconfig.ResolveWithWarnings(alias, cfg.ConfigFiles)
				fmt.Printf("%-16s %-32s %d\n", alias, addr.Host, addr.Port)
				for _, w := range warnings {
					fmt.Fprintf(os.Stderr, "  warning: %s\n", w)
				}
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show every tunnel this CLI is currently tracking",
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := liveRecords()
			if err != nil {
				return err
			}
			sort.Slice(recs, func(i, j int) bool { return recs[i].CLIPID < recs[j].CLIPID })
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			fmt.Printf("%-10s %-16s %s\n", "CLI-PID", "HOP", "FORWARDINGS")
			for _, r := range recs {
				fmt.Printf("%-10d %-16s %d\n", r.CLIPID, r.Hop, len(r.Forwardings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run preflight diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			recs, err := liveRecords()
			if err != nil {
				return err
			}
			views := make([]model.SupervisorView, 0, len(recs))
			for _, r := range recs {
				views = append(views, model.SupervisorView{Hop: r.Hop, PID: r.CLIPID, Forwardings: r.Forwardings})
			}

			report := diagnostics.Run(cfg, views)
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if len(report.Issues) == 0 {
				fmt.Println("no issues found")
				return nil
			}
			for _, issue := range report.Issues {
				fmt.Printf("[%s] %s: %s — %s\n", issue.Severity, issue.Check, issue.Message, issue.Recommendation)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}
