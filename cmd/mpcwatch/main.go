package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/mpcwatch/internal/app"
	"github.com/bft-labs/mpcwatch/internal/config"
	"github.com/bft-labs/mpcwatch/internal/configwatch"
	"github.com/bft-labs/mpcwatch/internal/server"
	"github.com/bft-labs/mpcwatch/pkg/dashboard"
	"github.com/bft-labs/mpcwatch/pkg/log"
	"github.com/bft-labs/mpcwatch/pkg/participant"
)

const helpDescription = `
Watch a three-party computation from one participant's point of view.

mpcwatch works out which participant backend to talk to, reads its status,
output and progress, and falls back to another reachable backend when the
configured one goes away. The coordinator and training services are read at
fixed addresses.

Configure via $HOME/.mpcwatch/config.toml, MPCWATCH_* environment variables,
or flags (flags win).
`

var exampleUsage = strings.TrimSpace(`
  mpcwatch status --backend-port 8082
  mpcwatch snapshot --page-url "http://localhost:8031/?backendPort=8082"
  mpcwatch watch --refresh 2s
  mpcwatch serve --listen 127.0.0.1:8090
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries state shared by every subcommand.
type cli struct {
	cfg     config.Config
	cfgPath string
	app     *app.App
	logger  *log.ZerologAdapter
	out     io.Writer
}

func main() {
	c := &cli{cfg: config.DefaultConfig(), out: os.Stdout}
	c.logger = log.NewZerologAdapter(os.Stderr, false)

	root := c.rootCommand()
	if err := root.Execute(); err != nil {
		c.logger.Error("mpcwatch", log.Err(err))
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "mpcwatch",
		Short:         "Resilient status client for a three-party computation dashboard",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.mpcwatch/config.toml)")
	f.StringVar(&c.cfg.Scheme, "scheme", c.cfg.Scheme, "scheme used for the participant backend")
	f.StringVar(&c.cfg.Host, "host", c.cfg.Host, "participant backend host")
	f.StringVar(&c.cfg.BackendPort, "backend-port", c.cfg.BackendPort, "participant backend port (overrides inference)")
	f.StringVar(&c.cfg.FrontendPort, "frontend-port", c.cfg.FrontendPort, "port the dashboard is served on")
	f.StringVar(&c.cfg.PageURL, "page-url", c.cfg.PageURL, "dashboard page URL used for port inference")
	f.StringVar(&c.cfg.CoordinatorURL, "coordinator-url", c.cfg.CoordinatorURL, "coordinator base URL")
	f.StringVar(&c.cfg.TrainingURL, "training-url", c.cfg.TrainingURL, "training service base URL")
	f.StringVar(&c.cfg.HealthPath, "health-path", c.cfg.HealthPath, "health probe path on participant backends")
	f.IntSliceVar(&c.cfg.CandidatePorts, "candidate-ports", c.cfg.CandidatePorts, "backend ports tried in order during failover")
	f.DurationVar(&c.cfg.Timeout, "timeout", c.cfg.Timeout, "per-request timeout")
	f.DurationVar(&c.cfg.ProbeTimeout, "probe-timeout", c.cfg.ProbeTimeout, "per-probe timeout during failover, at most 3s")
	f.DurationVar(&c.cfg.TrainingTimeout, "training-timeout", c.cfg.TrainingTimeout, "timeout for training service requests")
	f.DurationVar(&c.cfg.RefreshInterval, "refresh", c.cfg.RefreshInterval, "refresh interval for watch")
	f.Int64Var(&c.cfg.MaxBodyBytes, "max-body-bytes", c.cfg.MaxBodyBytes, "maximum request and response body size")
	f.IntVar(&c.cfg.MaxHeaderBytes, "max-header-bytes", c.cfg.MaxHeaderBytes, "maximum request and response header size")
	f.BoolVar(&c.cfg.Debug, "debug", c.cfg.Debug, "enable debug logging")
	f.StringVar(&c.cfg.Listen, "listen", c.cfg.Listen, "listen address for serve")
	if err := f.MarkHidden("max-header-bytes"); err != nil {
		c.logger.Info("failed to hide max-header-bytes flag", log.Err(err))
	}

	root.AddCommand(
		c.endpointCommand(),
		c.participantsCommand(),
		c.readCommand("status", "Show the participant backend status", c.status),
		c.readCommand("output", "Show the participant backend output", c.output),
		c.onlineCommand(),
		c.progressCommand(),
		c.coordinatorCommand(),
		c.trainingCommand(),
		c.submitCommand("decrypt", "Request a collaborative decryption", c.decrypt),
		c.submitCommand("refresh", "Request a collaborative key refresh", c.refresh),
		c.snapshotCommand(),
		c.watchCommand(),
		c.serveCommand(),
	)
	return root
}

// setup layers file, environment and flags into c.cfg and builds the app.
func (c *cli) setup(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}
	c.cfgPath = cfgFile

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && config.FileExists(cfgFile) {
		fc, err := config.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := config.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.logger = log.NewZerologAdapter(os.Stderr, c.cfg.Debug)
	c.logger.Debug("configuration", log.Any("config", c.cfg))

	a, err := app.New(c.cfg, c.logger)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRaw re-indents a backend payload. Payloads that are not JSON objects
// or arrays are printed as received.
func (c *cli) printRaw(data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		_, err = fmt.Fprintln(c.out, string(data))
		return err
	}
	return c.print(v)
}

func (c *cli) endpointCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoint",
		Short: "Show the inferred backend endpoint and participant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(server.EndpointResponse{
				Endpoint:    c.app.Service.Endpoint(),
				Participant: c.app.Service.Self(),
			})
		},
	}
}

func (c *cli) participantsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "participants",
		Short: "List the known participants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(participant.All())
		},
	}
}

func (c *cli) readCommand(use, short string, op func(context.Context) (json.RawMessage, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := op(cmd.Context())
			if err != nil {
				return err
			}
			return c.printRaw(data)
		},
	}
}

func (c *cli) submitCommand(use, short string, op func(context.Context, json.RawMessage) (json.RawMessage, error)) *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := op(cmd.Context(), json.RawMessage(payload))
			if err != nil {
				return err
			}
			return c.printRaw(data)
		},
	}
	cmd.Flags().StringVar(&payload, "data", "", "JSON request body (default: {})")
	return cmd
}

// The service is built in PersistentPreRunE, so subcommands bind to it
// through these methods rather than method values taken at construction.
func (c *cli) status(ctx context.Context) (json.RawMessage, error) {
	return c.app.Service.Status(ctx)
}

func (c *cli) output(ctx context.Context) (json.RawMessage, error) {
	return c.app.Service.BackendOutput(ctx)
}

func (c *cli) decrypt(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return c.app.Service.CollaborativeDecrypt(ctx, payload)
}

func (c *cli) refresh(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return c.app.Service.CollaborativeRefresh(ctx, payload)
}

func (c *cli) onlineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "online",
		Short: "Show which participants are online",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(c.app.Service.OnlineStatus(cmd.Context()))
		},
	}
}

func (c *cli) progressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show protocol step progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(c.app.Service.StepProgress(cmd.Context()))
		},
	}
}

func (c *cli) coordinatorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "coordinator",
		Short: "Show the coordinator status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(c.app.Service.CoordinatorStatus(cmd.Context()))
		},
	}
}

func (c *cli) trainingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "training",
		Short: "Read the training service",
	}
	cmd.AddCommand(
		c.readCommand("history", "Show training history", func(ctx context.Context) (json.RawMessage, error) {
			return c.app.Service.TrainingHistory(ctx)
		}),
		c.readCommand("status", "Show training status", func(ctx context.Context) (json.RawMessage, error) {
			return c.app.Service.TrainingStatus(ctx)
		}),
		c.readCommand("batches", "Show batch history", func(ctx context.Context) (json.RawMessage, error) {
			return c.app.Service.BatchHistory(ctx)
		}),
	)
	return cmd
}

func (c *cli) snapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Read everything once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := c.app.Service.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(snap)
		},
	}
}

func (c *cli) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print a snapshot every refresh interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := c.signalContext(cmd.Context())
			defer stop()

			poller := dashboard.NewPoller(c.app.Service, c.cfg.RefreshInterval, c.logger)
			err := poller.Run(ctx, func(snap dashboard.Snapshot) {
				if err := c.print(snap); err != nil {
					c.logger.Warn("failed to print snapshot", log.Err(err))
				}
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := c.signalContext(cmd.Context())
			defer stop()

			srv := server.New(c.app.Service, c.logger)
			return srv.ListenAndServe(ctx, c.cfg.Listen)
		},
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, with the
// config watcher running for its lifetime.
func (c *cli) signalContext(parent context.Context) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	var w *configwatch.Watcher
	if config.FileExists(c.cfgPath) {
		w = configwatch.New(c.cfgPath, c.app.Cache, 0, c.logger)
		if err := w.Start(ctx); err != nil {
			c.logger.Warn("config watcher disabled", log.Err(err))
			w = nil
		}
	}

	return ctx, func() {
		if w != nil {
			w.Stop()
		}
		cancel()
	}
}
