// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/prismmud/prism/internal/capability"
	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/logging"
	"github.com/prismmud/prism/internal/observability"
	"github.com/prismmud/prism/internal/pipeline"
	"github.com/prismmud/prism/internal/plugin"
	"github.com/prismmud/prism/internal/plugin/lua"
	"github.com/prismmud/prism/internal/plugins/core"
	"github.com/prismmud/prism/internal/proxy"
	"github.com/prismmud/prism/internal/record"
	"github.com/prismmud/prism/internal/setting"
	"github.com/prismmud/prism/internal/timer"
	"github.com/prismmud/prism/internal/trigger"
	"github.com/prismmud/prism/internal/xdg"
	"github.com/prismmud/prism/pkg/errutil"
)

// shutdownGrace bounds how long the observability server may take to
// drain on shutdown.
const shutdownGrace = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy",
		Long: `Connect to the upstream MUD, listen for clients, and run the
plugin fabric until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("mud-addr", "", "upstream mud host:port")
	flags.String("listen-addr", ":9999", "client listen host:port")
	flags.String("password", "", "client login password")
	flags.String("view-password", "", "view-only client password")
	flags.StringSlice("banner", []string{"prism proxy"}, "pre-login banner lines")
	flags.String("data-dir", "", "directory for persisted plugin state (default: XDG data dir)")
	flags.StringSlice("plugin-dirs", nil, "directories scanned for plugins")
	flags.String("log-format", "json", "log format: json or text")
	flags.String("log-level", "info", "initial log level")
	flags.String("metrics-addr", "", "metrics/health listen host:port, empty disables")
	flags.Bool("watch-plugins", true, "hot-reload plugins when their files change")

	return cmd
}

// runServe assembles the fabric and runs it until the context ends.
func runServe(ctx context.Context, cfg Config) error {
	logging.SetDefault("prism", version, cfg.LogFormat)
	logging.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The readiness probe tracks the upstream link; mud is assigned below.
	var mud *proxy.MudConn
	obs := observability.NewServer(cfg.MetricsAddr, func() bool {
		return mud != nil && mud.Connected()
	})
	metrics := obs.Metrics()

	dispatcher := proxy.NewDispatcher()

	bus := event.NewBus(event.WithRaiseHook(func(string) {
		metrics.EventsTotal.Inc()
	}))
	record.EventStackFunc = bus.Stack

	caps := capability.NewRegistry()
	settingsDir := filepath.Join(cfg.DataDir, "settings")
	if err := xdg.EnsureDir(settingsDir); err != nil {
		return err
	}
	settings := setting.NewRegistry(bus, func(id string) (setting.Store, error) {
		return setting.NewFileStore(filepath.Join(settingsDir, id+".yaml"))
	})
	timers := timer.NewScheduler(
		timer.WithDispatch(dispatcher.Call),
		timer.WithFireHook(func(name string) {
			metrics.TimerFires.WithLabelValues(name).Inc()
		}),
	)
	triggers, err := trigger.NewEngine(bus, core.ProxyID,
		trigger.WithHitHook(func(string) {
			metrics.TriggerFires.Inc()
		}))
	if err != nil {
		return err
	}

	// The engine and pipeline reference each other through closures:
	// command output flows back to the issuing client as internal lines.
	var pipe *pipeline.Pipeline
	engine := command.NewEngine(
		func() string {
			prefix, getErr := settings.GetString("command_prefix")
			if getErr != nil || prefix == "" {
				return command.DefaultPrefix
			}
			return prefix
		},
		func(r command.Response) {
			sendErr := pipe.SendInternal(r.Messages, pipeline.InternalOptions{
				NoPreamble: !r.Preamble,
				Send:       pipeline.SendOptions{Include: []string{r.ClientID}},
			})
			if sendErr != nil {
				slog.Warn("delivering command output", "client_id", r.ClientID, "error", sendErr)
			}
		},
		command.WithRunHook(func(pluginID, name string) {
			metrics.CommandsTotal.WithLabelValues(pluginID, name).Inc()
		}),
	)

	var server *proxy.Server
	pipe = pipeline.New(bus, core.ProxyID,
		pipeline.WithSeparator(func() string {
			sep, getErr := settings.GetString("command_separator")
			if getErr != nil || sep == "" {
				return pipeline.DefaultSeparator
			}
			return sep
		}),
		pipeline.WithFormat(func() record.FormatOptions {
			text, _ := settings.GetString("preamble_text")
			colorCode, _ := settings.GetString("preamble_color")
			return record.FormatOptions{
				Preamble:      true,
				PreambleText:  text,
				PreambleColor: colorCode,
			}
		}),
		pipeline.WithMudSink(func(text string) { mud.Send(text) }),
		pipeline.WithClients(func() []pipeline.Recipient { return server.Recipients() }),
		pipeline.WithSentHook(func(direction string, n int) {
			metrics.LinesTotal.WithLabelValues(direction).Add(float64(n))
		}),
	)

	mud = proxy.NewMudConn(cfg.MudAddr, core.ProxyID, dispatcher, pipe, bus)
	server = proxy.NewServer(cfg.ListenAddr, cfg.Password, core.ProxyID, dispatcher, pipe, bus,
		proxy.WithBanner(cfg.Banner...),
		proxy.WithViewPassword(cfg.ViewPassword))

	// Command lines travel the to-mud modify event like any other client
	// line: the engine runs early, consumes its lines, and clears their
	// send flag so later callbacks still see them gagged.
	if err := pipe.RegisterCommandDispatch(engine); err != nil {
		return err
	}

	// Every client-bound mud line runs through the trigger engine at
	// default priority; plugin callbacks on the same event see the line
	// before or after depending on their own priority.
	if _, err := bus.RegisterCallback(pipeline.EventToClientModify, event.Callback{
		Name:  "run_triggers",
		Owner: core.ProxyID,
		Fn: func(data *event.DataRecord) error {
			if ln := data.Line("line"); ln != nil {
				triggers.ProcessLine(ln)
			}
			return nil
		},
	}, event.DefaultPriority); err != nil {
		return err
	}

	for _, reg := range []struct {
		event string
		fn    func()
	}{
		{proxy.EventClientConnected, metrics.ClientsConnected.Inc},
		{proxy.EventClientDisconnected, metrics.ClientsConnected.Dec},
	} {
		fn := reg.fn
		if _, err := bus.RegisterCallback(reg.event, event.Callback{
			Name:  "metrics_" + reg.event,
			Owner: core.ProxyID,
			Fn:    func(*event.DataRecord) error { fn(); return nil },
		}, event.DefaultPriority); err != nil {
			return err
		}
	}

	deps := plugin.Deps{
		Bus:      bus,
		Caps:     caps,
		Settings: settings,
		Timers:   timers,
		Triggers: triggers,
		Commands: engine,
	}
	managerOpts := []plugin.ManagerOption{
		plugin.WithSearchRoots(cfg.PluginDirs...),
		plugin.WithHost(lua.NewHost(deps)),
	}
	if v, parseErr := semver.NewVersion(version); parseErr == nil {
		managerOpts = append(managerOpts, plugin.WithProxyVersion(v))
	}
	manager := plugin.NewManager(deps, managerOpts...)

	if err := core.RegisterAll(manager, core.Services{
		Version:      version,
		Manager:      manager,
		MudAddr:      cfg.MudAddr,
		MudConnected: func() bool { return mud.Connected() },
		Clients:      func() []proxy.ClientInfo { return server.Clients() },
		Shutdown:     cancel,
		SetLogLevel:  logging.SetLevel,
	}); err != nil {
		return err
	}

	go dispatcher.Run(ctx)

	if err := manager.Discover(); err != nil {
		return err
	}
	if err := manager.LoadAll(); err != nil {
		return err
	}

	if cfg.WatchPlugins {
		watcher, watchErr := plugin.NewWatcher(manager, dispatcher.Submit)
		if watchErr != nil {
			slog.Warn("plugin watcher unavailable", "error", watchErr)
		} else {
			for _, info := range manager.List() {
				if info.Path == "" {
					continue
				}
				if err := watcher.Watch(info.Path); err != nil {
					slog.Warn("watching plugin directory", "path", info.Path, "error", err)
				}
			}
			go watcher.Run(ctx)
			defer func() { _ = watcher.Close() }()
		}
	}

	timers.Start()
	defer timers.Stop()

	var obsErr <-chan error
	if cfg.MetricsAddr != "" {
		ch, startErr := obs.Start()
		if startErr != nil {
			return startErr
		}
		obsErr = ch
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer stopCancel()
			_ = obs.Stop(stopCtx)
		}()
	}

	go func() {
		if runErr := mud.Run(ctx); runErr != nil && ctx.Err() == nil {
			errutil.LogError(slog.Default(), "upstream connection failed", runErr)
			cancel()
		}
	}()
	go func() {
		if runErr := server.Run(ctx); runErr != nil && ctx.Err() == nil {
			errutil.LogError(slog.Default(), "client listener failed", runErr)
			cancel()
		}
	}()

	slog.Info("prism running",
		"mud", cfg.MudAddr,
		"listen", cfg.ListenAddr,
		"plugins", len(manager.LoadedIDs()))

	select {
	case <-ctx.Done():
	case err := <-obsErr:
		if err != nil {
			slog.Error("observability server failed", "error", err)
		}
		cancel()
	}

	slog.Info("prism shutting down")
	manager.SaveAll()
	manager.Shutdown()
	return nil
}
