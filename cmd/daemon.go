package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hpcloud/tail"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/wastenet/cli"
	"github.com/grovetools/wastenet/config"
	"github.com/grovetools/wastenet/internal/daemon/engine"
	"github.com/grovetools/wastenet/internal/daemon/metrics"
	"github.com/grovetools/wastenet/internal/daemon/notifier"
	"github.com/grovetools/wastenet/internal/daemon/persist"
	"github.com/grovetools/wastenet/internal/daemon/pidfile"
	"github.com/grovetools/wastenet/internal/daemon/relay"
	"github.com/grovetools/wastenet/internal/daemon/server"
	"github.com/grovetools/wastenet/internal/daemon/store"
	"github.com/grovetools/wastenet/logging"
	"github.com/grovetools/wastenet/pkg/daemon"
	"github.com/grovetools/wastenet/pkg/paths"
)

// NewDaemonCmd groups the daemon lifecycle commands.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and manage the wastenet daemon",
	}
	cmd.AddCommand(newDaemonStartCmd(), newDaemonStopCmd(), newDaemonStatusCmd(), newDaemonLogsCmd())
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return runDaemon(cmd, cfg, cfgPath)
		},
	}
}

func runDaemon(cmd *cobra.Command, cfg *config.Config, cfgPath string) error {
	logger := cli.GetLogger(cmd, "daemon")

	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	pidPath := paths.PidFilePath()
	if err := pidfile.Acquire(pidPath); err != nil {
		return err
	}
	defer pidfile.Release(pidPath)

	recorder := metrics.NewRecorder(prom.NewRegistry())
	st := store.New(store.WithMutationObserver(recorder))
	reg := notifier.NewRegistry(notifier.Options{
		QueueSize:   cfg.Notifier.QueueSize,
		SendTimeout: config.Duration(cfg.Notifier.SendTimeout, notifier.DefaultSendTimeout),
	}, logger.WithField("subsystem", "notifier"))
	reg.SetRecorder(recorder)

	eng := engine.New(st, reg, logger)

	// 1. Persistence
	var loader engine.RecordLoader
	persistence := "memory"
	if *cfg.Store.Persist {
		db, err := persist.NewSQLiteStore(dbPath(cfg))
		if err != nil {
			return err
		}
		defer db.Close()

		writer := persist.NewWriter(db, logger.WithField("subsystem", "persist"))
		st.SetMutationSink(writer)
		interval := config.Duration(cfg.Store.FlushInterval, time.Second)
		eng.Register(engine.WorkerFunc{WorkerName: "persist", Fn: func(ctx context.Context) error {
			writer.Run(ctx, interval)
			return nil
		}})
		loader = db
		persistence = dbPath(cfg)
	}

	bootCtx, cancelBoot := context.WithTimeout(cmd.Context(), 10*time.Second)
	err := eng.Bootstrap(bootCtx, loader, cfg.Seeds())
	cancelBoot()
	if err != nil {
		return fmt.Errorf("failed to load bins: %w", err)
	}

	// 2. Broker relays
	relays, err := registerRelays(eng, cfg, logger)
	if err != nil {
		return err
	}

	// 3. Config watcher
	if *cfg.Server.ConfigWatch && cfgPath != "" {
		debounce := time.Duration(cfg.Server.ConfigDebounceMs) * time.Millisecond
		watcher, err := daemon.NewConfigWatcher([]string{cfgPath}, debounce, func(path string) {
			next, err := config.Load(path)
			if err != nil {
				logger.WithError(err).Warn("Ignoring invalid config change")
				return
			}
			eng.RequestReload(next.Seeds())
		}, logger.WithField("subsystem", "config"))
		if err != nil {
			logger.WithError(err).Warn("Config watching disabled")
		} else {
			eng.Register(watcher)
		}
	}

	// 4. HTTP server
	heartbeat := config.Duration(cfg.Server.Heartbeat, server.DefaultHeartbeat)
	srv := server.New(eng, server.Options{
		Addr:         cfg.Server.Addr,
		SocketPath:   socketPath(cfg),
		Heartbeat:    heartbeat,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 10*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 10*time.Second),
	}, logger.WithField("subsystem", "server"))
	srv.SetMetrics(recorder)
	srv.SetRunningConfig(&server.RunningConfig{
		Addr:        cfg.Server.Addr,
		Socket:      socketPath(cfg),
		Heartbeat:   heartbeat,
		QueueSize:   cfg.Notifier.QueueSize,
		SendTimeout: reg.SendTimeout(),
		Persistence: persistence,
		Relays:      relays,
		ConfigFile:  cfgPath,
		StartedAt:   time.Now(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engineDone := make(chan struct{})
	go func() {
		eng.Start(ctx)
		close(engineDone)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Received signal, shutting down")
	case runErr = <-serverErr:
		logger.WithError(runErr).Error("Server stopped")
	}

	stopDaemon(config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second), eng.Notifier(), srv, cancel, engineDone, logger)
	logger.Info("Daemon stopped")
	return runErr
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// stopDaemon closes the notifier, shuts the server down, then stops the
// workers. The persistence writer's final flush must run after the last
// request the server accepted.
func stopDaemon(timeout time.Duration, streams interface{ Close() }, srv shutdowner, stopWorkers context.CancelFunc, workersDone <-chan struct{}, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	streams.Close()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Server shutdown incomplete")
	}
	stopWorkers()
	select {
	case <-workersDone:
	case <-ctx.Done():
		logger.Warn("Workers did not stop before the shutdown timeout")
	}
}

// registerRelays adds a worker per enabled broker relay and returns their names.
func registerRelays(eng *engine.Engine, cfg *config.Config, logger *logrus.Entry) ([]string, error) {
	var names []string
	if nc := cfg.Relays.NATS; nc.Enabled {
		pub, err := relay.NewNATSPublisher(relay.NATSConfig{URL: nc.URL, JetStream: nc.JetStream})
		if err != nil {
			return nil, fmt.Errorf("nats relay: %w", err)
		}
		eng.Register(relay.New(eng.Notifier(), pub, relay.Options{
			Topic:   relay.SubjectFor(nc.Subject),
			Timeout: config.Duration(nc.Timeout, 2*time.Second),
		}, logger))
		names = append(names, "nats")
	}
	if mc := cfg.Relays.MQTT; mc.Enabled {
		timeout := config.Duration(mc.Timeout, 5*time.Second)
		pub, err := relay.NewMQTTPublisher(relay.MQTTConfig{Broker: mc.Broker, ClientID: mc.ClientID, Timeout: timeout})
		if err != nil {
			return nil, fmt.Errorf("mqtt relay: %w", err)
		}
		eng.Register(relay.New(eng.Notifier(), pub, relay.Options{
			Topic:   relay.TopicFor(mc.Topic),
			Timeout: timeout,
		}, logger))
		names = append(names, "mqtt")
	}
	return names, nil
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			stopped, pid, err := pidfile.Stop(paths.PidFilePath())
			if err != nil {
				return err
			}
			if !stopped {
				pretty.InfoPretty("Daemon is not running")
				return nil
			}
			pretty.Success(fmt.Sprintf("Sent stop signal to daemon (PID %d)", pid))
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return err
			}
			if !running {
				pretty.Status("Daemon", "stopped")
				return nil
			}
			pretty.Status("Daemon", fmt.Sprintf("running (PID %d)", pid))

			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
			defer cancel()
			rc, err := client.GetConfig(ctx)
			if err != nil {
				pretty.WarnPretty("Daemon is not answering requests")
				return nil
			}
			pretty.Field("Address", rc.Addr)
			if rc.Socket != "" {
				pretty.Field("Socket", rc.Socket)
			}
			pretty.Field("Persistence", rc.Persistence)
			pretty.Field("Uptime", time.Since(rc.StartedAt).Round(time.Second).String())
			if observers, err := client.Observers(ctx); err == nil {
				pretty.Field("Observers", len(observers))
			}
			return nil
		},
	}
}

func newDaemonLogsCmd() *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print today's daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := logging.LogFilePath("daemon", time.Now())
			if _, err := os.Stat(path); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("no daemon log for today at %s", path)
				}
				return err
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:   follow,
				ReOpen:   follow,
				Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
				Logger:   stdlog.New(io.Discard, "", 0),
			})
			if err != nil {
				return fmt.Errorf("failed to open log: %w", err)
			}
			defer t.Cleanup()

			go func() {
				<-cmd.Context().Done()
				_ = t.Stop()
			}()

			out := cmd.OutOrStdout()
			for line := range t.Lines {
				if line.Err != nil {
					return line.Err
				}
				fmt.Fprintln(out, line.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines as they are written")
	return cmd
}
