package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/dispatch"
	"github.com/parley-ai/parley/internal/event"
	"github.com/parley-ai/parley/internal/forward"
	"github.com/parley-ai/parley/internal/logging"
	"github.com/parley-ai/parley/internal/server"
	"github.com/parley-ai/parley/internal/session"
	"github.com/parley-ai/parley/internal/storage"
	"github.com/parley-ai/parley/pkg/types"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the parley engine",
	Long: `Start parley as a server that accepts inbound chat events over HTTP,
buffers and merges them per conversation, and forwards dispatches to the
configured agent endpoint.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8199, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	// Initialize paths
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	// Load configuration
	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	// Config-level log settings apply unless the flag overrode them.
	if appConfig.Log != nil && !cmd.Flags().Changed("log-level") {
		lcfg := logging.DefaultConfig()
		lcfg.Level = logging.ParseLevel(appConfig.Log.Level)
		lcfg.Pretty = appConfig.Log.Pretty || printLogs
		logging.Init(lcfg)
	}

	if appConfig.Forward == nil || appConfig.Forward.URL == "" {
		return fmt.Errorf("forward.url is required in config for serve mode")
	}

	logging.Info().
		Str("version", Version).
		Str("directory", workDir).
		Msg("starting parley")

	// Initialize storage
	store := storage.New(config.ResolveDataDir(appConfig.DataDir))

	// Session store
	sessions := session.NewStore(store, sessionOptions(appConfig))
	defer sessions.Close()

	// Downstream forwarder and dispatch buffer
	forwarder := forward.New(sessions, forwardOptions(appConfig))
	buffer := dispatch.New(forwarder.Process, bufferOptions(appConfig))
	defer buffer.Dispose()

	// Watch config locations for live changes
	watcher, err := config.NewWatcher(workDir)
	if err != nil {
		logging.Warn().Err(err).Msg("config watcher unavailable")
	} else if watcher != nil {
		watcher.Start()
		defer watcher.Stop()
	}

	// Configure server
	serverConfig := server.DefaultConfig()
	serverConfig.Hostname = serveHostname
	serverConfig.Port = servePort
	if sc := appConfig.Server; sc != nil {
		if sc.Hostname != "" && !cmd.Flags().Changed("hostname") {
			serverConfig.Hostname = sc.Hostname
		}
		if sc.Port != nil && !cmd.Flags().Changed("port") {
			serverConfig.Port = *sc.Port
		}
		if sc.EnableCORS != nil {
			serverConfig.EnableCORS = *sc.EnableCORS
		}
	}

	srv := server.New(serverConfig, appConfig, sessions, buffer)

	// Apply config reloads to the gateway. Engine-level settings (storage
	// paths, debounce windows) still take effect on restart.
	unsubscribe := event.Subscribe(event.ConfigUpdated, func(e event.Event) {
		updated, err := config.Load(workDir)
		if err != nil {
			logging.Warn().Err(err).Msg("config reload failed, keeping previous")
			return
		}
		srv.SetConfig(updated)
	})
	defer unsubscribe()

	// Start server in goroutine
	go func() {
		logging.Info().
			Str("addr", fmt.Sprintf("http://%s:%d", serverConfig.Hostname, serverConfig.Port)).
			Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")

	// Graceful shutdown with timeout; the deferred Dispose and Close then
	// cancel pending buffer work and flush session state.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}

// sessionOptions materializes session store options from config, applying
// defaults for absent fields.
func sessionOptions(cfg *types.Config) session.Options {
	opts := session.Options{Owner: cfg.Owner}
	if opts.Owner == "" {
		opts.Owner = "parley"
	}

	if sc := cfg.Session; sc != nil {
		opts.Policy.DailyResetHour = sc.DailyResetHour
		if sc.IdleMinutes != nil {
			opts.Policy.IdleMinutes = *sc.IdleMinutes
		}
	}

	if gc := cfg.Group; gc != nil {
		opts.Group.Activation = gc.Activation
		if gc.ReplyWindowMinutes != nil {
			opts.Group.ReplyWindowMinutes = *gc.ReplyWindowMinutes
		}
		opts.Group.ForumTopicIsolation = gc.ForumTopicIsolation
		opts.Group.SelfHandle = gc.SelfHandle
		opts.Group.NamePatterns = gc.NamePatterns
	}
	if opts.Group.Activation == "" {
		opts.Group.Activation = session.ActivationMention
	}

	return opts
}

// bufferOptions materializes dispatch buffer options from config. An explicit
// zero debounce means immediate dispatch, so pointers decide whether the
// default applies.
func bufferOptions(cfg *types.Config) dispatch.Options {
	opts := dispatch.Options{
		InboundDebounce: dispatch.DefaultInboundDebounce,
		QueueDebounce:   dispatch.DefaultQueueDebounce,
	}

	if bc := cfg.Buffer; bc != nil {
		if bc.InboundDebounceMs != nil {
			opts.InboundDebounce = time.Duration(*bc.InboundDebounceMs) * time.Millisecond
		}
		if bc.QueueDebounceMs != nil {
			opts.QueueDebounce = time.Duration(*bc.QueueDebounceMs) * time.Millisecond
		}
		if bc.QueueCap != nil {
			opts.QueueCap = *bc.QueueCap
		}
		if bc.DedupCacheSize != nil {
			opts.DedupCacheSize = *bc.DedupCacheSize
		}
		if bc.BusyReleaseTimeoutMs != nil {
			opts.BusyReleaseTimeout = time.Duration(*bc.BusyReleaseTimeoutMs) * time.Millisecond
		}
	}

	return opts
}

// forwardOptions materializes forwarder options from config.
func forwardOptions(cfg *types.Config) forward.Options {
	opts := forward.Options{
		MaxRetries: forward.DefaultMaxRetries,
		MaxHistory: session.DefaultMaxHistory,
	}

	if fc := cfg.Forward; fc != nil {
		opts.URL = fc.URL
		opts.Headers = fc.Headers
		if fc.TimeoutSeconds != nil {
			opts.Timeout = time.Duration(*fc.TimeoutSeconds) * time.Second
		}
		if fc.MaxRetries != nil {
			opts.MaxRetries = *fc.MaxRetries
		}
	}
	if sc := cfg.Session; sc != nil && sc.MaxHistory != nil {
		opts.MaxHistory = *sc.MaxHistory
	}

	return opts
}
