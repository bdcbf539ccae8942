// dnsswitcher lets clients on a MikroTik-served network switch their own DNS
// servers. It serves a small web page and JSON API; each switch becomes a
// static DHCP lease and a per-client DHCP option on the router.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"gitlab.bluewillows.net/root/dnsswitcher/internal/api"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/config"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/device"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/health"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/metrics"
	"gitlab.bluewillows.net/root/dnsswitcher/internal/reconciler"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/dnsprobe"
	"gitlab.bluewillows.net/root/dnsswitcher/pkg/sshutil"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-01-03"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	metrics.SetBuildInfo(Version, runtime.Version())

	logger.Info("dnsswitcher starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.Any("config", cfg),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialCfg := cfg.DialConfig()
	dialCfg.Logger = logger

	if cfg.Device.SSHTunnel {
		tunnel, err := sshutil.NewTunnel(cfg.Device.SSH, sshutil.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("creating ssh tunnel: %w", err)
		}
		defer tunnel.Close()
		dialCfg.Tunnel = tunnel
		logger.Info("device connections tunnelled over ssh", slog.String("ssh", cfg.Device.SSH.Address()))
	}

	dial, err := device.NewDialer(dialCfg)
	if err != nil {
		return fmt.Errorf("creating device dialer: %w", err)
	}
	session := device.NewSession(dial, device.WithLogger(logger))
	defer session.Close()

	// The router may come up after us; requests dial on demand meanwhile.
	go session.KeepTrying(ctx)

	rec := reconciler.New(session,
		reconciler.WithConfig(cfg.ReconcilerConfig()),
		reconciler.WithLogger(logger),
	)

	apiServer := api.New(rec,
		api.WithLogger(logger),
		api.WithVersion(Version),
		api.WithCustomDNS(cfg.CustomDNSString()),
		api.WithTrustRealIP(cfg.TrustRealIP),
	)
	if err := apiServer.Start(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	healthServer := health.New(cfg.HealthPort, health.WithLogger(logger))
	healthServer.RegisterChecker("device", session.Ping)
	if cfg.DNSProbe {
		if err := registerProbes(healthServer, cfg, logger); err != nil {
			return err
		}
	}
	if err := healthServer.Start(); err != nil {
		return fmt.Errorf("starting health server: %w", err)
	}

	logger.Info("dnsswitcher ready",
		slog.String("api", apiServer.Addr()),
		slog.String("health", healthServer.Addr()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown error", slog.String("error", err.Error()))
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("dnsswitcher shutdown complete")
	return nil
}

// registerProbes adds a degraded checker per custom DNS server. A server that
// does not answer leaves the service usable, but switched clients would lose
// name resolution.
func registerProbes(hs *health.Server, cfg *config.Config, logger *slog.Logger) error {
	for _, server := range cfg.CustomDNS {
		p, err := dnsprobe.New(server.String(),
			dnsprobe.WithName(cfg.DNSProbeName),
			dnsprobe.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("creating dns probe for %s: %w", server, err)
		}
		hs.RegisterDegradedChecker("dns:"+p.Server(), func(ctx context.Context) (bool, string) {
			if err := p.Check(ctx); err != nil {
				return true, err.Error()
			}
			return false, ""
		})
	}
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	logLevel := parseLogLevel(level)

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
