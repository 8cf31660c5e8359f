package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rgeddes/contentd/internal/auth"
	"github.com/rgeddes/contentd/internal/cfg"
	"github.com/rgeddes/contentd/internal/content"
	"github.com/rgeddes/contentd/internal/contenthttp"
	"github.com/rgeddes/contentd/internal/health"
	"github.com/rgeddes/contentd/internal/httpmw"
	"github.com/rgeddes/contentd/internal/httpserver"
	"github.com/rgeddes/contentd/internal/log"
	"github.com/rgeddes/contentd/internal/metrics"
	"github.com/rgeddes/contentd/internal/opshttp"
	"github.com/rgeddes/contentd/internal/otelx"
	"github.com/rgeddes/contentd/internal/prof"
	"github.com/rgeddes/contentd/internal/ratelimit"
	"github.com/rgeddes/contentd/internal/sitehandler"
	v "github.com/rgeddes/contentd/internal/version"
	"github.com/rgeddes/contentd/internal/webassets"
)

const appName = "contentd"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, "CONTENTD_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             appName,
		Version:         vi.Version,
		Level:           lvl,
		StacktraceLevel: stLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"data_dir", conf.DataDir,
		"backup_dir", conf.BackupDir,
		"site_dir", conf.SiteDir,
		"users_file", conf.UsersFile,
		"enable_dir_watch", conf.EnableDirWatch,
		"enable_s3_mirror", conf.EnableS3Mirror,
		"enable_pprof", conf.EnablePprof,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(appName, "server", &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       appName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer func() { stopProf() }()

	// Insecure is fine here, the exporter only ever talks to a collector on
	// localhost which forwards upstream over TLS.
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   appName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	reg := content.DefaultRegistry()

	store, err := content.NewFileStore(conf.DataDir, reg)
	if err != nil {
		L.Error(ctx, err, "failed to open content store", "data_dir", conf.DataDir)
		os.Exit(1)
	}

	var mirror content.Mirror
	if conf.EnableS3Mirror {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		mirror = content.NewS3Mirror(s3.NewFromConfig(awsCfg), conf.MirrorS3Bucket, conf.MirrorS3Prefix)
		L.Info(ctx, "backup mirroring to S3 enabled",
			"bucket", conf.MirrorS3Bucket, "prefix", conf.MirrorS3Prefix)
	}

	backups, err := content.NewBackupManager(conf.BackupDir, store, mirror, L)
	if err != nil {
		L.Error(ctx, err, "failed to open backup store", "backup_dir", conf.BackupDir)
		os.Exit(1)
	}

	svc, err := content.NewService(content.ServiceOptions{
		Store:    store,
		Backups:  backups,
		Registry: reg,
		Logger:   L,
		Metrics:  m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to build content service")
		os.Exit(1)
	}

	if conf.EnableDirWatch {
		watcher, err := content.NewDirWatcher(store, svc, reg, L, m)
		if err != nil {
			// out-of-band edit detection is an aid, not a requirement
			L.Warn(ctx, "dir watcher unavailable, external edits will not advance lastModified", "error", err)
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil {
					L.Error(ctx, err, "dir watcher stopped")
				}
			}()
		}
	}

	users, err := auth.LoadUserStore(conf.UsersFile)
	if err != nil {
		L.Error(ctx, err, "failed to load users file", "users_file", conf.UsersFile)
		os.Exit(1)
	}
	if users.Empty() && conf.SeedAdminPassword != "" {
		if err := users.Seed("admin", conf.SeedAdminPassword, conf.BcryptCost); err != nil {
			L.Error(ctx, err, "failed to seed admin user")
			os.Exit(1)
		}
		L.Info(ctx, "seeded initial admin user", "username", "admin")
	}

	gateAuth, err := auth.NewGate(auth.GateOptions{
		Users:      users,
		Secret:     []byte(conf.AuthSecret),
		TokenTTL:   conf.TokenTTL,
		BcryptCost: conf.BcryptCost,
		Logger:     L,
		Metrics:    m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to build auth gate")
		os.Exit(1)
	}

	api := contenthttp.New(svc, gateAuth, reg, L)

	siteHandler, err := sitehandler.New(sitehandler.Options{
		Logger:     L,
		Site:       sitehandler.NewDirSite(conf.SiteDir),
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	var gate health.ShutdownGate

	readiness := health.All(
		gate.Probe(),
		health.Named("data-dir", health.CheckFunc(func(context.Context) error {
			if _, err := os.Stat(store.Dir()); err != nil {
				return fmt.Errorf("unavailable")
			}
			return nil
		})),
	)

	limiter := ratelimit.New(ctx,
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		MaxBodyBytes: conf.MaxBodyBytes,
		APIRoutes:    api.RegisterRoutes,
		SiteHandler:  siteHandler,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// admin listener carries metrics, health checks and pprof. It rejects
	// public source addresses in middleware in case the firewall in front of
	// it is ever misconfigured.
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness first so the load balancer stops sending new requests,
	// then give in-flight work time to finish
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(30 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// NOTIFY_SOCKET is set when started under systemd with Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
