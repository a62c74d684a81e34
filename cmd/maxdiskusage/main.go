package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/maxdiskusage/internal/audit"
	"git.uuxo.net/uuxo/maxdiskusage/internal/auth"
	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
	"git.uuxo.net/uuxo/maxdiskusage/internal/guard"
	"git.uuxo.net/uuxo/maxdiskusage/internal/handlers"
	"git.uuxo.net/uuxo/maxdiskusage/internal/logging"
	"git.uuxo.net/uuxo/maxdiskusage/internal/metrics"
	"git.uuxo.net/uuxo/maxdiskusage/internal/server"
	"git.uuxo.net/uuxo/maxdiskusage/internal/utils"
	"git.uuxo.net/uuxo/maxdiskusage/internal/workers"
)

var (
	log           = logrus.New()
	versionString = "1.0.0"
)

const defaultConfigFile = "./config.toml"

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", defaultConfigFile, "Path to configuration file \"config.toml\".")
	var genConfig bool
	var genConfigPath string
	var validateOnly bool
	var checkStatement string
	var checkUser string
	var showVersion bool

	flag.BoolVar(&genConfig, "genconfig", false, "Print minimal configuration example and exit.")
	flag.StringVar(&genConfigPath, "genconfig-path", "", "Write configuration to the given file and exit.")
	flag.BoolVar(&validateOnly, "validate-config", false, "Validate configuration and exit without starting server.")
	flag.StringVar(&checkStatement, "check", "", "Evaluate one SQL statement against the configured guard and exit.")
	flag.StringVar(&checkUser, "user", "", "User name the -check statement runs as.")
	flag.BoolVar(&showVersion, "version", false, "Show version information and exit.")
	flag.Parse()

	if showVersion {
		fmt.Printf("maxdiskusage v%s\n", versionString)
		os.Exit(0)
	}

	if genConfig {
		fmt.Println(config.GenerateMinimalConfig())
		os.Exit(0)
	}
	if genConfigPath != "" {
		if err := config.CreateMinimalConfig(genConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", genConfigPath)
		os.Exit(0)
	}

	setLoggers(log)

	loader := config.NewLoader(configFile)
	conf, err := loader.Load()
	if err != nil {
		if configFile == defaultConfigFile {
			if _, statErr := os.Stat(configFile); os.IsNotExist(statErr) {
				fmt.Println("No configuration file found. Creating a minimal config.toml...")
				if err := config.CreateMinimalConfig(configFile); err != nil {
					log.Fatalf("Failed to create minimal config: %v", err)
				}
				fmt.Println("Minimal config.toml created. Please review and modify as needed, then restart.")
				os.Exit(0)
			}
		}
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if conf.Build.Version != "" {
		versionString = conf.Build.Version
	}

	if err := config.ValidateConfig(conf); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	if validateOnly {
		log.Info("Configuration validation completed successfully!")
		os.Exit(0)
	}

	if checkStatement != "" {
		os.Exit(runCheck(conf, checkStatement, checkUser, os.Stdout))
	}

	logging.SetupLogging(&conf.Logging, log)
	logging.LogSystemInfo(log, versionString)

	log.Infof("Guard: monitored_path=%s min_free_mb=%d max_used_percent=%d action=%s warn_skip_count=%d",
		conf.Guard.MonitoredPath, conf.Guard.MinFreeMB, conf.Guard.MaxUsedPercent, conf.Guard.Mode, conf.Guard.WarnSkipCount)

	if err := logging.WritePIDFile(conf.Server.PIDFilePath, log); err != nil {
		log.Fatalf("Error writing PID file: %v", err)
	}

	metrics.InitMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := workers.NewPoolFromConfig(&conf.Workers)
	pool.Start()

	auditLog, err := audit.New(&conf.Audit)
	if err != nil {
		log.Fatalf("Failed to initialize audit log: %v", err)
	}
	var mirror *audit.RedisMirror
	if conf.Redis.RedisEnabled {
		mirror, err = audit.NewRedisMirror(ctx, &conf.Redis)
		if err != nil {
			log.WithError(err).Warn("Redis audit mirror unavailable. Continuing without it.")
		} else {
			auditLog.AttachMirror(mirror, pool)
		}
	}

	store := config.NewStore(conf.Guard)
	loader.Watch(store)

	g, authenticator, err := buildGuard(conf, store, auditLog)
	if err != nil {
		log.Fatalf("Failed to initialize guard: %v", err)
	}
	logInitialSnapshot(g)
	if auth.HeaderTrustExposed(conf.Server.BindIP, conf.Security) {
		log.Warnf("JWT is disabled and the API listens on %q: any client can claim a privileged user with the %s header. Bind to a loopback address or set enablejwt = true.",
			conf.Server.BindIP, auth.UserHeader)
	}

	var db *guard.DB
	if conf.Database.Enabled {
		db, err = guard.OpenSQLite(conf.Database.Path, g)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
	}

	mux := http.NewServeMux()
	api := handlers.NewAPI(g, authenticator, db, versionString)
	if mirror != nil {
		api.WithHistory(mirror)
	}
	api.Register(mux)
	if conf.Metrics.Enabled {
		mux.Handle(conf.Metrics.Path, promhttp.Handler())
		log.Infof("Metrics exposed at %s", conf.Metrics.Path)
		go metrics.RunSystemMetrics(15*time.Second, ctx.Done())
	}

	srv := server.New(&conf.Server, mux)
	stopped := make(chan struct{})
	server.SetupGracefulShutdown(srv, utils.ParseDuration(conf.Server.ShutdownTimeout, 30*time.Second), cancel, func() {
		defer close(stopped)
		if db != nil {
			if err := db.Close(); err != nil {
				log.Errorf("Failed to close database: %v", err)
			}
		}
		pool.Stop()
		if mirror != nil {
			mirror.Close()
		}
		logging.RemovePIDFile(conf.Server.PIDFilePath, log)
	})

	server.PrintStartupBanner(versionString, srv.Addr, conf.Guard.MonitoredPath)
	if err := server.Start(srv); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	<-stopped
}

func logInitialSnapshot(g *guard.Guard) {
	path := g.Config().MonitoredPath
	snap, err := g.Snapshot()
	if err != nil {
		log.Warnf("Cannot read filesystem statistics for %s: %v. Write statements will be blocked until it is readable.", path, err)
		return
	}
	log.Infof("Monitoring %s: %s free, %d%% used", path, utils.FormatMB(snap.FreeMB()), snap.UsedPercent())
}
