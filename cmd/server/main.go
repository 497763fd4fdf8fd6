package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "voxelcraft.ai/blockphys/internal/persistence/log"
	"voxelcraft.ai/blockphys/internal/sim/blockphys"
	"voxelcraft.ai/blockphys/internal/sim/catalogs"
	"voxelcraft.ai/blockphys/internal/sim/physics/boxworld"
	"voxelcraft.ai/blockphys/internal/sim/tuning"
	"voxelcraft.ai/blockphys/internal/sim/voxelhost"
	"voxelcraft.ai/blockphys/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + catalogs)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	simLogger := log.New(os.Stdout, "[blockphys] ", log.LstdFlags|log.Lmicroseconds)
	obsLogger := log.New(os.Stdout, "[observer] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	worldDir := filepath.Join(*dataDir, "worlds", tune.World.Name)
	_ = os.MkdirAll(worldDir, 0o755)

	// Optional: read-model index backend (does not affect the simulation).
	idx, err := openRuntimeIndex(worldDir, tune.World.Name, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	h, err := voxelhost.New(voxelhost.Config{Name: tune.World.Name, Gen: tune.World}, cats)
	if err != nil {
		logger.Fatalf("host: %v", err)
	}
	engineCfg := boxworld.DefaultConfig()
	engineCfg.FixedTimeStep = tune.FixedTimeStep
	sched, err := blockphys.New(blockphys.Config{
		Tuning: tune,
		Host:   h,
		World:  boxworld.New(engineCfg),
		Logger: simLogger,
	})
	if err != nil {
		logger.Fatalf("scheduler: %v", err)
	}

	// The mirror must outlive the loggers: their final Close enqueues the
	// last hourly files.
	mirror, err := buildLogMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("log mirror: %v", err)
	}
	defer mirror.Close()
	logOpts := persistlog.LoggerOptions{}
	if mirror != nil {
		logOpts.OnClose = mirror.Enqueue
	}

	tickLog := persistlog.NewTickLoggerWithOptions(worldDir, logOpts)
	auditLog := persistlog.NewAuditLoggerWithOptions(worldDir, logOpts)
	defer tickLog.Close()
	defer auditLog.Close()
	sched.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	sched.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	obsSrv := observer.NewServer(obsLogger)
	sched.SetFrameSink(obsSrv)

	ctx, cancel := signalContext()
	defer cancel()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("scheduler stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(tune.World.Name, sched, obsSrv, idx, mirror))

	enableAdminHTTP := envBool("BP_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("BP_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		newAdminAPI(sched, h, logger).register(mux)
		mux.HandleFunc("/v1/observe", obsSrv.WSHandler())
		mux.HandleFunc("/v1/observe/latest", obsSrv.LatestHandler())
	} else {
		logger.Printf("admin endpoints disabled (BP_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s tick=%s", *addr, tune.World.Name, tune.TickInterval())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	<-schedDone
	m := sched.Metrics()
	logger.Printf("stopped at tick=%d spawned=%d retired=%d", m.Tick, m.SpawnedTotal, m.RetiredTotal)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiTickLogger struct {
	a blockphys.TickLogger
	b blockphys.TickLogger
}

func (m multiTickLogger) WriteTick(entry blockphys.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a blockphys.AuditLogger
	b blockphys.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry blockphys.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
