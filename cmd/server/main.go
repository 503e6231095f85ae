// Command sortwatch-server reads the sorting device and serves the SortWatch gRPC API.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/sortwatch/internal/aggregate"
	"github.com/and161185/sortwatch/internal/api"
	"github.com/and161185/sortwatch/internal/collection"
	"github.com/and161185/sortwatch/internal/config"
	"github.com/and161185/sortwatch/internal/device"
	"github.com/and161185/sortwatch/internal/limiter"
	"github.com/and161185/sortwatch/internal/logging"
	"github.com/and161185/sortwatch/internal/migrate"
	"github.com/and161185/sortwatch/internal/model"
	"github.com/and161185/sortwatch/internal/mqtt"
	"github.com/and161185/sortwatch/internal/repository"
	"github.com/and161185/sortwatch/internal/repository/file"
	"github.com/and161185/sortwatch/internal/repository/postgres"
	"github.com/and161185/sortwatch/internal/resolver"
	grpcserver "github.com/and161185/sortwatch/internal/server/grpc"
	"github.com/and161185/sortwatch/internal/service"
	"github.com/and161185/sortwatch/internal/transport"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, starts the device pipeline and serves gRPC.
func main() {
	cfgPath := flag.String("config", "", "path to YAML config (default $CONFIG_PATH, env only when empty)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// no logger yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.Migrate {
		if err := migrate.Up(ctx, cfg.Database.DSN, logger); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN, postgres.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	binRepo := postgres.NewBinRepo(db)
	itemRepo := postgres.NewWasteItemRepo(db)
	userRepo := postgres.NewUserRepo(db)
	logRepo := collectionRepo(cfg.Collection, db, logger)

	// Core
	res := resolver.New(binRepo, cfg.Resolver.TTL, logger)
	agg := aggregate.New(itemRepo, aggregate.Thresholds{
		Category: cfg.Aggregate.CategoryThreshold,
		Bin:      cfg.Aggregate.BinThreshold,
	})
	clog := collection.New(logRepo, logger)

	lim := limiter.NewPG(db.Pool, cfg.Limiter.Window, cfg.Limiter.MaxFails, cfg.Limiter.BlockFor)
	verify := service.NewVerifyService(userRepo, service.LogMailer{Log: logger}, lim, service.VerifyOptions{
		CodeTTL:   cfg.Tokens.CodeTTL,
		TokenTTL:  cfg.Tokens.TokenTTL,
		AccessTTL: cfg.Auth.AccessTTL,
		SignKey:   []byte(cfg.Auth.JWTKey),
	}, logger)

	pub := publisher(cfg.MQTT, logger)
	defer func() { _ = pub.Close() }()

	dec := device.NewDecoder(logger)
	ingest := service.NewIngestService(res, itemRepo, pub, logger)
	deviceDone := startDevice(ctx, cfg.Device, dec, ingest, pub, logger)

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary([]byte(cfg.Auth.JWTKey)),
		),
	}
	if cfg.Server.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled, serving plaintext")
	}
	s := grpc.NewServer(opts...)

	// App service
	app := grpcserver.New(grpcserver.Deps{
		Status:   dec,
		Resolver: res,
		Bins:     binRepo,
		Agg:      agg,
		Log:      clog,
		Verify:   verify,
	})
	api.RegisterSortWatchServer(s, app)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.Server.Reflection {
		reflection.Register(s)
	}

	// Listen
	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr), zap.Bool("tls", cfg.Server.TLSCert != ""))
		errCh <- s.Serve(lis)
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(cfg.Server.ShutdownTimeout):
			s.Stop()
		}
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
		<-deviceDone
		os.Exit(1)
	}

	<-deviceDone
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := ingest.Flush(flushCtx); err != nil {
		logger.Warn("flush pending item", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func collectionRepo(cfg config.CollectionConfig, db *postgres.DB, log *zap.Logger) repository.CollectionLogRepository {
	if cfg.Backend == config.BackendFile {
		log.Info("collection log on file", zap.String("path", cfg.FilePath))
		return file.NewCollectionLogRepo(cfg.FilePath)
	}
	return postgres.NewCollectionLogRepo(db)
}

func publisher(cfg config.MQTTConfig, log *zap.Logger) mqtt.Publisher {
	if !cfg.Enabled {
		return mqtt.Nop{}
	}
	p, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:      cfg.Broker,
		ClientID:    cfg.ClientID,
		TopicPrefix: cfg.TopicPrefix,
	}, log)
	if err != nil {
		// telemetry is optional, ingestion keeps running
		log.Warn("mqtt disabled", zap.Error(err))
		return mqtt.Nop{}
	}
	return p
}

// startDevice runs the serial transport and hot-plug watcher until ctx is
// done. The returned channel closes once the transport has stopped.
func startDevice(ctx context.Context, cfg config.DeviceConfig, dec *device.Decoder, ingest service.IngestService, pub mqtt.Publisher, log *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if !cfg.Enabled {
		log.Info("device transport disabled")
		close(done)
		return done
	}

	t := transport.New(transport.Options{
		Port:              cfg.Port,
		Baud:              cfg.Baud,
		ReadTimeout:       cfg.ReadTimeout,
		ReconnectInterval: cfg.ReconnectInterval,
	}, dec, log, transport.WithStatusHook(func(st device.State) {
		if err := pub.PublishStatus(st); err != nil {
			log.Warn("publish device status", zap.Error(err))
		}
	}))

	if cfg.Hotplug {
		go func() {
			if err := transport.WatchHotplug(ctx, t, log); err != nil && ctx.Err() == nil {
				log.Warn("hotplug watcher stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		defer close(done)
		_ = t.Run(ctx, func(ctx context.Context, ev model.DeviceEvent) {
			if err := ingest.Handle(ctx, ev); err != nil {
				log.Error("ingest device event", zap.Error(err), zap.String("kind", string(ev.Kind)))
			}
		})
	}()
	return done
}
