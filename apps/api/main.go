package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/appgen/apps/api/echo"
	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/asset"
	"github.com/trezcool/appgen/core/build"
	"github.com/trezcool/appgen/core/events"
	emailsvc "github.com/trezcool/appgen/services/email"
	"github.com/trezcool/appgen/services/executor/remote"
	"github.com/trezcool/appgen/services/executor/simulated"
	logsvc "github.com/trezcool/appgen/services/logger"
	metricsvc "github.com/trezcool/appgen/services/metrics"
	"github.com/trezcool/appgen/services/notifier"
	"github.com/trezcool/appgen/storage/blob/fsblob"
	"github.com/trezcool/appgen/storage/blob/minioblob"
	"github.com/trezcool/appgen/storage/blob/s3blob"
	"github.com/trezcool/appgen/storage/database"
	inmemdb "github.com/trezcool/appgen/storage/database/inmem"
	redisrepos "github.com/trezcool/appgen/storage/database/redis"
	sqlxrepos "github.com/trezcool/appgen/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	ctx := context.Background()

	// set up job store
	repo, closeStore, err := setUpStore(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up job store: %v", err), err)
	}
	defer func() {
		if err = closeStore.Close(); err != nil {
			dbLogger.Error(fmt.Sprintf("closing job store: %v", err), err)
		}
	}()

	// set up blob store
	blobs, err := setUpBlobs(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up blob store: %v", err), err)
	}

	// set up services
	hub := events.NewHub(conf.Hub.SubscriberBuffer, logger)
	metrics := metricsvc.New()
	metrics.WatchHub(hub)

	buildSvc := build.NewService(repo, setUpExecutor(conf, blobs, logger), hub, logger, build.Options{
		WatchdogTimeout: conf.Builder.WatchdogTimeout,
		Observer:        metrics,
	})
	if n, err := buildSvc.Recover(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("recovering unfinished jobs: %v", err), err)
	} else if n > 0 {
		logger.Warn(fmt.Sprintf("failed %d jobs left unfinished by a previous run", n))
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	notifyCtx, stopNotifier := context.WithCancel(ctx)
	notified := notifier.New(hub, buildSvc, mailSvc, conf, logger).Start(notifyCtx)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:     conf,
			Logger:   logger,
			BuildSvc: buildSvc,
			AssetSvc: asset.NewService(blobs, conf.Assets.MaxBytes),
			Hub:      hub,
			Metrics:  metrics,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}

		// fail in-flight builds, then let the notifier drain the last events
		if err = buildSvc.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop builds gracefully: %v", err), err)
		}
		stopNotifier()
		<-notified
		hub.Close()
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// setUpStore opens the configured job store backend.
func setUpStore(ctx context.Context, conf *core.Config) (build.Repository, io.Closer, error) {
	switch conf.Store.Backend {
	case "", "memory":
		db, err := inmemdb.Open()
		if err != nil {
			return nil, nil, err
		}
		return inmemdb.NewJobRepository(db), nopCloser, nil

	case "postgres":
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, nil, err
		}
		db, err := database.OpenX(conf)
		if err != nil {
			return nil, nil, err
		}
		if err = database.Migrate(db.DB, "up"); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return sqlxrepos.NewJobRepository(db), db, nil

	case "redis":
		rdb, err := redisrepos.Open(ctx, conf.Redis)
		if err != nil {
			return nil, nil, err
		}
		return redisrepos.NewJobRepository(rdb, conf.Redis.KeyPrefix), rdb, nil
	}
	return nil, nil, errors.Errorf("unknown store backend %q", conf.Store.Backend)
}

// setUpBlobs opens the configured blob store backend, shared by uploaded assets and build artifacts.
func setUpBlobs(ctx context.Context, conf *core.Config) (asset.BlobStore, error) {
	switch conf.Blob.Backend {
	case "", "fs":
		return fsblob.New(conf.Blob.Dir)
	case "s3":
		return s3blob.New(ctx, s3blob.Config{
			Bucket:   conf.Blob.Bucket,
			Region:   conf.Blob.Region,
			Endpoint: conf.Blob.Endpoint,
			Prefix:   conf.Blob.Prefix,
		})
	case "minio":
		return minioblob.New(ctx, minioblob.Config{
			Endpoint:  conf.Blob.Endpoint,
			AccessKey: conf.Blob.AccessKey,
			SecretKey: conf.Blob.SecretKey,
			Bucket:    conf.Blob.Bucket,
			UseSSL:    conf.Blob.UseSSL,
			Prefix:    conf.Blob.Prefix,
		})
	}
	return nil, errors.Errorf("unknown blob backend %q", conf.Blob.Backend)
}

func setUpExecutor(conf *core.Config, blobs asset.BlobStore, logger core.Logger) build.Executor {
	if conf.Builder.Executor == "remote" {
		return remote.New(remote.Config{
			BaseURL:      conf.Builder.RemoteURL,
			Token:        conf.Builder.RemoteToken,
			PollInterval: conf.Builder.PollInterval,
		}, logger)
	}
	return simulated.New(blobs, conf.Server.PublicBaseURL, conf.Builder.StepDelay)
}
