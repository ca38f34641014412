package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskloom/taskloom/internal/attachment"
	attachmentrepo "github.com/taskloom/taskloom/internal/attachment/repositoryimpl"
	"github.com/taskloom/taskloom/internal/comment"
	commentrepo "github.com/taskloom/taskloom/internal/comment/repositoryimpl"
	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/event"
	"github.com/taskloom/taskloom/internal/eventbus"
	"github.com/taskloom/taskloom/internal/notification"
	notificationrepo "github.com/taskloom/taskloom/internal/notification/repositoryimpl"
	"github.com/taskloom/taskloom/internal/pushsubscription"
	pushsubrepo "github.com/taskloom/taskloom/internal/pushsubscription/repositoryimpl"
	"github.com/taskloom/taskloom/internal/reminder"
	"github.com/taskloom/taskloom/internal/store"
	"github.com/taskloom/taskloom/internal/task"
	taskrepo "github.com/taskloom/taskloom/internal/task/repositoryimpl"
	"github.com/taskloom/taskloom/internal/template"
	templaterepo "github.com/taskloom/taskloom/internal/template/repositoryimpl"
	"github.com/taskloom/taskloom/pkg/blob"
	"github.com/taskloom/taskloom/pkg/clog"
	"github.com/taskloom/taskloom/pkg/panicerr"

	server "github.com/taskloom/taskloom/internal"
)

func main() {
	// "sentinel" supervises a "<binary> run" child and restarts it on crash
	// or binary update. "run" is what the sentinel launches; a bare
	// invocation serves directly.
	if len(os.Args) > 1 && os.Args[1] == "sentinel" {
		runSentinel()
		return
	}
	run()
}

func run() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup blob store for attachments and templates
	var blobs blob.Store
	switch env.BlobEnv.Type {
	case "s3":
		blobs, err = blob.NewS3Store(context.Background(), env.BlobEnv.S3Bucket, env.BlobEnv.S3Prefix, env.BlobEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 blob store", "error", err)
			os.Exit(1)
		}
	default:
		blobs, err = blob.NewLocalStore(env.BlobEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local blob store", "error", err)
			os.Exit(1)
		}
	}

	// Setup event bus
	bus := eventbus.New()

	// Setup repositories
	var (
		taskRepo         task.Repository
		commentRepo      comment.Repository
		attachmentRepo   attachment.Repository
		notificationRepo notification.Repository
		pushSubRepo      pushsubscription.Repository
	)
	closeStore := func() {}
	switch env.StoreEnv.Driver {
	case "postgres":
		pool, err := store.OpenPostgres(context.Background(), env.StoreEnv.PostgresDSN)
		if err != nil {
			slog.Error("failed to open postgres store", "error", err)
			os.Exit(1)
		}
		taskRepo = taskrepo.NewPostgresRepository(pool)
		commentRepo = commentrepo.NewPostgresRepository(pool)
		attachmentRepo = attachmentrepo.NewPostgresRepository(pool)
		notificationRepo = notificationrepo.NewPostgresRepository(pool)
		pushSubRepo = pushsubrepo.NewPostgresRepository(pool)
		closeStore = pool.Close
	default:
		db, err := store.OpenSQLite(env.StoreEnv.SQLitePath)
		if err != nil {
			slog.Error("failed to open sqlite store", "error", err)
			os.Exit(1)
		}
		taskRepo = taskrepo.NewSQLiteRepository(db)
		commentRepo = commentrepo.NewSQLiteRepository(db)
		attachmentRepo = attachmentrepo.NewSQLiteRepository(db)
		notificationRepo = notificationrepo.NewSQLiteRepository(db)
		pushSubRepo = pushsubrepo.NewSQLiteRepository(db)
		closeStore = func() { _ = db.Close() }
	}
	templateRepo := templaterepo.NewYAMLRepository(blobs)

	// Setup notification pipeline
	vapidEnv := config.VAPIDEnvFromEnv(env)
	emitter := notification.NewEmitter(notificationRepo, bus)
	pushSender := notification.NewSender(vapidEnv, pushSubRepo)
	pushDispatcher := notification.NewDispatcher(bus, notificationRepo, pushSender)

	// Setup services
	taskSvc := task.NewService(taskRepo, emitter, bus)
	commentSvc := comment.NewService(commentRepo, taskRepo, emitter, bus)
	attachmentSvc := attachment.NewService(attachmentRepo, taskRepo, blobs)
	templateSvc := template.NewService(templateRepo, taskRepo, taskSvc)

	// Setup servers
	taskServer := task.NewServer(taskSvc)
	commentServer := comment.NewServer(commentSvc)
	attachmentServer := attachment.NewServer(attachmentSvc)
	notificationServer := notification.NewServer(notificationRepo)
	pushServer := notification.NewPushServer(vapidEnv, pushSubRepo, pushSender)
	templateServer := template.NewServer(templateSvc)
	eventServer := event.NewServer(bus)

	srv := server.NewServer(
		env,
		taskServer,
		commentServer,
		attachmentServer,
		notificationServer,
		pushServer,
		templateServer,
		eventServer,
	)

	// Setup background workers
	sweeper := reminder.NewSweeper(config.ReminderEnvFromEnv(env), taskRepo, emitter)
	cleaner := attachment.NewCleaner(bus, blobs)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	startWorker(ctx, "push dispatcher", pushDispatcher.Start)
	startWorker(ctx, "due date sweeper", sweeper.Start)
	startWorker(ctx, "attachment cleaner", cleaner.Start)

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active connections time to finish after stream contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	closeStore()
}

// startWorker runs fn on its own goroutine until ctx is cancelled, logging a
// recovered panic instead of taking the process down.
func startWorker(ctx context.Context, name string, fn func(context.Context)) {
	panicerr.Go(func() error {
		fn(ctx)
		return nil
	}, func(err error) {
		slog.Error("background worker failed", "worker", name, "error", err)
	})
}
