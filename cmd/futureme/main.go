package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-futureme/internal/application/applock"
	"github.com/go-futureme/internal/application/badge"
	"github.com/go-futureme/internal/application/delivery"
	"github.com/go-futureme/internal/application/events"
	"github.com/go-futureme/internal/application/letter"
	"github.com/go-futureme/internal/application/lifecycle"
	"github.com/go-futureme/internal/application/reconcile"
	"github.com/go-futureme/internal/application/scheduler"
	"github.com/go-futureme/internal/config"
	"github.com/go-futureme/internal/domain"
	"github.com/go-futureme/internal/infrastructure/authn"
	jwtinfra "github.com/go-futureme/internal/infrastructure/jwt"
	"github.com/go-futureme/internal/infrastructure/memory"
	"github.com/go-futureme/internal/infrastructure/metrics"
	"github.com/go-futureme/internal/infrastructure/notifier"
	s3infra "github.com/go-futureme/internal/infrastructure/s3"
	"github.com/go-futureme/internal/infrastructure/sns"
	"github.com/go-futureme/internal/infrastructure/storage"
	"github.com/go-futureme/internal/pkg/keylock"
	transporthttp "github.com/go-futureme/internal/transport/http"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := storage.Open(ctx, cfg.StoreDSN, cfg)
	if err != nil {
		log.Fatalf("open letter store: %v", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Printf("WARN: closing store: %v", err)
		}
	}()

	blobs, err := attachmentStore(ctx, cfg, stores)
	if err != nil {
		log.Fatalf("attachment store: %v", err)
	}

	bus := events.NewBus()
	clock := delivery.SystemClock{}
	m := metrics.New()
	bus.Subscribe(m.Observe)

	center := notifier.NewCenter(presenter(ctx, cfg, bus), notifier.Options{
		Permission:     domain.ParsePermissionState(cfg.NotificationPermission),
		GrantOnRequest: cfg.GrantPermissionOnRequest,
		Clock:          clock,
	})
	m.RegisterPending(func() float64 { return float64(len(center.Pending())) })

	// Letter service and reconciliation share one per-letter lock set.
	locks := keylock.New()
	sched := scheduler.New(center, stores.Letters, clock, m)
	agg := badge.NewAggregator(stores.Letters, m, clock, bus)
	letters := letter.NewService(stores.Letters, blobs, sched, agg, clock, locks, bus)
	pass := reconcile.New(stores.Letters, locks, bus, m)

	// The notification center starts empty on every launch.
	if _, err := sched.Restore(ctx); err != nil {
		log.Printf("WARN: restoring notification triggers: %v", err)
	}

	bridge := authn.NewBridge(bus, cfg.DeviceAuthAvailable)
	lock, err := applock.New(ctx, bridge, stores.Settings, bus, cfg.AppLockEnabled)
	if err != nil {
		log.Fatalf("session lock: %v", err)
	}
	coord := lifecycle.New(pass, agg, lock, clock, bus, cfg.ReconcileInterval)

	grants, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("grant provider: %v", err)
	}

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Letters:       letters,
		Badge:         agg,
		Lock:          lock,
		Auth:          bridge,
		Grants:        grants,
		Lifecycle:     coord,
		Permissions:   sched,
		Notifications: center,
		Changes:       bus,
		Metrics:       m.Handler(),
		Backend:       stores.Backend,
	})

	// No read or write timeout: unlock waits on the user and /v1/events is
	// a long-lived WebSocket.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return center.Run(gctx) })
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error {
		// Launch counts as becoming active: catch up on anything that came
		// due while the process was not running.
		return coord.Submit(gctx, lifecycle.Event{Kind: lifecycle.Active})
	})
	g.Go(func() error {
		log.Printf("Server starting on :%s (env=%s, store=%s)", cfg.AppPort, cfg.AppEnv, stores.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("stopped with error: %v", err)
		os.Exit(1)
	}
	log.Println("Server stopped")
}

// attachmentStore keeps blobs in S3 when a bucket is configured, otherwise
// next to the letters in the local store.
func attachmentStore(ctx context.Context, cfg *config.Config, stores *storage.Stores) (letter.AttachmentStore, error) {
	if cfg.S3BucketName == "" {
		if stores.Blobs != nil {
			return stores.Blobs, nil
		}
		log.Printf("WARN: S3_BUCKET_NAME not set and store %s keeps no blobs, attachments are kept in memory", stores.Backend)
		return memory.NewBlobStore(), nil
	}
	client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := s3infra.NewStore(client, cfg.S3BucketName)
	store.EnsureBucket(ctx)
	return store, nil
}

// presenter always logs and forwards to the change bus; with a topic set,
// fired notifications are also published to SNS.
func presenter(ctx context.Context, cfg *config.Config, bus *events.Bus) notifier.Presenter {
	ps := notifier.Presenters{notifier.LogPresenter{}, notifier.BusPresenter{Pub: bus}}
	if cfg.SNSTopicARN == "" {
		return ps
	}
	client, err := sns.NewClient(ctx, cfg)
	if err != nil {
		log.Printf("WARN: SNS presenter not available: %v", err)
		return ps
	}
	return append(ps, sns.NewPresenter(client, cfg.SNSTopicARN))
}
