package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/trailtours/apiserver/config"
	"github.com/trailtours/apiserver/internal/auth"
	"github.com/trailtours/apiserver/internal/db"
	"github.com/trailtours/apiserver/internal/email"
	"github.com/trailtours/apiserver/internal/handlers"
	"github.com/trailtours/apiserver/internal/middleware"
	"github.com/trailtours/apiserver/internal/mq"
	"github.com/trailtours/apiserver/internal/services"
	"github.com/trailtours/apiserver/internal/storage"
	"github.com/trailtours/apiserver/internal/store"
)

// Server wraps the HTTP server, router, and owned resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	limiter    *middleware.RateLimiter
}

// New constructs a fully wired Server from config.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	issuer := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TokenTTL)
	userRepo := store.NewUserRepository(dbConn)
	tourRepo := store.NewTourRepository(dbConn)

	sender, queue, err := newEmailSender(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	objStorage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, err
	}
	if err := objStorage.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, fmt.Errorf("ensure storage bucket: %w", err)
	}

	authService := services.NewAuthService(userRepo, issuer, sender, config.ResetTokenTTL, slog.Default())
	tourService := services.NewTourService(tourRepo, objStorage)
	authHandler := handlers.NewAuthHandler(authService, issuer, cfg.JWT.CookieTTL, cfg.Production())

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())

	router := chi.NewRouter()
	router.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Logger,
		chimw.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/v1/users", func(r chi.Router) {
		r.Use(limiter.Middleware)
		handlers.UserRouter(r, authHandler)
	})
	router.Route("/api/v1/tours", func(r chi.Router) {
		handlers.TourRouter(r, tourService, authHandler.Protect)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		limiter:    limiter,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and releases owned resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

// newEmailSender selects the delivery path from config. The returned MQ is
// non-nil only for the queue provider and is owned by the server.
func newEmailSender(ctx context.Context, cfg config.Config) (email.Sender, *mq.MQ, error) {
	switch cfg.Email.Provider {
	case "sendgrid":
		return email.NewSendGridSender(cfg.Email), nil, nil
	case "queue":
		backend, err := NewMQBackend(ctx, cfg.MQ)
		if err != nil {
			return nil, nil, err
		}
		queue := mq.New(backend)
		return email.NewQueueSender(queue), queue, nil
	default:
		return nil, nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}

// NewMQBackend constructs the configured broker backend. Shared with the
// emailworker command.
func NewMQBackend(ctx context.Context, cfg config.MQConfig) (mq.Backend, error) {
	switch cfg.Backend {
	case "rabbitmq":
		return mq.NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return mq.NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

func newObjectStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "minio":
		client, err := storage.NewMinioClient(cfg.Storage.Minio)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(client), nil
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.Storage.GCS)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
