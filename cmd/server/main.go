package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/activity"
	"github.com/studytrack/backend/internal/auth"
	"github.com/studytrack/backend/internal/coach"
	"github.com/studytrack/backend/internal/config"
	"github.com/studytrack/backend/internal/database"
	"github.com/studytrack/backend/internal/logger"
	"github.com/studytrack/backend/internal/metrics"
	"github.com/studytrack/backend/internal/middleware"
	"github.com/studytrack/backend/internal/recommend"
	"github.com/studytrack/backend/internal/sessions"
	"github.com/studytrack/backend/internal/subjects"
)

func main() {
	configDir := flag.String("config", "", "directory holding config.yaml")
	migrateOnly := flag.Bool("migrate-only", false, "run database migrations and exit")
	flag.Parse()

	loader := config.NewLoader(*configDir)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logr := logger.Init(logger.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Debug:      cfg.Server.Mode == "debug",
		Console:    true,
	})
	defer logr.Sync()
	if f := loader.File(); f != "" {
		logr.Info("config loaded", zap.String("file", f))
	}

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logr.Fatal("failed to run migrations", zap.Error(err))
	}
	if version, dirty, err := database.Version(db); err == nil {
		logr.Info("schema ready", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	if *migrateOnly {
		return
	}

	metrics.Register(prometheus.DefaultRegisterer)

	// Recommendation scorer
	cache := recommendationCache(cfg.Redis, logr)
	scorer := recommend.NewScorer(cfg.Recommendation, cache, logr.Named("recommend"))
	scorer.SetObserver(metrics.RecordCacheLookup)

	var exam atomic.Pointer[config.ExamConfig]
	exam.Store(&cfg.Exam)
	examDate := func() (time.Time, bool) { return exam.Load().Time() }

	loader.Watch(func(next *config.Config) {
		scorer.SetConfig(context.Background(), next.Recommendation)
		exam.Store(&next.Exam)
		logr.Info("config reloaded", zap.Any("recommendation", next.Recommendation))
	}, func(err error) {
		logr.Warn("config reload rejected", zap.Error(err))
	})

	router := newRouter(cfg, db, scorer, examDate, logr)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("mode", cfg.Server.Mode))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("server forced to shutdown", zap.Error(err))
	}
}

func recommendationCache(cfg config.RedisConfig, logr *zap.Logger) recommend.Cache {
	if !cfg.Enabled {
		return recommend.NewMemoryCache()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logr.Warn("redis unavailable, using in-memory recommendation cache", zap.String("addr", cfg.Addr), zap.Error(err))
		rdb.Close()
		return recommend.NewMemoryCache()
	}
	logr.Info("recommendation cache on redis", zap.String("addr", cfg.Addr))
	return recommend.NewRedisCache(rdb)
}

func newRouter(cfg *config.Config, db *sql.DB, scorer *recommend.Scorer, examDate func() (time.Time, bool), logr *zap.Logger) *mux.Router {
	secret := []byte(cfg.JWT.Secret)

	// Initialize services
	activityService := activity.NewService(activity.NewStore(db), logr.Named("activity"))
	sessionService := sessions.NewService(sessions.NewStore(db), activityService, logr.Named("sessions"))
	subjectService := subjects.NewService(subjects.NewStore(db), scorer, logr.Named("subjects"))
	planner := coach.FromConfig(cfg.Coach, logr.Named("coach"))

	// Initialize handlers
	authHandler := auth.NewHandler(db, secret, cfg.JWT.Expiry(), logr.Named("auth"))
	activityHandler := activity.NewHandler(activityService, logr)
	sessionHandler := sessions.NewHandler(sessionService, logr)
	subjectHandler := subjects.NewHandler(subjectService, planner, examDate, logr)

	// Setup router
	r := mux.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(middleware.RequestLogger(logr.Named("http")))

	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(secret))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")

	protected.HandleFunc("/subjects", subjectHandler.ListSubjects).Methods("GET")
	protected.HandleFunc("/subjects", subjectHandler.CreateSubject).Methods("POST")
	protected.HandleFunc("/subjects/{id:[0-9]+}/chapters", subjectHandler.CreateChapter).Methods("POST")
	protected.HandleFunc("/subjects/{id:[0-9]+}/tests", subjectHandler.CreateTest).Methods("POST")
	protected.HandleFunc("/chapters/{id:[0-9]+}/topics", subjectHandler.CreateTopic).Methods("POST")
	protected.HandleFunc("/topics/{id:[0-9]+}", subjectHandler.ToggleTopic).Methods("PATCH")

	protected.HandleFunc("/dashboard", subjectHandler.GetDashboard).Methods("GET")
	protected.HandleFunc("/foundation", subjectHandler.GetFoundation).Methods("GET")
	protected.HandleFunc("/recommendations", subjectHandler.GetRecommendations).Methods("GET")
	protected.HandleFunc("/recommendations/plan", subjectHandler.GetPlan).Methods("GET")

	protected.HandleFunc("/focus-sessions", sessionHandler.CreateSession).Methods("POST")
	protected.HandleFunc("/focus-sessions", sessionHandler.UpdateSession).Methods("PATCH")
	protected.HandleFunc("/focus-sessions/active", sessionHandler.GetActive).Methods("GET")

	protected.HandleFunc("/activity", activityHandler.GetActivity).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	return r
}
