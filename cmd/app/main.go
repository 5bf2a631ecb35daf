package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"tutor-service/internal/config"
	chargePay "tutor-service/internal/http-server/handlers/charges/pay"
	hwGrade "tutor-service/internal/http-server/handlers/homework/grade"
	jobRun "tutor-service/internal/http-server/handlers/jobs/run"
	keyCreate "tutor-service/internal/http-server/handlers/keys/create"
	keyRegister "tutor-service/internal/http-server/handlers/keys/register"
	lessonCancel "tutor-service/internal/http-server/handlers/lessons/cancel"
	lessonCreate "tutor-service/internal/http-server/handlers/lessons/create"
	lessonDone "tutor-service/internal/http-server/handlers/lessons/done"
	lessonPay "tutor-service/internal/http-server/handlers/lessons/pay"
	ruleCreate "tutor-service/internal/http-server/handlers/rules/create"
	ruleDelete "tutor-service/internal/http-server/handlers/rules/delete"
	ruleGet "tutor-service/internal/http-server/handlers/rules/get"
	studentCreate "tutor-service/internal/http-server/handlers/students/create"
	studentDelete "tutor-service/internal/http-server/handlers/students/delete"
	studentGet "tutor-service/internal/http-server/handlers/students/get"
	subscriptionAdd "tutor-service/internal/http-server/handlers/subscription/add"
	"tutor-service/internal/lock"
	svc "tutor-service/internal/service"
	"tutor-service/internal/storage/postgres"
	"tutor-service/internal/telegram"
	"tutor-service/internal/worker"
	slogpretty "tutor-service/pkg/handlers/slogPretty"
	"tutor-service/pkg/middleware/mwLogger"
	"tutor-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting API", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	if cfg.AutoInitSchema {
		if err := storage.InitSchema(context.Background()); err != nil {
			log.Error("Failed to init schema", sl.Err(err))
			os.Exit(1)
		}
		log.Info("Schema initialized")
	}

	locker, err := lock.NewRedisLock(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init redis lock", sl.Err(err))
		os.Exit(1)
	}

	sender := telegram.New(cfg.Telegram.APIBase, cfg.Telegram.Token, cfg.Telegram.Timeout)

	service := svc.NewService(log, storage, sender)

	jobs := worker.New(log, service, locker, cfg.Jobs)
	if err := jobs.Start(); err != nil {
		log.Error("Failed to start worker", sl.Err(err))
		os.Exit(1)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(CORS)

	// Students
	router.Post("/students", studentCreate.New(log, service))
	router.Get("/students", studentGet.New(log, service))
	router.Get("/students/{id}", studentGet.New(log, service))
	router.Delete("/students/{id}", studentDelete.New(log, service))
	router.Get("/students/{id}/rules", ruleGet.New(log, service))
	router.Post("/students/{id}/subscription", subscriptionAdd.New(log, service))

	// Schedule rules
	router.Post("/rules", ruleCreate.New(log, service))
	router.Delete("/rules/{id}", ruleDelete.New(log, service))

	// Lessons
	router.Post("/lessons", lessonCreate.New(log, service))
	router.Post("/lessons/{id}/done", lessonDone.New(log, service))
	router.Post("/lessons/{id}/cancel", lessonCancel.New(log, service))
	router.Post("/lessons/{id}/pay", lessonPay.New(log, service))
	router.Post("/lessons/{id}/homework", hwGrade.New(log, service))

	// Charges
	router.Post("/charges/{id}/pay", chargePay.New(log, service))

	// Registration
	router.Post("/keys", keyCreate.New(log, service))
	router.Post("/register", keyRegister.New(log, service))

	// Jobs
	router.Post("/jobs/{name}/run", jobRun.New(log, service,
		cfg.Jobs.HorizonDays, cfg.Jobs.PlanAheadDays, cfg.Jobs.DispatchBatch))

	router.Handle("/metrics", promhttp.Handler())

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.Address))
		if err := serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	jobs.Stop()

	if storage != nil {
		if err := storage.Close(); err != nil {
			log.Error("Failed to close storage", sl.Err(err))
		} else {
			log.Info("Storage closed")
		}
	} else {
		log.Debug("Storage is nil, nothing to close")
	}

	if locker != nil {
		if err := locker.Close(); err != nil {
			log.Error("Failed to close locker", sl.Err(err))
		} else {
			log.Info("Locker closed")
		}
	}

	log.Info("Shutdown finished, server stopped")

}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
