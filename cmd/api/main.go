package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/config"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	appHTTP "github.com/cmlabs-hris/attendance-sync/internal/handler/http"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/jwt"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/metrics"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/migrate"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/punchapi"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/sse"
	"github.com/cmlabs-hris/attendance-sync/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/attendance-sync/internal/service/attendance"
	identityService "github.com/cmlabs-hris/attendance-sync/internal/service/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/service/syncer"
)

const shutdownTimeout = 30 * time.Second

func main() {
	migrateOnStart := flag.Bool("migrate", false, "apply pending migrations before serving")
	issueToken := flag.String("issue-token", "", "print an operator token for the given subject and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.App.SlogLevel()})))

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	if *issueToken != "" {
		token, expiresAt, err := JWTService.GenerateOperatorToken(*issueToken)
		if err != nil {
			slog.Error("failed to issue operator token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "expires at %s\n", time.Unix(expiresAt, 0).UTC().Format(time.RFC3339))
		return
	}

	db, err := database.NewPostgreSQLDB(cfg.DatabaseURL())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()

	if *migrateOnStart {
		applied, err := migrate.NewManager(db.SQL()).Up(ctx)
		if err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("migrations applied", "count", len(applied))
	}

	caps, err := database.DetectCapabilities(ctx, db)
	if err != nil {
		slog.Error("failed to detect schema capabilities", "error", err)
		os.Exit(1)
	}

	identityRepo := postgresql.NewIdentityRepository(db)
	mappingRepo := postgresql.NewMappingRepository(db)
	attendanceRepo := postgresql.NewAttendanceRepository(db, caps, cfg.Sync.Location)
	syncStateRepo := postgresql.NewSyncStateRepository(db.SQL())

	identitySvc := identityService.NewIdentityService(
		postgresql.NewTxRunner(db),
		identityRepo,
		mappingRepo,
		identity.MatchConfig{
			MinMatchScore:    cfg.Sync.MinMatchScore,
			AutoMapThreshold: cfg.Sync.AutoMapThreshold,
			MaxCandidates:    cfg.Sync.MaxCandidates,
		},
	)
	calendar := attendance.NewCalendar(cfg.Sync.Location, cfg.Sync.WorkDays, cfg.Sync.Holidays)
	attendanceSvc := attendanceService.NewAttendanceService(attendanceRepo, calendar)

	metrics.Init()
	hub := sse.NewHub()

	orchestrator := syncer.NewOrchestrator(
		syncer.ConfigFrom(cfg.Sync),
		punchapi.NewClient(cfg.Provider),
		identitySvc,
		attendanceSvc,
		syncStateRepo,
		syncer.WithHub(hub),
	)

	syncHandler := appHTTP.NewSyncHandler(orchestrator, JWTService, hub)
	mappingHandler := appHTTP.NewMappingHandler(identitySvc)

	router := appHTTP.NewRouter(
		cfg.App,
		JWTService,
		syncHandler,
		mappingHandler,
		metrics.Handler(),
	)

	if err := orchestrator.Start(ctx); err != nil {
		slog.Error("failed to start sync orchestrator", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server running", "addr", server.Addr, "env", cfg.App.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	orchestrator.Stop()
}
