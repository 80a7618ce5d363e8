package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmlabs-hris/attendance-sync/internal/config"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/syncrun"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/punchapi"
	"github.com/cmlabs-hris/attendance-sync/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/attendance-sync/internal/service/attendance"
	identityService "github.com/cmlabs-hris/attendance-sync/internal/service/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/service/syncer"
)

// backfill runs one full attendance sync over [-start, -end] and exits
// non-zero unless the run succeeded.
func main() {
	start := flag.String("start", "", "first date of the window (YYYY-MM-DD)")
	end := flag.String("end", "", "last date of the window (YYYY-MM-DD)")
	withRoster := flag.Bool("roster", false, "resolve the provider roster before fetching punches")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.App.SlogLevel()})))

	req := syncrun.AttendanceRequest{Mode: syncrun.ModeFull, StartDate: *start, EndDate: *end}
	if err := req.Validate(); err != nil {
		fmt.Println("Invalid window:", err)
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(run(cfg, req, *withRoster))
}

func run(cfg *config.Config, req syncrun.AttendanceRequest, withRoster bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgreSQLDB(cfg.DatabaseURL())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()

	caps, err := database.DetectCapabilities(ctx, db)
	if err != nil {
		slog.Error("failed to detect schema capabilities", "error", err)
		return 1
	}

	identitySvc := identityService.NewIdentityService(
		postgresql.NewTxRunner(db),
		postgresql.NewIdentityRepository(db),
		postgresql.NewMappingRepository(db),
		identity.MatchConfig{
			MinMatchScore:    cfg.Sync.MinMatchScore,
			AutoMapThreshold: cfg.Sync.AutoMapThreshold,
			MaxCandidates:    cfg.Sync.MaxCandidates,
		},
	)
	attendanceSvc := attendanceService.NewAttendanceService(
		postgresql.NewAttendanceRepository(db, caps, cfg.Sync.Location),
		attendance.NewCalendar(cfg.Sync.Location, cfg.Sync.WorkDays, cfg.Sync.Holidays),
	)

	syncCfg := syncer.ConfigFrom(cfg.Sync)
	if err := syncCfg.Validate(); err != nil {
		slog.Error("invalid sync configuration", "error", err)
		return 1
	}

	orchestrator := syncer.NewOrchestrator(
		syncCfg,
		punchapi.NewClient(cfg.Provider),
		identitySvc,
		attendanceSvc,
		postgresql.NewSyncStateRepository(db.SQL()),
	)
	defer orchestrator.Stop()

	// Cancel between chunks on interrupt so partial work is still recorded.
	go func() {
		<-ctx.Done()
		_ = orchestrator.Cancel(syncrun.TypeAttendance)
	}()

	if withRoster {
		rosterRun, err := orchestrator.RunRoster(ctx)
		if err != nil {
			slog.Error("roster sync failed", "error", err)
			return 1
		}
		slog.Info("roster sync finished", "status", rosterRun.Status, "processed", rosterRun.RecordsProcessed)
	}

	result, err := orchestrator.RunAttendance(ctx, req)
	if err != nil {
		slog.Error("attendance backfill failed", "error", err)
		return 1
	}

	slog.Info("attendance backfill finished",
		"run_id", result.ID,
		"status", result.Status,
		"found", result.RecordsFound,
		"written", result.RecordsWritten,
		"skipped", result.RecordsSkipped,
		"unmapped", result.Unmapped,
		"errors", len(result.Errors),
	)
	if result.Status != syncrun.StatusSucceeded {
		return 1
	}
	return 0
}
