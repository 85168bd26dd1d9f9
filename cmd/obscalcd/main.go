package main

import (
  "context"
  "fmt"
  "os"
  "os/signal"
  "syscall"
  "github.com/orionsky/obsdb-backend/internal/db"
  "github.com/orionsky/obsdb-backend/internal/jobs"
  "github.com/orionsky/obsdb-backend/internal/logger"
  "github.com/orionsky/obsdb-backend/internal/observability"
  "github.com/orionsky/obsdb-backend/internal/repos"
  "github.com/orionsky/obsdb-backend/internal/services"
  "github.com/orionsky/obsdb-backend/internal/sse/bus"
  "github.com/orionsky/obsdb-backend/internal/utils"
)

// obscalcd runs the calc workers without the HTTP surface, so computation
// capacity scales independently of the API.
func main() {
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "production"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
  defer stop()

  observability.Init(log)

  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  thePG := postgresService.DB()

  observationRepo := repos.NewObservationRepo(thePG, log)
  targetRepo := repos.NewTargetRepo(thePG, log)
  asterismRepo := repos.NewAsterismRepo(thePG, log)
  gmosRepo := repos.NewGmosLongSlitRepo(thePG, log)
  obscalcRepo := repos.NewObscalcRepo(thePG, log)
  blindOffsetRepo := repos.NewBlindOffsetRepo(thePG, log)

  eventBus, err := bus.NewRedisBus(log)
  if err != nil {
    log.Error("Could not init RedisBus", "error", err)
    os.Exit(1)
  }
  defer eventBus.Close()
  notifier := services.NewBusNotifier(log, eventBus)

  workerCfg := jobs.LoadConfig(log)
  obscalcService := services.NewObscalcService(thePG, log, obscalcRepo, observationRepo, workerCfg.Backoff, notifier)
  blindOffsetService := services.NewBlindOffsetService(thePG, log, blindOffsetRepo, observationRepo, workerCfg.Backoff, notifier)

  itcClient, err := services.NewItcClient(log)
  if err != nil {
    log.Error("Could not init ItcClient", "error", err)
    os.Exit(1)
  }

  metrics := observability.Current()
  metrics.StartServer(ctx, log, utils.GetEnv("METRICS_ADDR", ":9091", log))
  metrics.StartCalcQueueCollector(ctx, log, obscalcRepo, blindOffsetRepo)

  runtime := jobs.NewRuntime(log, workerCfg, obscalcService, blindOffsetService, itcClient, observationRepo, gmosRepo, asterismRepo, targetRepo)
  log.Info("Calc workers starting", "obscalc_workers", workerCfg.ObscalcWorkers, "blind_offset_workers", workerCfg.BlindOffsetWorkers)
  if err := runtime.Start(ctx); err != nil {
    log.Error("Calc runtime stopped", "error", err)
  }
}
