package main

import (
  "context"
  "fmt"
  "os"
  "strings"
  "github.com/orionsky/obsdb-backend/internal/db"
  "github.com/orionsky/obsdb-backend/internal/handlers"
  "github.com/orionsky/obsdb-backend/internal/jobs"
  "github.com/orionsky/obsdb-backend/internal/logger"
  "github.com/orionsky/obsdb-backend/internal/observability"
  "github.com/orionsky/obsdb-backend/internal/repos"
  "github.com/orionsky/obsdb-backend/internal/server"
  "github.com/orionsky/obsdb-backend/internal/services"
  "github.com/orionsky/obsdb-backend/internal/sse"
  "github.com/orionsky/obsdb-backend/internal/sse/bus"
  "github.com/orionsky/obsdb-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  ctx, cancel := context.WithCancel(context.Background())
  defer cancel()

  // Observability
  observability.Init(log)
  otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
    ServiceName: "obsdb-backend",
    Environment: utils.GetEnv("ENVIRONMENT", "development", log),
    Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
  })
  if otelShutdown != nil {
    defer otelShutdown(context.Background())
  }

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  programRepo := repos.NewProgramRepo(thePG, log)
  groupRepo := repos.NewGroupRepo(thePG, log)
  observationRepo := repos.NewObservationRepo(thePG, log)
  targetRepo := repos.NewTargetRepo(thePG, log)
  asterismRepo := repos.NewAsterismRepo(thePG, log)
  gmosRepo := repos.NewGmosLongSlitRepo(thePG, log)
  obscalcRepo := repos.NewObscalcRepo(thePG, log)
  blindOffsetRepo := repos.NewBlindOffsetRepo(thePG, log)
  sequenceRepo := repos.NewSequenceRepo(thePG, log)

  // SSE + bus
  log.Info("Setting up SSE hub now...")
  sseHub := sse.NewSSEHub(log)
  eventBus, err := bus.NewRedisBus(log)
  if err != nil {
    log.Error("Could not init RedisBus", "error", err)
    os.Exit(1)
  }
  defer eventBus.Close()
  if err := eventBus.StartForwarder(ctx, sseHub.Broadcast); err != nil {
    log.Error("Could not start bus forwarder", "error", err)
    os.Exit(1)
  }
  notifier := services.NewBusNotifier(log, eventBus)

  // Services
  log.Info("Setting up Services from main...")
  workerCfg := jobs.LoadConfig(log)
  obscalcService := services.NewObscalcService(thePG, log, obscalcRepo, observationRepo, workerCfg.Backoff, notifier)
  blindOffsetService := services.NewBlindOffsetService(thePG, log, blindOffsetRepo, observationRepo, workerCfg.Backoff, notifier)
  treeService := services.NewGroupTreeService(thePG, log, groupRepo, observationRepo, obscalcService, blindOffsetService, notifier)
  observationEditService := services.NewObservationEditService(thePG, log, observationRepo, targetRepo, asterismRepo, gmosRepo, obscalcService, blindOffsetService, notifier)
  targetEditService := services.NewTargetEditService(thePG, log, targetRepo, asterismRepo, obscalcService, blindOffsetService, notifier)
  programService := services.NewProgramService(thePG, log, programRepo, sequenceRepo)

  // Workers (in-process unless delegated to the obscalcd binary)
  if utils.GetEnv("EMBEDDED_WORKERS", "true", log) == "true" {
    itcClient, err := services.NewItcClient(log)
    if err != nil {
      log.Error("Could not init ItcClient", "error", err)
      os.Exit(1)
    }
    runtime := jobs.NewRuntime(log, workerCfg, obscalcService, blindOffsetService, itcClient, observationRepo, gmosRepo, asterismRepo, targetRepo)
    go func() {
      if err := runtime.Start(ctx); err != nil {
        log.Error("Calc runtime stopped", "error", err)
      }
    }()
  }

  // Collectors
  metrics := observability.Current()
  metrics.StartPostgresCollector(ctx, log, thePG)
  metrics.StartRedisCollector(ctx, log, os.Getenv("REDIS_ADDR"))
  metrics.StartCalcQueueCollector(ctx, log, obscalcRepo, blindOffsetRepo)

  // Handlers
  log.Info("Setting up handlers from main...")
  programHandler := handlers.NewProgramHandler(programService, treeService)
  groupHandler := handlers.NewGroupHandler(treeService)
  observationHandler := handlers.NewObservationHandler(treeService, observationEditService)
  targetHandler := handlers.NewTargetHandler(targetEditService)
  calcHandler := handlers.NewCalcHandler(obscalcService, blindOffsetService)
  sseHandler := handlers.NewSSEHandler(sseHub)

  // Router
  log.Info("Setting up router from main...")
  var origins []string
  if raw := utils.GetEnv("CORS_ALLOW_ORIGINS", "", log); raw != "" {
    for _, o := range strings.Split(raw, ",") {
      if o = strings.TrimSpace(o); o != "" {
        origins = append(origins, o)
      }
    }
  }
  router := server.NewRouter(server.RouterConfig{
    ProgramHandler:     programHandler,
    GroupHandler:       groupHandler,
    ObservationHandler: observationHandler,
    TargetHandler:      targetHandler,
    CalcHandler:        calcHandler,
    SSEHandler:         sseHandler,
    AllowOrigins:       origins,
  })

  port := utils.GetEnv("PORT", "8080", log)
  fmt.Printf("Server listening on :%s\n", port)
  if err := router.Run(":" + port); err != nil {
    log.Error("Server failed", "error", err)
  }
}
