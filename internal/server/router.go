package server

import (
  "strconv"
  "time"

  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

  "github.com/orionsky/obsdb-backend/internal/handlers"
  "github.com/orionsky/obsdb-backend/internal/observability"
)

type RouterConfig struct {
  ProgramHandler     *handlers.ProgramHandler
  GroupHandler       *handlers.GroupHandler
  ObservationHandler *handlers.ObservationHandler
  TargetHandler      *handlers.TargetHandler
  CalcHandler        *handlers.CalcHandler
  SSEHandler         *handlers.SSEHandler
  AllowOrigins       []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()

  origins := cfg.AllowOrigins
  if len(origins) == 0 {
    origins = []string{"http://localhost:3000", "http://localhost:5174"}
  }
  router.Use(cors.New(cors.Config{
    AllowOrigins:     origins,
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))
  router.Use(otelgin.Middleware("obsdb-backend"))
  router.Use(metricsMiddleware())

  router.GET("/healthcheck", handlers.HealthCheck)
  router.GET("/metrics", func(c *gin.Context) {
    observability.Current().WriteHTTP(c.Writer, c.Request)
  })

  api := router.Group("/api")
  {
    // Programs
    api.POST("/programs", cfg.ProgramHandler.Create)
    api.GET("/programs/:id", cfg.ProgramHandler.Get)
    api.GET("/programs/:id/verify", cfg.ProgramHandler.Verify)
    api.GET("/programs/:id/children", cfg.GroupHandler.ListChildren)
    api.GET("/programs/:id/targets", cfg.TargetHandler.ListByProgram)
    api.GET("/programs/:id/obscalc", cfg.CalcHandler.ListObscalcByProgram)

    // Groups
    api.POST("/groups", cfg.GroupHandler.Insert)
    api.POST("/groups/:id/move", cfg.GroupHandler.Move)
    api.DELETE("/groups/:id", cfg.GroupHandler.Delete)

    // Observations
    api.POST("/observations", cfg.ObservationHandler.Insert)
    api.GET("/observations/:id", cfg.ObservationHandler.Get)
    api.PATCH("/observations/:id", cfg.ObservationHandler.Update)
    api.POST("/observations/:id/move", cfg.ObservationHandler.Move)
    api.DELETE("/observations/:id", cfg.ObservationHandler.Delete)
    api.PUT("/observations/:id/mode/gmos-long-slit", cfg.ObservationHandler.SetGmosLongSlit)
    api.PATCH("/observations/:id/mode/gmos-long-slit", cfg.ObservationHandler.UpdateGmosLongSlit)
    api.GET("/observations/:id/asterism", cfg.ObservationHandler.ListAsterism)
    api.POST("/observations/:id/asterism", cfg.ObservationHandler.AddAsterismTarget)
    api.DELETE("/observations/:id/asterism/:targetId", cfg.ObservationHandler.RemoveAsterismTarget)

    // Calc state
    api.GET("/observations/:id/obscalc", cfg.CalcHandler.GetObscalc)
    api.POST("/observations/:id/obscalc/invalidate", cfg.CalcHandler.Invalidate)
    api.GET("/observations/:id/blind-offset", cfg.CalcHandler.GetBlindOffset)
    api.POST("/observations/:id/blind-offset/invalidate", cfg.CalcHandler.InvalidateBlindOffset)

    // Targets
    api.POST("/targets", cfg.TargetHandler.Create)
    api.GET("/targets/:id", cfg.TargetHandler.Get)
    api.PATCH("/targets/:id", cfg.TargetHandler.Update)
    api.DELETE("/targets/:id", cfg.TargetHandler.Delete)
  }

  // SSE
  router.GET("/sse/stream", cfg.SSEHandler.SSEStream)
  router.POST("/sse/subscribe", cfg.SSEHandler.SSESubscribe)
  router.POST("/sse/unsubscribe", cfg.SSEHandler.SSEUnsubscribe)

  return router
}

func metricsMiddleware() gin.HandlerFunc {
  return func(c *gin.Context) {
    m := observability.Current()
    if m == nil {
      c.Next()
      return
    }
    m.ApiInflightInc()
    start := time.Now()
    c.Next()
    m.ApiInflightDec()
    route := c.FullPath()
    if route == "" {
      route = "unmatched"
    }
    m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
  }
}
