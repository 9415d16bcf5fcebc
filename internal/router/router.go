package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/talentgrid/assessment-backend/internal/config"
	"github.com/talentgrid/assessment-backend/internal/handler"
	"github.com/talentgrid/assessment-backend/internal/middleware"
	"github.com/talentgrid/assessment-backend/internal/response"
	"github.com/talentgrid/assessment-backend/internal/service"
)

// catalogMaxAge is the browser cache lifetime of the public exam catalog.
const catalogMaxAge = 60

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	runLimiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware(log))
	router.Use(middleware.Brotli(middleware.BrotliOptions{
		MinLength:        middleware.DefaultBrotliOptions.MinLength,
		Quality:          middleware.DefaultBrotliOptions.Quality,
		ExcludedPrefixes: []string{"/ws/"},
	}))

	router.GET("/health", handlers.System.Health)

	// ─── 1. Public Catalog ─────────────────────────────────────────────
	public := router.Group("/api/v1/exams")
	public.Use(middleware.CacheControl(catalogMaxAge))
	{
		public.GET("", handlers.Exam.ListExams)
		public.GET("/:exam_id", handlers.Exam.GetExam)
	}

	// ─── 2. Candidate Group (JWT) ──────────────────────────────────────
	candidate := router.Group("/api/v1/candidate")
	candidate.Use(middleware.RequireCandidate(authService), middleware.NoStore())
	{
		candidate.POST("/exams/:exam_id/sessions", handlers.Session.StartSession)
		candidate.GET("/results", handlers.Session.ListResults)

		sessions := candidate.Group("/sessions/:session_id")
		sessions.Use(middleware.SessionIDParam())
		{
			sessions.GET("", handlers.Session.GetSession)
			sessions.POST("/navigate", handlers.Session.Navigate)
			sessions.PUT("/answers/:index", handlers.Session.EditAnswer)
			sessions.POST("/questions/:index/run", runLimiter.PerCandidate(), handlers.Session.RunQuestion)
			sessions.POST("/submit", handlers.Session.Submit)
		}
	}

	// ─── 3. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/candidate/sessions/:session_id/stream", middleware.SessionIDParam(), handlers.WS.SessionStream)
	}

	// ─── 4. Recruiter Group (JWT) ──────────────────────────────────────
	recruiter := router.Group("/api/v1/recruiter")
	recruiter.Use(middleware.RequireRecruiter(authService), middleware.NoStore())
	{
		recruiter.POST("/exams", handlers.Exam.CreateExam)
		recruiter.GET("/exams/:exam_id/results", handlers.Exam.ExamResults)
		recruiter.GET("/system/status", handlers.System.Status)
	}

	return router
}
