package app

import (
	"time"

	"example/resume-api/app/config"
	"example/resume-api/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig is the part of the configuration the router needs.
type RouterConfig struct {
	AllowedOrigins []string
	OperatorScope  string
}

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(h *Handlers, cfg *config.Config) (*gin.Engine, error) {
	verifier, err := auth.NewVerifier(cfg.Auth.Issuer, cfg.Auth.Audience, "")
	if err != nil && !auth.AuthDisabled() {
		return nil, err
	}

	authn := auth.Middleware(verifier, auth.MiddlewareConfig{
		OnAuthenticated: func(c *gin.Context, claims *auth.Claims) error {
			return h.svc.EnsureAccount(c.Request.Context(), claims.Subject)
		},
	})
	return newEngine(h, authn, RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		OperatorScope:  cfg.Auth.OperatorScope,
	}), nil
}

func newEngine(h *Handlers, authn gin.HandlerFunc, rc RouterConfig) *gin.Engine {
	router := gin.Default()
	origins := rc.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", h.Health)
	router.POST("/api/stripe/webhook", h.StripeWebhook)

	protected := router.Group("/")
	protected.Use(authn)
	protected.GET("/me", h.Me)

	resumes := protected.Group("/api/resumes")
	resumes.POST("", h.SubmitResume)
	resumes.GET("", h.ListResumes)
	resumes.GET("/:id", h.GetResume)
	resumes.PUT("/:id/job-description", h.SetJobDescription)
	resumes.GET("/:id/text", h.GetEditedText)
	resumes.PUT("/:id/text", h.SaveEditedText)
	resumes.POST("/:id/analyze", h.Analyze)
	resumes.POST("/:id/analyze-changes", h.AnalyzeChanges)
	resumes.POST("/:id/retry-basic", h.RetryBasic)
	resumes.GET("/:id/download/:artifact", h.Download)

	protected.GET("/api/reviews", h.ListReviews)
	protected.POST("/api/billing/checkout", h.CreateCheckout)
	protected.GET("/api/billing/sessions/:id", h.SyncSession)

	admin := protected.Group("/api/admin")
	admin.Use(auth.RequireScope(rc.OperatorScope))
	admin.GET("/submissions", h.AdminListSubmissions)
	admin.GET("/reviews", h.AdminListReviews)
	admin.GET("/reviews/:id", h.AdminGetReview)
	admin.POST("/reviews/:id/assign", h.AdminAssignReview)
	admin.POST("/reviews/:id/start", h.AdminStartReview)
	admin.POST("/reviews/:id/complete", h.AdminCompleteReview)
	admin.POST("/reviews/:id/cancel", h.AdminCancelReview)
	admin.POST("/reviews/:id/reopen", h.AdminReopenReview)
	admin.GET("/stats", h.AdminStats)
	admin.GET("/users/:id/entitlement", h.AdminEntitlement)
	admin.POST("/users/:id/credits", h.AdminGrantCredits)

	return router
}
