// Package server wires repositories, services and handlers into one router.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"segportal/internal/config"
	"segportal/internal/domain/job"
	"segportal/internal/domain/user"
	"segportal/internal/identity"
	"segportal/internal/middleware"
	"segportal/internal/modules/auth"
	"segportal/internal/modules/inference"
	"segportal/internal/pkg/logger"
	"segportal/internal/session"
	"segportal/internal/storage"
)

// Deps are the process-level resources the router is built from.
type Deps struct {
	Config    *config.Config
	Log       *logger.Logger
	DB        *gorm.DB
	Storage   storage.Backend
	Sessions  session.Store
	Identity  identity.Authenticator
	Processor inference.Processor
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&user.User{},
		&job.Upload{},
		&job.InferenceJob{},
	)
}

func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	processor := d.Processor
	if processor == nil {
		processor = inference.SimulatedProcessor{}
	}

	issuer := session.NewIssuer(d.Sessions, session.Config{
		Secret:     cfg.Session.Secret,
		CookieName: cfg.Session.CookieName,
		CookiePath: cfg.Session.CookiePath,
		Secure:     cfg.Session.CookieSecure,
		SameSite:   cfg.Session.CookieSameSite,
		TTL:        cfg.Session.TTL,
	}, log)

	userRepo := user.NewRepository(d.DB)
	jobRepo := job.NewRepository(d.DB)

	authService := auth.NewService(d.Identity, userRepo, log)
	authHandler := auth.NewHandler(authService, issuer)

	artifacts := inference.NewArtifactStore(d.Storage)
	runner := inference.NewRunner(jobRepo, artifacts, processor, cfg.Inference.Timeout, log)
	inferenceService := inference.NewService(jobRepo, artifacts, runner, inference.Config{
		DefaultConfig:  cfg.Inference.DefaultConfig,
		MaxUploadBytes: cfg.Inference.MaxUploadBytes,
	}, log)
	inferenceHandler := inference.NewHandler(inferenceService, issuer, cfg.Inference.MaxUploadBytes)

	r := gin.New()
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "segportal backend is running",
			"time":   time.Now().UTC(),
		})
	})

	authHandler.RegisterRoutes(r)

	var gate []gin.HandlerFunc
	if cfg.Inference.RequireSession {
		gate = append(gate, middleware.RequireSession(issuer))
	}
	inferenceHandler.RegisterRoutes(r, gate...)

	return r
}
