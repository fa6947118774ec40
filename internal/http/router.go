// Package httpapi wires the HTTP transport (Gin) to the book service,
// middleware and route handlers. It centralizes the cross-cutting concerns:
// tracing, correlation ids, logging/redaction, panic recovery, body limits,
// compression, metrics, idempotency, rate limiting, CORS and security headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-books-api/internal/config"
	"github.com/tbourn/go-books-api/internal/docs"
	"github.com/tbourn/go-books-api/internal/domain"
	"github.com/tbourn/go-books-api/internal/http/handlers"
	"github.com/tbourn/go-books-api/internal/http/middleware"
	"github.com/tbourn/go-books-api/internal/repo"
	"github.com/tbourn/go-books-api/internal/services"
)

// bookRepoShim adapts the repository free functions to services.BookRepo.
type bookRepoShim struct{}

func (bookRepoShim) ListBooks(ctx context.Context, db *gorm.DB) ([]domain.Book, error) {
	return repo.ListBooks(ctx, db)
}

func (bookRepoShim) GetBook(ctx context.Context, db *gorm.DB, id uint64) (*domain.Book, error) {
	return repo.GetBook(ctx, db, id)
}

func (bookRepoShim) FindBookByTitle(ctx context.Context, db *gorm.DB, title string) (*domain.Book, error) {
	return repo.FindBookByTitle(ctx, db, title)
}

func (bookRepoShim) SaveBook(ctx context.Context, db *gorm.DB, b *domain.Book) (*domain.Book, error) {
	return repo.SaveBook(ctx, db, b)
}

func (bookRepoShim) DeleteBook(ctx context.Context, db *gorm.DB, b *domain.Book) error {
	return repo.DeleteBook(ctx, db, b)
}

// Deps carries the optional collaborators of the book service. Leave a
// field nil to disable it.
type Deps struct {
	Cache  services.BookCache
	Events services.EventPublisher
}

var corsAllowHeaders = []string{"Origin", "Content-Type", "Accept", "If-None-Match", middleware.HeaderIdempotencyKey}

var exposedHeaders = []string{"X-Request-ID", "ETag", middleware.HeaderIdempotentReplay}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger or RedactingLogger (LOG_REDACT)
//  4. Recovery
//  5. Body size limiter
//  6. Gzip
//  7. Metrics
//  8. Idempotency validator (before the rate limiter so replays bypass it)
//  9. Rate limiter
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, deps Deps) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key", middleware.HeaderIdempotencyKey},
		}))
	} else {
		r.Use(middleware.Logger())
	}
	r.Use(middleware.Recovery())
	r.Use(middleware.LimitBody(cfg.MaxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, key, now)
			switch {
			case err == nil:
				return true, nil
			case errors.Is(err, repo.ErrNotFound):
				return false, nil
			default:
				return false, err
			}
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       false,
		EnablePolicy:  true,
		ExposeHeaders: []string{"ETag", middleware.HeaderIdempotentReplay},
	}))

	r.NoRoute(handlers.RouteNotFound)
	r.NoMethod(handlers.MethodNotAllowed)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: service <- repo/db/cache/events
	bookSvc := services.NewBookService(db, bookRepoShim{})
	bookSvc.Cache = deps.Cache
	bookSvc.Events = deps.Events
	h := handlers.New(bookSvc, cfg.IdempotencyTTL)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/book", h.ListBooks)
		api.GET("/book/:id", h.GetBook)
		api.POST("/book", h.CreateBook)
		api.PUT("/book/:id", h.UpdateBook)
		api.DELETE("/book/:id", h.DeleteBook)
	}
}

// corsMiddleware allows every origin when the allowlist is empty. Otherwise
// only listed origins are echoed back.
func corsMiddleware(allowed []string) []gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     corsAllowHeaders,
		ExposeHeaders:    exposedHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(allowed) == 0 {
		conf.AllowAllOrigins = true
		// Set ACAO even without an Origin header so simple probes see it.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(conf),
		}
	}

	conf.AllowOrigins = allowed
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := set[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(conf),
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
