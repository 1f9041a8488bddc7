package routes

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/folio/portfolio/config"
	"github.com/folio/portfolio/controllers"
	"github.com/folio/portfolio/middleware"
	"github.com/folio/portfolio/models"
	"github.com/folio/portfolio/storage"
	"github.com/folio/portfolio/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, store *storage.Store, mailer controllers.MailSender) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	// Access log goes to its own rolling file; fall back to the app logger without one.
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err != nil {
		gl = utils.Logger
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, true))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/", func(ctx *gin.Context) {
		ctx.File(filepath.Join(cfg.StaticDir, "index.html"))
	})
	r.GET("/admin", func(ctx *gin.Context) {
		ctx.File(filepath.Join(cfg.StaticDir, "admin.html"))
	})
	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, "ok", gin.H{"status": "ok"})
	})

	media := controllers.NewMediaController(store, cfg.MaxUploadBytes())
	contact := controllers.NewContactController(mailer, cfg.ContactRecipient, cfg.SiteName)

	api := r.Group("/api")
	api.POST("/contact", middleware.RateLimit(cfg.ContactRateLimitPerMinute), contact.Submit)
	api.POST("/upload", media.Upload(models.Gallery))
	api.POST("/upload-profile", media.Upload(models.Profile))
	api.GET("/images", media.List(models.Gallery))
	api.GET("/profile", media.Current(models.Profile))
	api.DELETE("/images/:filename", media.Delete(models.Gallery))
	api.DELETE("/profile/:filename", media.Delete(models.Profile))

	for _, c := range models.Collections {
		r.Static("/"+c.Dir, store.Dir(c))
	}

	r.NoRoute(func(ctx *gin.Context) {
		if file, ok := staticFile(cfg.StaticDir, ctx.Request); ok {
			ctx.Status(http.StatusOK)
			ctx.File(file)
			return
		}
		utils.Error(ctx, http.StatusNotFound, "Route not found")
	})

	return r
}

// staticFile resolves a GET/HEAD request to a regular file inside root.
// API and collection paths never fall through to the site directory.
func staticFile(root string, req *http.Request) (string, bool) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return "", false
	}
	p := req.URL.Path
	if strings.HasPrefix(p, "/api/") {
		return "", false
	}
	for _, c := range models.Collections {
		if strings.HasPrefix(p, "/"+c.Dir+"/") {
			return "", false
		}
	}
	// Clean against "/" first so ".." cannot climb out of root.
	full := filepath.Join(root, filepath.FromSlash(path.Clean("/"+p)))
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return full, true
}
