package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/royalty_backend/config"
	"bitbucket.org/mmdatafocus/royalty_backend/models"
	"bitbucket.org/mmdatafocus/royalty_backend/reportimport"
	"bitbucket.org/mmdatafocus/royalty_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("REPORT_IMPORT_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Filled in once the database and redis are up; requests get 503 until then.
	im := &reportimport.Importer{Logger: logger}
	var ready atomic.Bool

	r := gin.New()
	r.Use(correlationId())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.Use(cors.New(corsConfig()))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	reportimport.RegisterRoutes(r, im)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !utils.EnvBoolDefault("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	im.Store = reportimport.NewGormReportStore(db)
	im.Progress = reportimport.NewRedisProgressStore(config.GetRedisDB(), config.ReportImportProgressTTL())
	im.Locker = reportimport.NewRedisLocker(config.GetRedisLock(), config.ReportImportLockTTL(), logger)
	im.PeriodLock = config.ReportImportLockEnabled()
	im.ErrorLogDir = config.ReportImportErrorLogDir()
	im.CleanupProgress = config.CleanupProgressOnSuccess()
	ready.Store(true)

	subErrCh := make(chan error, 1)
	if sub := strings.TrimSpace(os.Getenv("REPORT_IMPORT_SUBSCRIPTION")); sub != "" {
		go func() {
			logger.WithField("subscription", sub).Info("pulling report import jobs")
			subErrCh <- reportimport.RunSubscriber(sigCtx, im, sub)
		}()
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	case err := <-subErrCh:
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "subscriber"}).Error(err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func correlationId() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("X-Correlation-ID", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		cfg.AllowOrigins = splitAndTrim(allowedOrigins)
		if cfg.AllowOrigins == nil {
			cfg.AllowOrigins = []string{}
		}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", "X-Correlation-ID")
	cfg.AddExposeHeaders("Content-Length", "X-Correlation-ID")
	return cfg
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		entry := logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        time.Since(start).String(),
			"correlation_id": cid,
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("request")
			return
		}
		entry.Info("request")
	}
}
