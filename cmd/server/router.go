package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Skufu/rxcompass/internal/apperr"
	"github.com/Skufu/rxcompass/internal/logging"
	"github.com/Skufu/rxcompass/internal/predict"
)

// Predictor is the slice of predict.Service the handlers need.
type Predictor interface {
	Ready() error
	Predict(ctx context.Context, r io.Reader) (*predict.Response, error)
}

type routerOptions struct {
	MaxUploadBytes int64
	CORSOrigins    []string
	Logger         *slog.Logger
}

const requestIDHeader = "X-Request-ID"

func setupRouter(svc Predictor, db HealthChecker, opts routerOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(
		requestLogger(logger),
		gin.Recovery(),
		limitBodySize(opts.MaxUploadBytes),
		cors.New(cors.Config{
			AllowOrigins:  origins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
			ExposeHeaders: []string{requestIDHeader},
			MaxAge:        12 * time.Hour,
		}),
	)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to RxCompass API! Use /api/predict to POST your CSV."})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "RxCompass API is running"})
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		body := gin.H{"status": "ok", "model": "ok", "db": "disabled"}
		code := http.StatusOK

		if err := svc.Ready(); err != nil {
			body["model"] = fmt.Sprintf("unavailable: %v", err)
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}

		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			body["db"] = "ok"
			if err := db.Ping(ctx); err != nil {
				body["db"] = fmt.Sprintf("unhealthy: %v", err)
				body["status"] = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		c.JSON(code, body)
	})

	router.POST("/api/predict", predictHandler(svc, logger))

	return router
}

func predictHandler(svc Predictor, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.Ready(); err != nil {
			writeError(c, logger, err)
			return
		}

		header, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{
					"error": fmt.Sprintf("File too large. Maximum upload size is %d bytes", tooLarge.Limit),
				})
			case errors.Is(err, http.ErrMissingFile) && hasFormField(c, "file"):
				// Browsers send the field with an empty filename when
				// nothing was chosen; multipart parses that as a value.
				c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
			}
			return
		}
		if header.Filename == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
			return
		}
		if !allowedFile(header.Filename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type. Please upload a CSV file"})
			return
		}

		file, err := header.Open()
		if err != nil {
			writeError(c, logger, apperr.Wrap(apperr.Processing, err, "Error processing file"))
			return
		}
		defer file.Close()

		resp, err := svc.Predict(c.Request.Context(), file)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func allowedFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

func hasFormField(c *gin.Context, name string) bool {
	form := c.Request.MultipartForm
	if form == nil {
		return false
	}
	_, ok := form.Value[name]
	return ok
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// requestLogger tags the request context with an id (taken from
// X-Request-ID or generated) and logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))

		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
