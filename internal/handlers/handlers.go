package handlers

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/catdog/internal/repository"
	"github.com/example/catdog/internal/usecase"
)

// MaxUploadSize caps the accepted image size.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers around the file.
const multipartOverhead = 1 << 20

//go:embed templates/*.html
var templatesFS embed.FS

// PredictionService is the use case surface needed by the routes.
type PredictionService interface {
	Predict(ctx context.Context, requestID string, imageBytes []byte) (*usecase.Prediction, error)
	ListRecords(ctx context.Context, requestID string) ([]repository.PredictionRecord, error)
	GetMetricsSummary(ctx context.Context, requestID string) (*usecase.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router. health and
// metrics may be nil, in which case their routes are not registered.
func RegisterRoutes(router *gin.Engine, svc PredictionService, health *HealthHandler, metrics http.Handler) {
	router.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	router.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", gin.H{"maxUploadMB": MaxUploadSize >> 20})
	})

	if health != nil {
		router.GET("/health", health.Health)
	}
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	router.POST("/predict", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image too large"})
			return
		}
		if file.Size == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		prediction, err := svc.Predict(c.Request.Context(), requestID(c), data)
		if err != nil {
			status, message := predictionErrorResponse(err)
			c.JSON(status, gin.H{"error": message})
			return
		}

		c.JSON(http.StatusOK, prediction)
	})

	router.GET("/records", func(c *gin.Context) {
		records, err := svc.ListRecords(c.Request.Context(), requestID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load records"})
			return
		}
		c.JSON(http.StatusOK, records)
	})

	router.GET("/stats", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context(), requestID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statistics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func predictionErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrMissingImage):
		return http.StatusBadRequest, "No image provided"
	case errors.Is(err, usecase.ErrDecode):
		return http.StatusBadRequest, "Invalid image"
	default:
		return http.StatusInternalServerError, "Prediction failed"
	}
}
