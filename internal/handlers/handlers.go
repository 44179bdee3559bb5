package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MLeys/hotdog-classifier/internal/classifier"
	"github.com/MLeys/hotdog-classifier/internal/history"
	"github.com/MLeys/hotdog-classifier/internal/imaging"
	"github.com/MLeys/hotdog-classifier/internal/usecase"
)

// MaxUploadSize caps multipart uploads at 10MiB, matching the historical
// limit of the web form.
const MaxUploadSize = 10 << 20

// ClassifyService is the use-case surface the HTTP layer needs.
type ClassifyService interface {
	ClassifyFile(ctx context.Context, name, mimeType string, data []byte) (string, *classifier.Verdict, error)
	ClassifyURL(ctx context.Context, rawURL string) (string, *classifier.Verdict, error)
	ClassifyBase64(ctx context.Context, encoded string) (string, *classifier.Verdict, error)
	History() ([]history.Entry, history.Stats)
	ResetHistory(ctx context.Context) error
	Ping(ctx context.Context) error
}

// RegisterRoutes wires the HTTP handlers to the Gin router. resetGuard, if
// non-nil, protects the destructive reset endpoint.
func RegisterRoutes(router *gin.Engine, svc ClassifyService, resetGuard gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if err := svc.Ping(c.Request.Context()); err != nil {
			status = "unhealthy"
			code = http.StatusInternalServerError
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.POST("/classify", func(c *gin.Context) {
		handleClassify(c, svc)
	})

	router.GET("/history", func(c *gin.Context) {
		entries, stats := svc.History()
		c.JSON(http.StatusOK, gin.H{"entries": entries, "stats": stats})
	})

	router.GET("/stats", func(c *gin.Context) {
		_, stats := svc.History()
		c.JSON(http.StatusOK, stats)
	})

	reset := func(c *gin.Context) {
		if c.PostForm("confirm") != "yes" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reset requires confirm=yes"})
			return
		}
		if err := svc.ResetHistory(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	}
	if resetGuard != nil {
		router.POST("/reset", resetGuard, reset)
	} else {
		router.POST("/reset", reset)
	}
}

// handleClassify accepts exactly one of base64, url, or file, checked in
// that order.
func handleClassify(c *gin.Context, svc ClassifyService) {
	ctx := c.Request.Context()

	if encoded := c.PostForm("base64"); encoded != "" {
		requestID, verdict, err := svc.ClassifyBase64(ctx, encoded)
		respond(c, requestID, "base64", verdict, err)
		return
	}

	if rawURL := c.PostForm("url"); rawURL != "" {
		requestID, verdict, err := svc.ClassifyURL(ctx, rawURL)
		respond(c, requestID, "url", verdict, err)
		return
	}

	if file, err := c.FormFile("file"); err == nil {
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "File too large",
				"details": gin.H{"max_size_mb": MaxUploadSize / (1024 * 1024)},
			})
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

		requestID, verdict, err := svc.ClassifyFile(ctx, file.Filename, file.Header.Get("Content-Type"), data)
		respond(c, requestID, "file", verdict, err)
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"error": "No image provided",
		"details": gin.H{
			"accepted_inputs": []string{"file", "url", "base64"},
		},
	})
}

func respond(c *gin.Context, requestID, source string, verdict *classifier.Verdict, err error) {
	if err != nil {
		status, body := errorResponse(err)
		body["request_id"] = requestID
		c.JSON(status, body)
		return
	}

	body := gin.H{
		"result":       verdict.Label,
		"isRealHotdog": verdict.IsHotdog,
		"source":       source,
		"request_id":   requestID,
	}
	if verdict.Description != "" {
		body["description"] = verdict.Description
	}
	c.JSON(http.StatusOK, body)
}

func errorResponse(err error) (int, gin.H) {
	var validation *imaging.ValidationError
	if errors.As(err, &validation) {
		body := gin.H{"error": validation.Message}
		if len(validation.Details) > 0 {
			body["details"] = validation.Details
		}
		return http.StatusBadRequest, body
	}

	var size *imaging.SizeError
	if errors.As(err, &size) {
		return http.StatusRequestEntityTooLarge, gin.H{
			"error":   "File too large",
			"details": gin.H{"max_size_mb": float64(size.Max) / 1024 / 1024},
		}
	}

	var download *usecase.DownloadError
	if errors.As(err, &download) {
		return http.StatusServiceUnavailable, gin.H{"error": "Failed to download image from URL"}
	}

	var model *usecase.ClassifierError
	if errors.As(err, &model) {
		return http.StatusBadGateway, gin.H{"error": "Classification service unavailable"}
	}

	return http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred"}
}
