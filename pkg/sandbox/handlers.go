package sandbox

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler returns the HTTP routes of the service.
func (s *Service) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = 32 << 20

	r.GET("/health", s.handleHealth)
	r.POST("/:language/execute", s.handleExecute)
	r.GET("/files/:id/:name", s.handleFile)
	return r
}

func (s *Service) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func sendError(c *gin.Context, status int, code, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "detail": detail})
}

func (s *Service) handleExecute(c *gin.Context) {
	name := c.Param("language")
	if _, err := s.language(name); err != nil {
		sendError(c, http.StatusBadRequest, "unsupported_language", "Unsupported language: "+name)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		sendError(c, http.StatusBadRequest, "invalid_form", fmt.Sprintf("Invalid form: %v", err))
		return
	}
	code := ""
	if v := form.Value["code"]; len(v) > 0 {
		code = v[0]
	}
	if code == "" {
		sendError(c, http.StatusBadRequest, "missing_code", "No code given")
		return
	}

	headers := form.File["files"]
	uploads := make([]Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > s.maxFileSize {
			sendError(c, http.StatusBadRequest, "file_too_large",
				fmt.Sprintf("File %s exceeds %d bytes", fh.Filename, s.maxFileSize))
			return
		}
		if err := checkName(fh.Filename); err != nil {
			sendError(c, http.StatusBadRequest, "invalid_filename", "Invalid filename: "+fh.Filename)
			return
		}
		f, err := fh.Open()
		if err != nil {
			sendError(c, http.StatusBadRequest, "invalid_form", fmt.Sprintf("Invalid file %s: %v", fh.Filename, err))
			return
		}
		defer f.Close()
		uploads = append(uploads, Upload{Name: fh.Filename, Data: f})
	}

	res, err := s.Execute(c.Request.Context(), name, code, uploads)
	switch {
	case errors.Is(err, ErrFileTooLarge):
		sendError(c, http.StatusBadRequest, "file_too_large", err.Error())
		return
	case errors.Is(err, ErrInvalidFilename):
		sendError(c, http.StatusBadRequest, "invalid_filename", err.Error())
		return
	case err != nil:
		s.logger.Error("execution failed", zap.String("language", name), zap.Error(err))
		sendError(c, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Service) handleFile(c *gin.Context) {
	path, err := s.File(c.Param("id"), c.Param("name"))
	if err != nil {
		sendError(c, http.StatusNotFound, "not_found", "File not found")
		return
	}
	c.Header("Content-Type", "application/octet-stream")
	c.File(path)
	if c.Writer.Status() == http.StatusOK {
		s.scheduleDelete(path)
	}
}

func (s *Service) handleHealth(c *gin.Context) {
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	entries, _ := os.ReadDir(s.root)
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"user":      username,
		"uid":       strconv.Itoa(os.Getuid()),
		"root":      s.root,
		"empty":     len(entries) == 0,
		"languages": s.Languages(),
	})
}
