package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/rembg-api/internal/logging"
)

const (
	RemoveBackgroundPath = "/api/remove-background"
	HealthPath           = "/health"

	fileField      = "file"
	outputFilename = "removed_bg.png"

	msgNoFilePart     = "No file part"
	msgNoSelectedFile = "No selected file"
)

// Remover turns uploaded image bytes into a PNG cutout.
type Remover interface {
	RemoveBackground(ctx context.Context, data []byte) ([]byte, error)
}

type Handler struct {
	remover        Remover
	logger         *zap.Logger
	maxUploadBytes int64
}

func NewHandler(remover Remover, logger *zap.Logger, maxUploadBytes int64) *Handler {
	return &Handler{
		remover:        remover,
		logger:         logger.Named("handlers"),
		maxUploadBytes: maxUploadBytes,
	}
}

// NewRouter builds the gin engine with middleware and routes installed.
func NewRouter(h *Handler, corsOrigin string) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), AccessLog(h.logger), Recovery(h.logger), CORS(corsOrigin))
	RegisterRoutes(router, h)
	return router
}

func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.GET(HealthPath, h.Health)
	router.POST(RemoveBackgroundPath, h.RemoveBackground)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// RemoveBackground expects a multipart upload with the image in the "file"
// field and answers with the cutout as an inline PNG.
func (h *Handler) RemoveBackground(c *gin.Context) {
	requestID := requestIDFrom(c)
	opLogger := logging.WithOperation(h.logger, "handlers.remove_background", requestID)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	mr, err := c.Request.MultipartReader()
	if err != nil {
		opLogger.Debug("not a multipart upload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoFilePart})
		return
	}

	upload, err := readFilePart(mr)
	switch {
	case err != nil && isTooLarge(err):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	case err != nil:
		opLogger.Debug("unreadable multipart body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoFilePart})
		return
	case upload == nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoFilePart})
		return
	case upload.filename == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNoSelectedFile})
		return
	}
	opLogger.Info("processing upload",
		zap.String("filename", upload.filename),
		zap.Int("bytes", len(upload.data)))

	out, err := h.remover.RemoveBackground(c.Request.Context(), upload.data)
	if err != nil {
		h.fail(c, requestID, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+outputFilename+`"`)
	c.Data(http.StatusOK, "image/png", out)
}

func (h *Handler) fail(c *gin.Context, requestID string, err error) {
	wrapped := logging.NewOperationError("handlers.remove_background", requestID, err)
	h.logger.Error("background removal failed", logging.ErrorFields(wrapped)...)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

type uploadedFile struct {
	filename string
	data     []byte
}

// readFilePart returns the first "file" part that carries a filename
// parameter, or nil if there is none. Plain "file" fields are skipped. The
// data of a part with an empty filename is not read.
func readFilePart(mr *multipart.Reader) (*uploadedFile, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != fileField {
			continue
		}
		filename, ok := dispositionFilename(part)
		if !ok {
			continue
		}
		if filename == "" {
			return &uploadedFile{}, nil
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, err
		}
		return &uploadedFile{filename: filename, data: data}, nil
	}
}

func dispositionFilename(part *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}
	filename, ok := params["filename"]
	return filename, ok
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return errors.Is(err, multipart.ErrMessageTooLarge) ||
		strings.Contains(err.Error(), "request body too large")
}
