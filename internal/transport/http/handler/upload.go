package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"dermascan-gateway/internal/app"
	"dermascan-gateway/internal/config"
	"dermascan-gateway/internal/transport/http/middleware"
	"dermascan-gateway/internal/transport/http/response"
	"dermascan-gateway/internal/vision"
)

const (
	infoMessage = "Skin Cancer Detection API. POST a file to test."
	uploadField = "file"

	msgNoFile       = "No file uploaded!"
	msgNoSelection  = "No file selected!"
	msgTooLarge     = "File too large!"
	msgProcessingFn = "Error processing image: %v"
)

var (
	errNoFile        = errors.New("no file part")
	errEmptyFilename = errors.New("empty filename")
	errTooLarge      = errors.New("file too large")
)

type Detector interface {
	Detect(ctx context.Context, input app.DetectInput) ([]string, error)
}

// UploadHandler serves the root route: GET for the banner, POST for detection.
type UploadHandler struct {
	detector  Detector
	errorMode string
	maxBytes  int64
	maxPixels int64
}

func NewUploadHandler(detector Detector, errorMode string, maxBytes, maxPixels int64) *UploadHandler {
	if errorMode == "" {
		errorMode = config.ErrorModeLegacy
	}
	return &UploadHandler{
		detector:  detector,
		errorMode: errorMode,
		maxBytes:  maxBytes,
		maxPixels: maxPixels,
	}
}

func (h *UploadHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": infoMessage})
}

func (h *UploadHandler) Upload(c *gin.Context) {
	upload, err := readUpload(c.Request, h.maxBytes)
	switch {
	case errors.Is(err, errNoFile):
		response.PlainError(c, http.StatusBadRequest, msgNoFile)
		return
	case errors.Is(err, errEmptyFilename):
		response.PlainError(c, http.StatusBadRequest, msgNoSelection)
		return
	case errors.Is(err, errTooLarge):
		response.PlainError(c, http.StatusRequestEntityTooLarge, msgTooLarge)
		return
	case err != nil:
		response.PlainError(c, http.StatusInternalServerError, fmt.Sprintf(msgProcessingFn, err))
		return
	}

	img, _, err := vision.DecodeBounded(upload.data, h.maxPixels)
	if err != nil {
		response.PlainError(c, http.StatusInternalServerError, fmt.Sprintf(msgProcessingFn, err))
		return
	}

	classes, err := h.detector.Detect(c.Request.Context(), app.DetectInput{
		RequestID: middleware.GetRequestID(c),
		Filename:  upload.filename,
		Image:     img,
	})
	if err != nil {
		var infErr *app.InferenceError
		if !errors.As(err, &infErr) {
			response.PlainError(c, http.StatusInternalServerError, fmt.Sprintf(msgProcessingFn, err))
			return
		}
		if h.errorMode == config.ErrorModeStrict {
			response.PlainError(c, http.StatusBadGateway, infErr.Error())
			return
		}
		response.Classes(c, []string{infErr.Error()})
		return
	}

	response.Classes(c, classes)
}

type uploadedFile struct {
	filename string
	data     []byte
}

// readUpload streams the multipart body looking for the "file" part. A part with a
// filename parameter counts as a file even when the filename is empty, which is what
// browsers send when nothing was selected; a plain text field named "file" does not.
func readUpload(r *http.Request, maxBytes int64) (*uploadedFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFile
	}

	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF, or a body too malformed to hold the part.
			return nil, errNoFile
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil {
			_ = part.Close()
			continue
		}
		filename, isFile := params["filename"]
		if !isFile {
			_ = part.Close()
			continue
		}
		if filename == "" {
			_ = part.Close()
			return nil, errEmptyFilename
		}

		data, err := readLimited(part, maxBytes)
		_ = part.Close()
		if err != nil {
			return nil, err
		}
		return &uploadedFile{filename: filepath.Base(filename), data: data}, nil
	}
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, errTooLarge
	}
	return data, nil
}
