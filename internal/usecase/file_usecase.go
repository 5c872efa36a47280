package usecase

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"chatsync/internal/domain/entity"
	"chatsync/internal/domain/service"
	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

const (
	DefaultUploadMaxBytes = 10 * 1024 * 1024
	uploadFolder          = "chat-files"
)

// allowedUploadTypes lists accepted content types, including the names the
// content sniffer uses for the same formats.
var allowedUploadTypes = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp", "image/svg+xml",
	"video/mp4", "video/webm", "video/quicktime", "video/x-msvideo",
	"audio/mpeg", "audio/mp3", "audio/wav", "audio/x-wav", "audio/ogg", "audio/x-m4a", "audio/mp4",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain", "text/csv",
	"application/zip", "application/x-rar-compressed",
}

type UploadResult struct {
	URL              string `json:"url"`
	PublicID         string `json:"publicId"`
	Format           string `json:"format"`
	Bytes            int64  `json:"bytes"`
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	OriginalFilename string `json:"originalFilename"`
	ResourceType     string `json:"resourceType"`
	FileType         string `json:"fileType"`
	ContentType      string `json:"contentType"`
}

// Attachment converts the upload into a message payload.
func (r *UploadResult) Attachment() entity.Attachment {
	return entity.Attachment{
		URL:          r.URL,
		FileName:     r.OriginalFilename,
		FileType:     r.FileType,
		FileSize:     r.Bytes,
		Format:       r.Format,
		Width:        r.Width,
		Height:       r.Height,
		PublicID:     r.PublicID,
		ResourceType: r.ResourceType,
	}
}

type FileUseCase struct {
	storage  service.FileStorage
	maxBytes int64
}

// NewFileUseCase accepts a nil storage; uploads then fail with UNAVAILABLE.
func NewFileUseCase(storage service.FileStorage, maxBytes int64) *FileUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultUploadMaxBytes
	}
	return &FileUseCase{
		storage:  storage,
		maxBytes: maxBytes,
	}
}

func (uc *FileUseCase) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	if uc.storage == nil {
		return nil, errors.Unavailable("File storage is not configured", nil)
	}

	data, err := io.ReadAll(io.LimitReader(r, uc.maxBytes+1))
	if err != nil {
		return nil, errors.BadRequest("Failed to read file", err)
	}
	if int64(len(data)) > uc.maxBytes {
		return nil, errors.BadRequest(fmt.Sprintf("File exceeds the %s limit", FormatFileSize(uc.maxBytes)), nil)
	}
	if len(data) == 0 {
		return nil, errors.BadRequest("File is empty", nil)
	}

	mtype := mimetype.Detect(data)
	if !IsSupportedFileType(mtype) {
		return nil, errors.BadRequest("Unsupported file type: "+mtype.String(), nil)
	}
	contentType := baseContentType(mtype.String())

	result := &UploadResult{
		Format:           strings.TrimPrefix(mtype.Extension(), "."),
		Bytes:            int64(len(data)),
		OriginalFilename: filepath.Base(filename),
		ResourceType:     resourceType(contentType),
		FileType:         ClassifyFileType(contentType),
		ContentType:      contentType,
	}

	if strings.HasPrefix(contentType, "image/") && contentType != "image/svg+xml" {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			result.Width, result.Height = cfg.Width, cfg.Height
		} else {
			logger.Debug("Could not read dimensions of %s: %v", filename, err)
		}
	}

	stored, err := uc.storage.Upload(ctx, bytes.NewReader(data), contentType, uploadFolder, mtype.Extension())
	if err != nil {
		return nil, errors.Unavailable("Upload failed", err)
	}
	result.URL = stored.URL
	result.PublicID = stored.ObjectName

	logger.Info("Stored upload %s (%s, %s)", stored.ObjectName, contentType, FormatFileSize(result.Bytes))
	return result, nil
}

func IsSupportedFileType(mtype *mimetype.MIME) bool {
	for _, allowed := range allowedUploadTypes {
		if mtype.Is(allowed) {
			return true
		}
	}
	return false
}

func baseContentType(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		return strings.TrimSpace(mime[:i])
	}
	return mime
}

func resourceType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	default:
		return "raw"
	}
}

// ClassifyFileType buckets a content type into the categories the chat UI
// renders icons for.
func ClassifyFileType(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	case strings.Contains(mime, "pdf"):
		return "pdf"
	// OOXML spreadsheet and slide types also contain "officedocument".
	case strings.Contains(mime, "spreadsheet") || strings.Contains(mime, "excel"):
		return "spreadsheet"
	case strings.Contains(mime, "presentation") || strings.Contains(mime, "powerpoint"):
		return "presentation"
	case strings.Contains(mime, "word") || strings.Contains(mime, "document"):
		return "document"
	case strings.Contains(mime, "text/"):
		return "text"
	case strings.Contains(mime, "zip") || strings.Contains(mime, "rar") || strings.Contains(mime, "compressed"):
		return "archive"
	}
	return "file"
}

// FormatFileSize renders n in the largest unit below it, e.g. "1.5 MB".
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	v := float64(n) / math.Pow(1024, float64(i))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + units[i]
}
