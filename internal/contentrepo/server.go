package contentrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	apierrors "github.com/geoaware/backend/internal/errors"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/metrics"
	"github.com/geoaware/backend/internal/middleware"
	"github.com/geoaware/backend/internal/storage"
	"github.com/geoaware/backend/internal/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HeaderTTL carries the lifetime of an upload in seconds
const HeaderTTL = "X-TTL-Seconds"

// MaxTTLSeconds is the largest lifetime a time.Duration can hold
const MaxTTLSeconds = math.MaxInt64 / int64(time.Second)

// Server serves uploads and downloads of content blobs
type Server struct {
	db      *gorm.DB
	blobs   storage.BlobStore
	maxSize int64
	now     func() time.Time
}

// Option configures a Server
type Option func(*Server)

// WithMaxUploadSize rejects files larger than n bytes; 0 disables the limit
func WithMaxUploadSize(n int64) Option {
	return func(s *Server) { s.maxSize = n }
}

// WithClock overrides the time source used for expiry
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a content repository over db and blobs
func NewServer(db *gorm.DB, blobs storage.BlobStore, opts ...Option) *Server {
	s := &Server{db: db, blobs: blobs, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes mounts the repository endpoints on r
func (s *Server) Routes(r gin.IRouter) {
	r.GET("/health", s.Health)
	r.POST("/upload", middleware.RateLimitUpload(), s.Upload)
	r.GET("/files/:id", s.GetFile)
	r.GET("/files/:id/meta", s.GetMeta)
}

// parseTTL reads X-TTL-Seconds; an absent header selects DefaultTTL
func parseTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultTTL, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", HeaderTTL)
	}
	if n > MaxTTLSeconds {
		return 0, fmt.Errorf("%s must not exceed %d", HeaderTTL, MaxTTLSeconds)
	}
	return time.Duration(n) * time.Second, nil
}

// detectMIME trusts a specific declared type and sniffs the content
// otherwise. f is rewound afterwards.
func detectMIME(f multipart.File, declared string) (string, error) {
	detected, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}
	return detected.String(), nil
}

// Upload stores the multipart "file" field
func (s *Server) Upload(c *gin.Context) {
	ttl, err := parseTTL(c.GetHeader(HeaderTTL))
	if err != nil {
		util.RespondBadRequest(c, err.Error())
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		metrics.RecordContentUpload("rejected", 0)
		util.RespondBadRequest(c, "No file uploaded")
		return
	}
	if s.maxSize > 0 && header.Size > s.maxSize {
		metrics.RecordContentUpload("rejected", 0)
		util.RespondBadRequest(c, fmt.Sprintf("File too large (max %s)", humanize.Bytes(uint64(s.maxSize))))
		return
	}

	f, err := header.Open()
	if err != nil {
		util.RespondBadRequest(c, "No file uploaded")
		return
	}
	defer f.Close()

	mimeType, err := detectMIME(f, header.Header.Get("Content-Type"))
	if err != nil {
		util.RespondInternalError(c, "Failed to read upload")
		return
	}

	ctx := c.Request.Context()
	id := uuid.New().String()
	key := id + strings.ToLower(filepath.Ext(header.Filename))

	stored, err := s.blobs.Put(ctx, key, f, header.Size, mimeType)
	if err != nil {
		metrics.RecordContentUpload("error", 0)
		logger.Log.Error("Failed to store blob", zap.String("key", key), zap.Error(err))
		util.RespondInternalError(c, "Failed to store file")
		return
	}

	now := s.now().UTC()
	record := FileRecord{
		ID:          id,
		Filename:    header.Filename,
		StoragePath: stored.Location,
		BlobKey:     key,
		MimeType:    mimeType,
		Size:        stored.Size,
		CreatedAt:   now,
		TTL:         int64(ttl / time.Second),
		ExpiresAt:   now.Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		metrics.RecordContentUpload("error", 0)
		logger.Log.Error("Failed to save file metadata", zap.String("id", id), zap.Error(err))
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			logger.Log.Warn("Orphaned blob left behind", zap.String("key", key), zap.Error(derr))
		}
		util.RespondInternalError(c, "Failed to store file")
		return
	}

	metrics.RecordContentUpload("success", record.Size)
	logger.Log.Info("File stored",
		zap.String("id", id),
		zap.String("filename", record.Filename),
		zap.String("mime_type", mimeType),
		zap.String("size", humanize.Bytes(uint64(record.Size))),
		zap.Time("expires_at", record.ExpiresAt),
	)

	c.JSON(http.StatusCreated, gin.H{
		"id":         record.ID,
		"ttl":        record.TTL,
		"expires_at": record.ExpiresAt,
	})
}

func (s *Server) lookup(c *gin.Context) (*FileRecord, bool) {
	id := c.Param("id")
	if !util.IsValidUUID(id) {
		util.RespondNotFound(c, "File")
		return nil, false
	}

	var record FileRecord
	err := s.db.WithContext(c.Request.Context()).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.RespondNotFound(c, "File")
		return nil, false
	} else if err != nil {
		logger.Log.Error("Failed to load file metadata", zap.String("id", id), zap.Error(err))
		util.RespondInternalError(c, "Failed to load file")
		return nil, false
	}
	return &record, true
}

// GetFile streams the blob unless it has expired
func (s *Server) GetFile(c *gin.Context) {
	record, ok := s.lookup(c)
	if !ok {
		return
	}
	if record.Expired(s.now()) {
		util.RespondWithAPIError(c, apierrors.Gone("Content Expired"))
		return
	}

	body, err := s.blobs.Open(c.Request.Context(), record.BlobKey)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Log.Warn("Blob missing for metadata row", zap.String("id", record.ID))
		util.RespondNotFound(c, "File")
		return
	} else if err != nil {
		logger.Log.Error("Failed to open blob", zap.String("id", record.ID), zap.Error(err))
		util.RespondInternalError(c, "Failed to read file")
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, record.Size, record.MimeType, body, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", record.Filename),
	})
}

// FileMeta is the metadata response
type FileMeta struct {
	FileRecord
	IsExpired bool   `json:"is_expired"`
	SizeHuman string `json:"size_human"`
}

// GetMeta returns the metadata of a blob, expired or not
func (s *Server) GetMeta(c *gin.Context) {
	record, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, FileMeta{
		FileRecord: *record,
		IsExpired:  record.Expired(s.now()),
		SizeHuman:  humanize.Bytes(uint64(record.Size)),
	})
}

// Health checks the metadata database and the blob store
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	status, code := "ok", http.StatusOK

	var files int64
	if err := s.db.WithContext(ctx).Model(&FileRecord{}).Count(&files).Error; err != nil {
		checks["database"] = err.Error()
		status, code = "unhealthy", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if err := s.blobs.Check(ctx); err != nil {
		checks["storage"] = err.Error()
		status, code = "unhealthy", http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"service":   "content-repository",
		"timestamp": time.Now().UTC(),
		"files":     files,
		"checks":    checks,
	})
}
