package contentrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/geoaware/backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// pngHeader is enough for content sniffing to report image/png
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type fixture struct {
	db     *gorm.DB
	blobs  *storage.LocalStore
	server *Server
	router *gin.Engine
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := OpenDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{db: db, blobs: blobs, now: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	f.server = NewServer(db, blobs, WithClock(func() time.Time { return f.now }), WithMaxUploadSize(1<<20))
	f.router = gin.New()
	f.server.Routes(f.router)
	return f
}

func (f *fixture) upload(t *testing.T, filename, contentType string, body []byte, ttl string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(body)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no file here"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if ttl != "" {
		req.Header.Set(HeaderTTL, ttl)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

type uploadResponse struct {
	ID        string    `json:"id"`
	TTL       int64     `json:"ttl"`
	ExpiresAt time.Time `json:"expires_at"`
}

func TestUploadAndDownload(t *testing.T) {
	f := newFixture(t)

	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 64)...)
	w := f.upload(t, "Photo.PNG", "", body, "120")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(120), resp.TTL)
	assert.True(t, resp.ExpiresAt.Equal(f.now.Add(2*time.Minute)))

	var record FileRecord
	require.NoError(t, f.db.First(&record, "id = ?", resp.ID).Error)
	assert.Equal(t, resp.ID+".png", record.BlobKey)
	assert.Equal(t, "image/png", record.MimeType)
	assert.Equal(t, int64(len(body)), record.Size)

	w = f.get("/files/" + resp.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(len(body)), w.Header().Get("Content-Length"))
	assert.Equal(t, body, w.Body.Bytes())
}

func TestUploadDefaultsAndDeclaredType(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "notes.txt", "text/markdown", []byte("# hi"), "")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(DefaultTTL/time.Second), resp.TTL)

	w = f.get("/files/" + resp.ID + "/meta")
	require.Equal(t, http.StatusOK, w.Code)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "text/markdown", meta["mime_type"])
	assert.Equal(t, "notes.txt", meta["filename"])
	assert.Equal(t, false, meta["is_expired"])
	assert.Equal(t, "4 B", meta["size_human"])
	assert.NotContains(t, meta, "BlobKey")
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		filename string
		body     []byte
		ttl      string
		message  string
	}{
		{"missing file", "", nil, "", "No file uploaded"},
		{"zero ttl", "a.txt", []byte("x"), "0", ""},
		{"negative ttl", "a.txt", []byte("x"), "-5", ""},
		{"text ttl", "a.txt", []byte("x"), "soon", "positive integer"},
		{"ttl beyond duration range", "a.txt", []byte("x"), "10000000000", "must not exceed"},
		{"too large", "big.bin", make([]byte, 1<<20+1), "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.upload(t, tt.filename, "", tt.body, tt.ttl)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			if tt.message != "" {
				assert.Contains(t, w.Body.String(), tt.message)
			}
		})
	}

	var count int64
	f.db.Model(&FileRecord{}).Count(&count)
	assert.Zero(t, count)
}

func TestExpiredContentIsGone(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "a.txt", "text/plain", []byte("soon gone"), "60")
	require.Equal(t, http.StatusCreated, w.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	f.now = f.now.Add(61 * time.Second)

	w = f.get("/files/" + resp.ID)
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), "Content Expired")

	w = f.get("/files/" + resp.ID + "/meta")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_expired":true`)
}

func TestMissingFiles(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{
		"/files/not-a-uuid",
		"/files/7d4f2c1a-0b8e-4f3a-9c6d-5e2b1a0f9e8d",
		"/files/7d4f2c1a-0b8e-4f3a-9c6d-5e2b1a0f9e8d/meta",
	} {
		assert.Equal(t, http.StatusNotFound, f.get(path).Code, path)
	}
}

func TestMissingBlobIsNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "a.txt", "text/plain", []byte("data"), "")
	require.Equal(t, http.StatusCreated, w.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.NoError(t, f.blobs.Delete(context.Background(), resp.ID+".txt"))
	assert.Equal(t, http.StatusNotFound, f.get("/files/"+resp.ID).Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.get("/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"files":0`)
}

// failingDeletes wraps a store and fails every Delete
type failingDeletes struct {
	storage.BlobStore
}

func (failingDeletes) Delete(context.Context, string) error {
	return errors.New("bucket unavailable")
}

func TestCleanerRunOnce(t *testing.T) {
	f := newFixture(t)

	ids := map[string]string{}
	for _, name := range []string{"short", "long"} {
		ttl := "60"
		if name == "long" {
			ttl = "3600"
		}
		w := f.upload(t, name+".txt", "text/plain", []byte(name), ttl)
		require.Equal(t, http.StatusCreated, w.Code)
		var resp uploadResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		ids[name] = resp.ID
	}

	cleaner := NewCleaner(f.db, f.blobs, 0)
	assert.Equal(t, DefaultCleanupInterval, cleaner.interval)
	cleaner.now = func() time.Time { return f.now.Add(10 * time.Minute) }

	n, err := cleaner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.blobs.Open(context.Background(), ids["short"]+".txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rc, err := f.blobs.Open(context.Background(), ids["long"]+".txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "long", string(data))

	n, err = cleaner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanerRemovesRowsWhenBlobDeleteFails(t *testing.T) {
	f := newFixture(t)

	w := f.upload(t, "a.txt", "text/plain", []byte("x"), "1")
	require.Equal(t, http.StatusCreated, w.Code)

	cleaner := NewCleaner(f.db, failingDeletes{f.blobs}, time.Minute)
	cleaner.now = func() time.Time { return f.now.Add(time.Hour) }

	n, err := cleaner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var count int64
	f.db.Model(&FileRecord{}).Count(&count)
	assert.Zero(t, count)
}

func TestCleanerStartAndStop(t *testing.T) {
	f := newFixture(t)

	cleaner := NewCleaner(f.db, f.blobs, 10*time.Millisecond)
	cleaner.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	cleaner.Stop()
	cleaner.Stop()
}

func TestParseTTL(t *testing.T) {
	ttl, err := parseTTL("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, ttl)

	ttl, err = parseTTL(" 90 ")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, ttl)

	ttl, err = parseTTL(fmt.Sprint(MaxTTLSeconds))
	require.NoError(t, err)
	assert.Positive(t, ttl)

	for _, raw := range []string{"0", "-1", "1.5", "abc", "10000000000", fmt.Sprint(MaxTTLSeconds + 1)} {
		_, err := parseTTL(raw)
		assert.Error(t, err, raw)
	}
}
