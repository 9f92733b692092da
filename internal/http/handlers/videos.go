package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"

	"loopcast/internal/config"
	"loopcast/internal/models"
	"loopcast/internal/session"
	"loopcast/internal/storage"
)

// VideosHandler handles listing stream candidates and receiving uploads.
type VideosHandler struct {
	store         *storage.Store
	extraDirs     []string
	maxUploadSize config.ByteSize
	logger        *slog.Logger
}

// NewVideosHandler creates a videos handler storing uploads in store and
// also listing videos from extraDirs.
func NewVideosHandler(store *storage.Store, maxUploadSize config.ByteSize, logger *slog.Logger, extraDirs ...string) *VideosHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideosHandler{
		store:         store,
		extraDirs:     extraDirs,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// VideoBody describes one stream candidate.
type VideoBody struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int64  `json:"size_bytes"`
}

// ListVideosInput is the input for the video listing endpoint.
type ListVideosInput struct{}

// ListVideosOutput is the output for the video listing endpoint.
type ListVideosOutput struct {
	Body struct {
		Videos []VideoBody `json:"videos"`
	}
}

// Register registers the video routes with the API.
func (h *VideosHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listVideos",
		Method:      "GET",
		Path:        "/api/v1/videos",
		Summary:     "List stream candidates",
		Description: "Returns the videos available for streaming, uploads first",
		Tags:        []string{"Videos"},
	}, h.List)
}

// RegisterUpload registers the multipart upload route on a chi router.
// This uses Chi directly because Huma doesn't handle multipart file
// uploads well.
func (h *VideosHandler) RegisterUpload(router interface {
	Post(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Post("/api/v1/videos/upload", h.Upload)
}

// List returns all stream candidates.
func (h *VideosHandler) List(ctx context.Context, input *ListVideosInput) (*ListVideosOutput, error) {
	paths := h.store.ListVideos(h.extraDirs...)

	out := &ListVideosOutput{}
	out.Body.Videos = make([]VideoBody, 0, len(paths))
	for _, p := range paths {
		v := VideoBody{Path: p, Name: filepath.Base(p)}
		if info, err := os.Stat(p); err == nil {
			v.Size = info.Size()
		}
		out.Body.Videos = append(out.Body.Videos, v)
	}
	return out, nil
}

// Upload receives a video file as multipart form data and stores it
// chunk by chunk, never overwriting an existing upload.
func (h *VideosHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		if r.ContentLength > int64(h.maxUploadSize) {
			writeJSONError(w, fmt.Sprintf("upload exceeds limit of %s", h.maxUploadSize), http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxUploadSize))
	}

	// Streamed parsing: the file part goes straight to disk instead of a
	// memory or temp-file buffer.
	reader, err := r.MultipartReader()
	if err != nil {
		writeJSONError(w, fmt.Sprintf("failed to parse form: %v", err), http.StatusBadRequest)
		return
	}

	part, err := reader.NextPart()
	if err != nil {
		if isBodyTooLarge(err) {
			writeJSONError(w, fmt.Sprintf("upload exceeds limit of %s", h.maxUploadSize), http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer part.Close()

	if part.FormName() != "file" {
		writeJSONError(w, "expected form field \"file\"", http.StatusBadRequest)
		return
	}

	name := filepath.Base(part.FileName())
	if err := storage.ValidName(name); err != nil {
		if errors.Is(err, models.ErrUnsupportedFormat) {
			writeJSONError(w, "unsupported format, expected .mp4 or .flv", http.StatusBadRequest)
		} else {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	sess, hasSession := session.FromContext(r.Context())

	// The multipart part does not declare its own length, and the request
	// Content-Length includes boundary overhead, so the total is unknown.
	var progress func(written, total int64)
	if hasSession {
		const milestone = int64(256) << 20
		next := milestone
		progress = func(written, _ int64) {
			if written >= next {
				sess.Logs.Appendf("receiving %s: %d MiB", name, written>>20)
				next += milestone
			}
		}
	}

	target, err := h.store.Save(name, part, models.TotalUnknown, progress)
	if err != nil {
		// A partial file may remain; report and leave it for the sweep.
		h.logger.Warn("upload failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		if isBodyTooLarge(err) {
			writeJSONError(w, fmt.Sprintf("upload exceeds limit of %s", h.maxUploadSize), http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	if hasSession {
		sess.Logs.Appendf("uploaded %s (%d bytes)", filepath.Base(target.DestinationPath), target.BytesWritten)
	}

	h.logger.Info("video uploaded",
		slog.String("name", name),
		slog.String("path", target.DestinationPath),
		slog.Int64("bytes", target.BytesWritten),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"path":          target.DestinationPath,
		"name":          filepath.Base(target.DestinationPath),
		"bytes_written": target.BytesWritten,
	})
}

// isBodyTooLarge reports whether err came from a MaxBytesReader-capped
// body. A chunked upload with no Content-Length only trips the limit
// mid-read, so the pre-check on the declared length cannot catch it.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// writeJSONError writes an error response in JSON format for consistency
// with API clients.
func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
