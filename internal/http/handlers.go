package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/cpu"
	"go.uber.org/zap"

	"imgcache/internal/cache"
	"imgcache/internal/config"
	"imgcache/internal/image_provider"
)

const maxDimension = 8192

type ImageProvider interface {
	FetchImage(ctx context.Context, url string, size *cache.Size) (image.Image, bool)
	Stats() image_provider.Stats
	Clear() error
}

type TierStatter interface {
	Stats() cache.TierStats
}

type Encoder interface {
	Encode(img image.Image) ([]byte, error)
}

type Handlers struct {
	config   *config.Config
	logger   *zap.Logger
	provider ImageProvider
	tiers    TierStatter
	encoder  Encoder
	started  time.Time
}

func New(config *config.Config, logger *zap.Logger, provider ImageProvider, tiers TierStatter, encoder Encoder) *Handlers {
	return &Handlers{
		config:   config,
		logger:   logger,
		provider: provider,
		tiers:    tiers,
		encoder:  encoder,
		started:  time.Now(),
	}
}

// Routes registers every endpoint on a new mux wrapped in the logging and
// CORS middleware.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/image", h.HandleImage)
	mux.HandleFunc("/api/stats", h.HandleStats)
	mux.HandleFunc("/api/cache", h.HandleCache)
	mux.HandleFunc("/healthz", h.HandleHealthz)

	return h.RequestLoggingMiddleware(h.CORSMiddleware(mux))
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		bytes := wrapped.bytesWritten

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", bytes),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else {
			host := r.Host
			if origin != "" && (strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host)) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, If-None-Match")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HandleImage serves /api/image?url=...&width=...&height=... as PNG.
func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	url := query.Get("url")
	if url == "" {
		http.Error(w, "Missing url parameter", http.StatusBadRequest)
		return
	}

	size, err := parseSize(query.Get("width"), query.Get("height"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	etag := `"` + generateETag(cache.Key(url, size)) + `"`
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	img, ok := h.provider.FetchImage(r.Context(), url, size)
	if !ok {
		http.Error(w, "Image not available", http.StatusNotFound)
		return
	}

	data, err := h.encoder.Encode(img)
	if err != nil {
		h.logger.Error("Failed to encode image", zap.String("url", url), zap.Error(err))
		http.Error(w, "Failed to encode image", http.StatusInternalServerError)
		return
	}

	bounds := img.Bounds()
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Image-Size", fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()))

	// HEAD request doesn't send body
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(data)
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := map[string]interface{}{
		"provider":       h.provider.Stats(),
		"tiers":          h.tiers.Stats(),
		"cpu_percent":    cpuUsage(),
		"goroutines":     runtime.NumGoroutine(),
		"heap_bytes":     mem.HeapAlloc,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleCache purges both tiers on DELETE.
func (h *Handlers) HandleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.config.IsPurgePublic() {
		token := ""
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != h.config.AdminToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	if err := h.provider.Clear(); err != nil {
		h.logger.Error("Failed to purge cache", zap.Error(err))
		http.Error(w, "Failed to purge cache", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Cache purged", zap.String("ip", h.extractIP(r)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"purged": true})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// parseSize reads an optional target size. Both dimensions or neither.
func parseSize(width, height string) (*cache.Size, error) {
	if width == "" && height == "" {
		return nil, nil
	}
	if width == "" || height == "" {
		return nil, fmt.Errorf("width and height must be given together")
	}

	w, err := strconv.Atoi(width)
	if err != nil || w <= 0 || w > maxDimension {
		return nil, fmt.Errorf("invalid width %q", width)
	}
	h, err := strconv.Atoi(height)
	if err != nil || h <= 0 || h > maxDimension {
		return nil, fmt.Errorf("invalid height %q", height)
	}

	return &cache.Size{Width: w, Height: h}, nil
}

func generateETag(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])[:16]
}

func cpuUsage() float64 {
	percent, err := cpu.Percent(0, false)
	if err != nil || len(percent) == 0 {
		return 0
	}
	return percent[0]
}

// Not for real production use due to potential spoofing
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
