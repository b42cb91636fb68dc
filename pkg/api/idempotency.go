package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"
)

// CachedResponse is a previously served response kept for replay.
// RequestHash binds it to the request body that produced it.
type CachedResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
	RequestHash string
	CachedAt    time.Time
}

// IdempotencyStore backs the Idempotency-Key header on proof submission.
// Replaying a key returns the original response instead of a 409 from the
// second allocation attempt.
type IdempotencyStore interface {
	Check(ctx context.Context, key string) (*CachedResponse, bool)
	Set(ctx context.Context, key string, resp CachedResponse)
}

// MemoryIdempotencyStore holds cached responses in process.
type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]CachedResponse
	ttl     time.Duration
}

// NewMemoryIdempotencyStore creates a store whose entries expire after ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[string]CachedResponse),
		ttl:     ttl,
	}
}

func (s *MemoryIdempotencyStore) Check(_ context.Context, key string) (*CachedResponse, bool) {
	s.mu.RLock()
	cached, ok := s.entries[key]
	s.mu.RUnlock()

	if ok && time.Since(cached.CachedAt) < s.ttl {
		return &cached, true
	}
	return nil, false
}

func (s *MemoryIdempotencyStore) Set(_ context.Context, key string, resp CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp.CachedAt.IsZero() {
		resp.CachedAt = time.Now()
	}
	s.entries[key] = resp
	for k, v := range s.entries {
		if time.Since(v.CachedAt) > s.ttl {
			delete(s.entries, k)
		}
	}
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.statusCode = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// hashRequest fingerprints a request body for idempotency matching.
func hashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// IdempotencyMiddleware replays the cached 2xx response of a POST carrying a
// previously seen Idempotency-Key. A key reused with a different body is
// rejected with 422 and never replayed.
func IdempotencyMiddleware(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
				if err != nil {
					WriteBadRequest(w, "request body could not be read")
					return
				}
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := hashRequest(body)

			if cached, ok := store.Check(r.Context(), key); ok {
				if cached.RequestHash != hash {
					WriteError(w, http.StatusUnprocessableEntity, "Unprocessable Entity",
						"Idempotency-Key was already used with a different request")
					return
				}
				w.Header().Set("Content-Type", cached.ContentType)
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}

			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.Set(r.Context(), key, CachedResponse{
					StatusCode:  capture.statusCode,
					ContentType: w.Header().Get("Content-Type"),
					Body:        capture.body.Bytes(),
					RequestHash: hash,
				})
			}
		})
	}
}
