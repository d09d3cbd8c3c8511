package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// CacheHeader reports whether a response came from the cache.
const CacheHeader = "X-Cache"

// CacheStore is satisfied by *cache.Cache.
type CacheStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

// ResponseCache serves GET requests under any of prefixes from store and records
// fresh 200 responses for ttl. Other methods and paths pass straight through.
func ResponseCache(store CacheStore, prefixes []string, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || !hasPrefix(r.URL.Path, prefixes) {
				next.ServeHTTP(w, r)
				return
			}
			key := CacheKey(r)
			if raw, ok := store.Get(key); ok {
				var sr storedResponse
				if err := json.Unmarshal(raw, &sr); err == nil {
					w.Header().Set(CacheHeader, "HIT")
					sr.replay(w)
					return
				}
			}

			w.Header().Set(CacheHeader, "MISS")
			var body bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			if ww.Status() != http.StatusOK {
				return
			}
			raw, err := json.Marshal(storedResponse{ContentType: ww.Header().Get("Content-Type"), Body: body.Bytes()})
			if err == nil {
				store.Set(key, raw, ttl)
			}
		})
	}
}

// CacheKey is "GET:<path>?<sorted query>", suffixed with "|user_<id>" for authenticated callers.
// The access_token parameter is credentials, not part of the resource, and is left out.
func CacheKey(r *http.Request) string {
	q := r.URL.Query()
	q.Del(accessTokenParam)
	key := "GET:" + r.URL.Path + "?" + q.Encode()
	if c, ok := ClaimsFromContext(r.Context()); ok && c.UserID != "" {
		key += "|user_" + c.UserID
	}
	return key
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
