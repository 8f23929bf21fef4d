package httpx_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/notesauth/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestIPKeyExtractor(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "192.168.1.1:12345", nil, "192.168.1.1"},
		{"untrusted peer cannot spoof forwarded for", "198.51.100.7:12345",
			map[string]string{"X-Forwarded-For": "203.0.113.1"}, "198.51.100.7"},
		{"untrusted peer cannot spoof real ip", "198.51.100.7:12345",
			map[string]string{"X-Real-IP": "203.0.113.2"}, "198.51.100.7"},
		{"trusted proxy forwarded for", "10.0.0.5:12345",
			map[string]string{"X-Forwarded-For": "203.0.113.1"}, "203.0.113.1"},
		{"client prepended hops are skipped", "10.0.0.5:12345",
			map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.1, 10.0.0.9"}, "203.0.113.1"},
		{"only trusted hops", "10.0.0.5:12345",
			map[string]string{"X-Forwarded-For": "10.0.0.8, 10.0.0.9"}, "10.0.0.8"},
		{"trusted proxy real ip", "10.0.0.5:12345",
			map[string]string{"X-Real-IP": "203.0.113.2"}, "203.0.113.2"},
		{"trusted proxy without headers", "10.0.0.5:12345", nil, "10.0.0.5"},
	}

	prefixes, err := httpx.ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	require.NoError(t, err)
	httpx.SetTrustedProxies(prefixes)
	t.Cleanup(func() { httpx.SetTrustedProxies(nil) })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.IPKeyExtractor(req))
		})
	}
}

func TestForwardedHeadersIgnoredWithoutTrustedProxies(t *testing.T) {
	httpx.SetTrustedProxies(nil)
	cfg := httpx.RateLimitConfig{Name: "test", RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	h := httpx.RateLimitByIP(cfg)(okHandler())

	// Rotating the header must not buy a fresh bucket.
	codes := make([]int, 0, 3)
	for _, spoofed := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.7:1"
		req.Header.Set("X-Forwarded-For", spoofed)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := httpx.ParseTrustedProxies([]string{"10.1.2.3/8", " 127.0.0.1 ", "::1", "fd00::/8"})
	require.NoError(t, err)
	want := []string{"10.0.0.0/8", "127.0.0.1/32", "::1/128", "fd00::/8"}
	require.Len(t, got, len(want))
	for i, p := range got {
		require.Equal(t, want[i], p.String())
	}

	for _, bad := range []string{"proxy.local", "10.0.0.0/33", ""} {
		_, err := httpx.ParseTrustedProxies([]string{bad})
		require.Error(t, err, bad)
	}
}

func TestJSONFieldKeyExtractor(t *testing.T) {
	extract := httpx.JSONFieldKeyExtractor("username")

	t.Run("reads field and restores body", func(t *testing.T) {
		body := `{"username":" Alice ","password":"secret"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

		require.Equal(t, "alice", extract(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.Equal(t, body, string(rest))
	})

	t.Run("missing or malformed", func(t *testing.T) {
		for _, body := range []string{`{}`, `not json`, `{"username":42}`, ``} {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			require.Empty(t, extract(req), body)
		}
	})

	t.Run("body larger than the peek window is not truncated", func(t *testing.T) {
		body := `{"username":"alice","bio":"` + strings.Repeat("x", 100<<10) + `"}`
		orig := &closeRecorder{Reader: strings.NewReader(body)}
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Body = orig

		require.Equal(t, "alice", extract(req))
		require.False(t, orig.closed, "original body closed before the handler ran")

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.Equal(t, body, string(rest))

		require.NoError(t, req.Body.Close())
		require.True(t, orig.closed)
	})
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestRateLimitByJSONFieldPassesWholeBody(t *testing.T) {
	cfg := httpx.RateLimitConfig{Name: "test", RequestsPerWindow: 3, Window: time.Minute, Burst: 3}
	bio := strings.Repeat("y", 80<<10)

	var got struct {
		Username string `json:"username"`
		Bio      string `json:"bio"`
	}
	h := httpx.RateLimitByIPAndJSONField(cfg, "username")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := httpx.DecodeJSON(w, r, &got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"alice","bio":"`+bio+`"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", got.Username)
	require.Len(t, got.Bio, len(bio))
}

func TestCompositeKeyExtractor(t *testing.T) {
	extract := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.JSONFieldKeyExtractor("username"))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"alice"}`))
	req.RemoteAddr = "192.168.1.1:12345"
	require.Equal(t, "192.168.1.1:alice", extract(req))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.RemoteAddr = "192.168.1.1:12345"
	require.Equal(t, "192.168.1.1", extract(req))
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := httpx.RateLimitConfig{Name: "test", RequestsPerWindow: 3, Window: time.Minute, Burst: 3}

	t.Run("blocks over the limit", func(t *testing.T) {
		var limited atomic.Int32
		h := httpx.RateLimitByIP(cfg, func(profile string) {
			require.Equal(t, "test", profile)
			limited.Add(1)
		})(okHandler())

		for i := range 3 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
		require.Equal(t, int32(1), limited.Load())
	})

	t.Run("keys are independent", func(t *testing.T) {
		h := httpx.RateLimitByIP(cfg)(okHandler())

		for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
			for range 3 {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = ip + ":1"
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				require.Equal(t, http.StatusOK, rec.Code)
			}
		}
	})

	t.Run("empty key bypasses", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(cfg, func(*http.Request) string { return "" })(okHandler())
		for range 10 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("login attempts per username", func(t *testing.T) {
		h := httpx.RateLimitByIPAndJSONField(cfg, "username")(okHandler())
		post := func(user string) int {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"username":"`+user+`"}`))
			req.RemoteAddr = "10.0.0.9:1"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			return rec.Code
		}

		for range 3 {
			require.Equal(t, http.StatusOK, post("alice"))
		}
		require.Equal(t, http.StatusTooManyRequests, post("alice"))
		require.Equal(t, http.StatusOK, post("bob"))
	})
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{Name: "x", RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	t.Run("defaults", func(t *testing.T) {
		require.Equal(t, def, httpx.ParseRateLimitFromEnv("UNSET_PROFILE", def))
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("RATELIMIT_CUSTOM_REQUESTS", "50")
		t.Setenv("RATELIMIT_CUSTOM_WINDOW_SEC", "10")
		t.Setenv("RATELIMIT_CUSTOM_BURST", "7")

		got := httpx.ParseRateLimitFromEnv("CUSTOM", def)
		require.Equal(t, 50, got.RequestsPerWindow)
		require.Equal(t, 10*time.Second, got.Window)
		require.Equal(t, 7, got.Burst)
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		t.Setenv("RATELIMIT_BAD_REQUESTS", "-1")
		t.Setenv("RATELIMIT_BAD_WINDOW_SEC", "abc")
		t.Setenv("RATELIMIT_BAD_BURST", "0")
		require.Equal(t, def, httpx.ParseRateLimitFromEnv("BAD", def))
	})
}

func BenchmarkRateLimitManyIPs(b *testing.B) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
	h := httpx.RateLimitByIP(cfg)(okHandler())

	b.ResetTimer()
	for i := range b.N {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0." + string(rune('0'+i%10)) + ".1:1"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
