package uiserver

import (
	"compress/gzip"
	"encoding/base64"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(1, 2, 10)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	// A different client has its own bucket.
	assert.True(t, limiter.Allow("10.0.0.2"))
}

func TestRateLimiter_BoundedTable(t *testing.T) {
	limiter := NewRateLimiter(1, 1, 2)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))
	assert.True(t, limiter.Allow("10.0.0.3"))

	limiter.mu.Lock()
	size := len(limiter.buckets)
	limiter.mu.Unlock()
	assert.LessOrEqual(t, size, 2)
}

func TestRateLimitMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(NewRateLimiter(1, 1, 10)))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(BasicAuth(map[string]string{"admin": string(hash)}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	// No credentials.
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderWWWAuthenticate), "Basic")

	// Wrong password.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(fiber.HeaderAuthorization,
		"Basic "+base64.StdEncoding.EncodeToString([]byte("admin:wrong")))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// Unknown user.
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(fiber.HeaderAuthorization,
		"Basic "+base64.StdEncoding.EncodeToString([]byte("nobody:secret")))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// Valid credentials.
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(fiber.HeaderAuthorization,
		"Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCompress(t *testing.T) {
	large := strings.Repeat("a", 2048)
	app := fiber.New()
	app.Use(Compress(64))
	app.Get("/large", func(c *fiber.Ctx) error { return c.SendString(large) })
	app.Get("/small", func(c *fiber.Ctx) error { return c.SendString("tiny") })

	// Client accepts gzip and the body is over threshold.
	req := httptest.NewRequest("GET", "/large", nil)
	req.Header.Set(fiber.HeaderAcceptEncoding, "gzip")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "gzip", resp.Header.Get(fiber.HeaderContentEncoding))
	assert.Equal(t, fiber.HeaderAcceptEncoding, resp.Header.Get(fiber.HeaderVary))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, large, string(decoded))

	// Client does not accept gzip.
	resp, err = app.Test(httptest.NewRequest("GET", "/large", nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get(fiber.HeaderContentEncoding))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, large, string(body))

	// Body under threshold stays uncompressed.
	req = httptest.NewRequest("GET", "/small", nil)
	req.Header.Set(fiber.HeaderAcceptEncoding, "gzip")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get(fiber.HeaderContentEncoding))
}
