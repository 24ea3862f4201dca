package uiserver

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// BasicAuth guards the UI surface with HTTP Basic credentials. users maps
// usernames to bcrypt password hashes.
func BasicAuth(users map[string]string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		user, pass, ok := parseBasicAuth(header)
		if ok {
			if hash, found := users[user]; found {
				if bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass)) == nil {
					return c.Next()
				}
			}
		}
		c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="fleetsim"`)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
}

func parseBasicAuth(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	user, pass, ok = strings.Cut(string(decoded), ":")
	return user, pass, ok
}

type bucket struct {
	tokens float64
	last   time.Time
}

// RateLimiter is a per-IP token bucket. The table is bounded: when full,
// idle entries are evicted first, then the least recently refilled one.
type RateLimiter struct {
	rate   float64
	burst  float64
	maxIPs int
	ttl    time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewRateLimiter(ratePerSecond float64, burst int, maxIPs int) *RateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	if maxIPs <= 0 {
		maxIPs = 1024
	}
	return &RateLimiter{
		rate:    ratePerSecond,
		burst:   float64(burst),
		maxIPs:  maxIPs,
		ttl:     time.Minute,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token for ip, reporting whether the request may proceed.
func (l *RateLimiter) Allow(ip string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) >= l.maxIPs {
			l.evictLocked(now)
		}
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[ip] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *RateLimiter) evictLocked(now time.Time) {
	oldestIP := ""
	var oldest time.Time
	for ip, b := range l.buckets {
		if now.Sub(b.last) > l.ttl {
			delete(l.buckets, ip)
			continue
		}
		if oldestIP == "" || b.last.Before(oldest) {
			oldestIP, oldest = ip, b.last
		}
	}
	if len(l.buckets) >= l.maxIPs && oldestIP != "" {
		delete(l.buckets, oldestIP)
	}
}

// RateLimit rejects over-limit requests with 429.
func RateLimit(limiter *RateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !limiter.Allow(c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		}
		return c.Next()
	}
}

// Compress gzips responses above threshold bytes for clients that accept
// gzip, advertising the negotiation with Vary.
func Compress(threshold int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if !strings.Contains(c.Get(fiber.HeaderAcceptEncoding), "gzip") {
			return nil
		}
		body := c.Response().Body()
		if len(body) <= threshold {
			return nil
		}
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			zw.Close()
			return nil
		}
		if err := zw.Close(); err != nil {
			return nil
		}
		c.Response().SetBodyRaw(buf.Bytes())
		c.Set(fiber.HeaderContentEncoding, "gzip")
		c.Set(fiber.HeaderVary, fiber.HeaderAcceptEncoding)
		return nil
	}
}
