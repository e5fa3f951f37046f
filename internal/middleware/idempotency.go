package middleware

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minio/sha256-simd"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "sponsorpay:idempotency:v1:"
	inProgressMarker     = "__in_progress__"
	redisTimeout         = 2 * time.Second
)

type storedResponse struct {
	RequestHash string `json:"requestHash"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response for a repeated Idempotency-Key so a
// resubmitted form cannot move funds twice. Requests without the header pass
// through. 5xx answers are not stored, so the client may retry them.
//
// A key is bound to the SHA-256 of the body it was first used with. The same key
// on a different body (another leg of the transfer, another amount) gets 422.
func Idempotency(cache *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		logger := zerolog.Ctx(c.Request.Context())
		cacheKey := idempotencyPrefix + key

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		requestHash := hex.EncodeToString(sum[:])

		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			if string(cached) == inProgressMarker {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request currently processing"})
				return
			}
			var stored storedResponse
			if err := json.Unmarshal(cached, &stored); err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("Failed to decode stored idempotent response")
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request"})
				return
			}
			if stored.RequestHash != requestHash {
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "Idempotency-Key was already used with a different request body"})
				return
			}
			c.Header("Idempotent-Replayed", "true")
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		case !errors.Is(err, redis.Nil):
			logger.Error().Err(err).Str("key", key).Msg("Idempotency lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "idempotency store failure"})
			return
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Error().Err(err).Str("key", key).Msg("Idempotency reservation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "idempotency store failure"})
			return
		}
		if !reserved {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request currently processing"})
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		persistCtx, persistCancel := context.WithTimeout(context.Background(), redisTimeout)
		defer persistCancel()

		status := rec.Status()
		if status >= http.StatusInternalServerError {
			cache.Del(persistCtx, cacheKey)
			return
		}
		payload, err := json.Marshal(storedResponse{
			RequestHash: requestHash,
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err == nil {
			err = cache.Set(persistCtx, cacheKey, payload, ttl).Err()
		}
		if err != nil {
			logger.Error().Err(err).Str("key", key).Msg("Failed to persist idempotent response")
			cache.Del(persistCtx, cacheKey)
		}
	}
}
