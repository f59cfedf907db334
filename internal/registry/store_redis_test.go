package registry

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"verigate/internal/provider"
)

func TestRedisKeyLayout(t *testing.T) {
	userID := uuid.MustParse("9f1c7a52-3d44-4b6e-8a01-2f5e9c0d7b13")

	assert.Equal(t, "opreg:op:op-1", opKey("op-1"))
	assert.Equal(t,
		"opreg:active:9f1c7a52-3d44-4b6e-8a01-2f5e9c0d7b13:login",
		redisActiveKey(userID, provider.PurposeLogin))
	assert.Equal(t,
		"opreg:active:9f1c7a52-3d44-4b6e-8a01-2f5e9c0d7b13:enrollment",
		redisActiveKey(userID, provider.PurposeEnrollment))
}

func TestRedisTTL(t *testing.T) {
	s := &RedisStore{}

	t.Run("no expiry falls back to a day", func(t *testing.T) {
		assert.Equal(t, 24*time.Hour, s.ttl(Operation{}))
	})

	t.Run("future expiry keeps a readability margin", func(t *testing.T) {
		op := Operation{ExpiresAt: time.Now().Add(10 * time.Minute)}
		ttl := s.ttl(op)
		assert.Greater(t, ttl, 10*time.Minute)
		assert.LessOrEqual(t, ttl, 11*time.Minute)
	})

	t.Run("past expiry still gets a short ttl", func(t *testing.T) {
		op := Operation{ExpiresAt: time.Now().Add(-time.Hour)}
		assert.Equal(t, time.Second+time.Minute, s.ttl(op))
	})
}
