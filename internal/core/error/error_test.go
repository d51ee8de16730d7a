package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOfAndMessageOf(t *testing.T) {
	err := New(errors.New("boom"), http.StatusPaymentRequired, QuotaExceededMessage)
	assert.Equal(t, http.StatusPaymentRequired, StatusOf(err))
	assert.Equal(t, QuotaExceededMessage, MessageOf(err))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.Equal(t, http.StatusPaymentRequired, StatusOf(wrapped))
	assert.Equal(t, QuotaExceededMessage, MessageOf(wrapped))

	plain := errors.New("raw")
	assert.Equal(t, http.StatusInternalServerError, StatusOf(plain))
	assert.Equal(t, SystemErrorMessage, MessageOf(plain))
}

func TestUnwrapChain(t *testing.T) {
	base := errors.New("base")
	err := New(base, http.StatusBadGateway, ShopifyErrorMessage)

	assert.True(t, errors.Is(err, base))

	var ae *AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusBadGateway, ae.Status)
}

func TestWrapRedis(t *testing.T) {
	assert.NoError(t, WrapRedis(nil))

	err := WrapRedis(redis.Nil)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))

	err = WrapRedis(errors.New("connection refused"))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Equal(t, RedisErrorMessage, MessageOf(err))
}

func TestWrapPostgres(t *testing.T) {
	assert.NoError(t, WrapPostgres(nil))

	err := WrapPostgres(pgx.ErrNoRows)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))

	err = WrapPostgres(&pgconn.PgError{Code: "23505"})
	assert.Equal(t, http.StatusConflict, StatusOf(err))

	err = WrapPostgres(errors.New("network down"))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestWrapModel(t *testing.T) {
	assert.Nil(t, WrapModel(nil))

	err := WrapModel(errors.New("provider 500"))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Equal(t, ModelErrorMessage, MessageOf(err))
}
