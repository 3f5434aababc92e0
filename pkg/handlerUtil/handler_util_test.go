package handlerUtil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"EmotionLens/pkg/response"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, err error) (int, ErrorResponse) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := New(logger)

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return h.Handle(c, "req-1", err, c.Path(), "test")
	})

	resp, reqErr := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, reqErr)
	defer resp.Body.Close()

	var body ErrorResponse
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHandleResponseError(t *testing.T) {
	status, body := serve(t, fmt.Errorf("decode: %w", response.NewError(http.StatusBadRequest, "Error: Could not read the image file")))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Error: Could not read the image file", body.Error)
}

func TestHandleDeadline(t *testing.T) {
	status, _ := serve(t, fmt.Errorf("detect: %w", context.DeadlineExceeded))
	assert.Equal(t, http.StatusRequestTimeout, status)
}

func TestHandleUnexpected(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	status, body := serve(t, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "An unexpected error occurred", body.Error)
	assert.NotEmpty(t, body.Details)
}
