package emotionHandler

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"EmotionLens/internal/api/emotion"
	emotionService "EmotionLens/internal/api/emotion/service"
	"EmotionLens/internal/entity"
	"EmotionLens/internal/middleware"
	"EmotionLens/pkg/handlerUtil"
	"EmotionLens/pkg/redis"
	"EmotionLens/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	faces []entity.DetectedFace
}

func (s *stubDetector) Name() string { return "stub" }

func (s *stubDetector) Detect(context.Context, []byte) ([]entity.DetectedFace, error) {
	return s.faces, nil
}

type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryRedis) Set(_ context.Context, key string, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.ErrNotFound
	}
	return v, nil
}

func (m *memoryRedis) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func happyFaces() []entity.DetectedFace {
	return []entity.DetectedFace{{
		BoundingBox:   entity.BoundingBox{X: 40, Y: 60, Width: 60, Height: 60},
		EmotionScores: map[string]float64{"happy": 0.9, "sad": 0.1},
	}}
}

func newTestApp(t *testing.T, faces []entity.DetectedFace, cache redis.IRedis) *fiber.App {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	u := utils.New()
	svc := emotionService.NewEmotionService(logger, &stubDetector{faces: faces}, cache, nil, nil, u, emotionService.Options{
		MaxImageDimension: 1920,
		CacheTTL:          time.Minute,
		SessionTTL:        time.Hour,
	})

	m := middleware.New(logger)
	app := fiber.New()
	app.Use(m.NewRequestIDMiddleware())
	New(logger, validator.New(), m, svc, u).Start(app.Group("/api/v1"))
	return app
}

func grayPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 90, 90, 90, 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path string, fields map[string]string, data []byte, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="face.png"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(v))
}

func TestAnalyzeUpload(t *testing.T) {
	app := newTestApp(t, happyFaces(), nil)

	resp, err := app.Test(multipartRequest(t, "/api/v1/emotion/analyze", map[string]string{
		"min_confidence": "0.5",
		"show_confidence": "true",
	}, grayPNG(t), "image/png"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body emotion.AnalyzeResponse
	decode(t, resp, &body)
	require.Len(t, body.Faces, 1)
	assert.Equal(t, "happy", body.Faces[0].DominantEmotion)
	assert.Equal(t, "happy: 0.90", body.Faces[0].Label)
	assert.True(t, body.Faces[0].Rendered)
	assert.Equal(t, "happy", body.Faces[0].Emotions[0].Label)
	assert.Equal(t, "image/png", body.MimeType)
	assert.Equal(t, 200, body.Width)
	assert.NotEmpty(t, body.ImageBase64)
	assert.NotEmpty(t, body.AnalysisID)
}

func TestAnalyzeThresholdOverride(t *testing.T) {
	app := newTestApp(t, happyFaces(), nil)

	resp, err := app.Test(multipartRequest(t, "/api/v1/emotion/analyze", map[string]string{
		"min_confidence": "0.95",
	}, grayPNG(t), "image/png"), -1)
	require.NoError(t, err)

	var body emotion.AnalyzeResponse
	decode(t, resp, &body)
	require.Len(t, body.Faces, 1)
	assert.False(t, body.Faces[0].Rendered)
	assert.Empty(t, body.Faces[0].Label)
}

func TestAnalyzeInvalidUpload(t *testing.T) {
	app := newTestApp(t, happyFaces(), nil)

	resp, err := app.Test(multipartRequest(t, "/api/v1/emotion/analyze", nil, []byte("garbage"), "image/jpeg"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body handlerUtil.ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, "Error: Could not read the image file", body.Error)
}

func TestAnalyzeRejectsNonImageUpload(t *testing.T) {
	app := newTestApp(t, happyFaces(), nil)

	resp, err := app.Test(multipartRequest(t, "/api/v1/emotion/analyze", nil, []byte("hello"), "text/plain"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body handlerUtil.ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, emotion.ErrInvalidFileType.Error(), body.Error)
}

func TestAnalyzeWebcamBase64(t *testing.T) {
	app := newTestApp(t, nil, nil)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(grayPNG(t))
	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/emotion/analyze",
		`{"image_base64":"`+dataURL+`","source":"webcam"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body emotion.AnalyzeResponse
	decode(t, resp, &body)
	assert.Equal(t, emotion.NoticeNoFace, body.Notice)
	assert.Empty(t, body.Faces)
}

func TestAnalyzeInvalidWebcamImage(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/emotion/analyze",
		`{"image_base64":"`+base64.StdEncoding.EncodeToString([]byte("nope"))+`","source":"webcam"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body handlerUtil.ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, "Error: Could not read the webcam image", body.Error)
}

func TestAnalyzeRequiresImage(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/emotion/analyze", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/api/v1/emotion/analyze", `{"source":"upload"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeValidation(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/api/v1/emotion/analyze",
		`{"image_base64":"AAAA","min_confidence":2}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body handlerUtil.ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
}

func TestAnnotate(t *testing.T) {
	app := newTestApp(t, happyFaces(), nil)

	resp, err := app.Test(multipartRequest(t, "/api/v1/emotion/annotate", map[string]string{
		"format": "png",
	}, grayPNG(t), "image/png"), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "1", resp.Header.Get("X-Face-Count"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestAnnotateNoFace(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp, err := app.Test(multipartRequest(t, "/api/v1/emotion/annotate", nil, grayPNG(t), "image/png"), -1)
	require.NoError(t, err)
	assert.Equal(t, "0", resp.Header.Get("X-Face-Count"))
	assert.Equal(t, emotion.NoticeNoFace, resp.Header.Get("X-Notice"))
}

func TestSettingsRoundTrip(t *testing.T) {
	app := newTestApp(t, nil, &memoryRedis{data: map[string]string{}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/emotion/settings", nil), -1)
	require.NoError(t, err)
	sessionID := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	var initial emotion.SettingsResponse
	decode(t, resp, &initial)
	assert.Equal(t, sessionID, initial.SessionID)
	assert.Equal(t, entity.DefaultRenderConfig(), initial.Settings)

	req := jsonRequest(http.MethodPut, "/api/v1/emotion/settings", `{"min_confidence":0.25,"show_confidence":false}`)
	req.Header.Set(SessionHeader, sessionID)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var updated emotion.SettingsResponse
	decode(t, resp, &updated)
	assert.Equal(t, 0.25, updated.Settings.MinConfidence)
	assert.False(t, updated.Settings.ShowConfidence)
	assert.True(t, updated.Settings.ShowBoundingBox)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/emotion/settings", nil)
	req.Header.Set(SessionHeader, sessionID)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)

	var stored emotion.SettingsResponse
	decode(t, resp, &stored)
	assert.Equal(t, updated.Settings, stored.Settings)
}

func TestSettingsValidation(t *testing.T) {
	app := newTestApp(t, nil, &memoryRedis{data: map[string]string{}})

	resp, err := app.Test(jsonRequest(http.MethodPut, "/api/v1/emotion/settings", `{"min_confidence":-1}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPut, "/api/v1/emotion/settings", `{"input_method":"fax"}`), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistoryDisabled(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/emotion/history?page=1&limit=5", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/emotion/history?limit=500", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLabels(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/emotion/labels", nil), -1)
	require.NoError(t, err)

	var body emotion.LabelsResponse
	decode(t, resp, &body)
	assert.Equal(t, entity.CanonicalEmotions, body.Labels)
	assert.Equal(t, "stub", body.Detector)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/emotion/ws", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebSocketStream(t *testing.T) {
	app := newTestApp(t, happyFaces(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/v1/emotion/ws?show_confidence=false", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(gorilla.BinaryMessage, grayPNG(t)))

	var frame emotion.AnalyzeResponse
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	require.Len(t, frame.Faces, 1)
	assert.Equal(t, "happy", frame.Faces[0].Label)

	require.NoError(t, conn.WriteMessage(gorilla.BinaryMessage, []byte("not an image")))

	var failure map[string]string
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, "Error: Could not read the webcam image", failure["error"])
}

func TestWebSocketRejectsOversizedFrame(t *testing.T) {
	t.Setenv("MAX_UPLOAD_MB", "1")
	app := newTestApp(t, happyFaces(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/v1/emotion/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	require.NoError(t, conn.WriteMessage(gorilla.BinaryMessage, bytes.Repeat([]byte{0xff}, 1536*1024)))

	var failure map[string]string
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, emotion.ErrFileTooLarge.Error(), failure["error"])

	require.NoError(t, conn.WriteMessage(gorilla.BinaryMessage, grayPNG(t)))

	var frame emotion.AnalyzeResponse
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Len(t, frame.Faces, 1)
}

func TestWebSocketIsRateLimited(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "0.001")
	t.Setenv("RATE_LIMIT_BURST", "1")
	app := newTestApp(t, nil, nil)

	var codes []int
	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/emotion/ws", nil), -1)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusUpgradeRequired, http.StatusTooManyRequests}, codes)
}
