package emotionHandler

import (
	"EmotionLens/internal/api/emotion"
	"EmotionLens/internal/entity"
	contextPkg "EmotionLens/pkg/context"
	"EmotionLens/pkg/handlerUtil"
	"EmotionLens/pkg/ingest"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
	"time"
)

const (
	renderConfigLocal = "render_config"
	wsRequestIDLocal  = "ws_request_id"
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

// prepareWebSocket rejects plain HTTP requests and resolves the render
// settings for the stream before the upgrade: query parameters override the
// settings of the session named by ?session_id.
func (h *EmotionHandler) prepareWebSocket(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	var overrides emotion.RenderOverrides
	if err := ctx.QueryParser(&overrides); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(overrides); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	settings, err := h.emotionService.GetSettings(contextPkg.FromFiberCtx(ctx), ctx.Query("session_id"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_settings")
	}

	ctx.Locals(renderConfigLocal, overrides.Apply(settings))
	ctx.Locals(wsRequestIDLocal, requestID)

	return ctx.Next()
}

func (h *EmotionHandler) handleWebSocket(c *websocket.Conn) {
	h.log.Info("Emotion WebSocket client connected")
	defer h.log.Info("Emotion WebSocket client disconnected")

	cfg, ok := c.Locals(renderConfigLocal).(entity.RenderConfig)
	if !ok {
		cfg = entity.DefaultRenderConfig()
	}
	requestID, _ := c.Locals(wsRequestIDLocal).(string)
	maxFrame := h.utils.MaxFileSize()

	// base64 text frames are about a third larger than the image they carry
	c.SetReadLimit(maxFrame * 2)

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			h.log.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Errorf("Emotion WebSocket error: %v", err)
			}
			break
		}

		var frame []byte
		switch messageType {
		case websocket.BinaryMessage:
			frame = message
		case websocket.TextMessage:
			frame, err = ingest.DecodeBase64(string(message))
			if err != nil {
				if !h.writeFrameResult(c, fiber.Map{"error": emotion.ErrInvalidWebcamImage.Error()}) {
					return
				}
				continue
			}
		default:
			h.log.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		if int64(len(frame)) > maxFrame {
			if !h.writeFrameResult(c, fiber.Map{"error": emotion.ErrFileTooLarge.Error()}) {
				return
			}
			continue
		}

		result, err := h.analyzeFrame(requestID, frame, cfg)
		if err != nil {
			h.log.Warnf("Error processing webcam frame: %v", err)
			if !h.writeFrameResult(c, fiber.Map{"error": err.Error()}) {
				return
			}
			continue
		}

		if !h.writeFrameResult(c, emotion.NewAnalyzeResponse(result)) {
			return
		}
	}
}

func (h *EmotionHandler) analyzeFrame(requestID string, frame []byte, cfg entity.RenderConfig) (emotion.AnalyzeResult, error) {
	ctx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), requestID), requestTimeout)
	defer cancel()

	return h.emotionService.Analyze(ctx, emotion.AnalyzeRequest{
		Image:  frame,
		Source: entity.InputWebcam,
		Config: cfg,
	})
}

func (h *EmotionHandler) writeFrameResult(c *websocket.Conn, payload interface{}) bool {
	if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		h.log.Errorf("Error setting write deadline: %v", err)
		return false
	}

	if err := c.WriteJSON(payload); err != nil {
		h.log.Errorf("Error writing JSON response: %v", err)
		return false
	}

	return true
}
