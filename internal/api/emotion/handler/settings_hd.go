package emotionHandler

import (
	"EmotionLens/internal/api/emotion"
	contextPkg "EmotionLens/pkg/context"
	"EmotionLens/pkg/handlerUtil"
	"EmotionLens/pkg/log"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
	"time"
)

// sessionID returns the caller's session, minting one when the header is missing.
func (h *EmotionHandler) sessionID(ctx *fiber.Ctx) (string, error) {
	id := ctx.Get(SessionHeader)
	if id == "" {
		var err error
		id, err = h.utils.NewULIDFromTimestamp(time.Now())
		if err != nil {
			return "", err
		}
	}
	ctx.Set(SessionHeader, id)
	return id, nil
}

func (h *EmotionHandler) GetSettings(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	sessionID, err := h.sessionID(ctx)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "session_id")
	}

	settings, err := h.emotionService.GetSettings(contextPkg.WithSessionID(c, sessionID), sessionID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_settings")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, emotion.SettingsResponse{
			SessionID: sessionID,
			Settings:  settings,
		})
	}
}

func (h *EmotionHandler) UpdateSettings(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing update settings request")

	var req emotion.RenderOverrides
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, fiber.NewError(fiber.StatusBadRequest, "invalid request body"), ctx.Path(), "parse_request_body")
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	sessionID, err := h.sessionID(ctx)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "session_id")
	}

	settings, err := h.emotionService.UpdateSettings(contextPkg.WithSessionID(c, sessionID), sessionID, req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "update_settings")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, emotion.SettingsResponse{
			SessionID: sessionID,
			Settings:  settings,
		})
	}
}
