package emotionHandler

import (
	emotionService "EmotionLens/internal/api/emotion/service"
	"EmotionLens/internal/middleware"
	"EmotionLens/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"time"
)

const (
	SessionHeader  = "X-Session-ID"
	requestTimeout = 30 * time.Second
)

type EmotionHandler struct {
	log            *logrus.Logger
	validator      *validator.Validate
	middleware     middleware.Middleware
	emotionService emotionService.IEmotionService
	utils          utils.IUtils
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	es emotionService.IEmotionService,
	utils utils.IUtils,
) *EmotionHandler {
	return &EmotionHandler{
		emotionService: es,
		log:            log,
		validator:      validator,
		middleware:     middleware,
		utils:          utils,
	}
}

func (h *EmotionHandler) Start(srv fiber.Router) {
	em := srv.Group("/emotion")

	em.Post("/analyze", h.middleware.NewRateLimiter, h.Analyze)
	em.Post("/annotate", h.middleware.NewRateLimiter, h.Annotate)

	em.Get("/settings", h.GetSettings)
	em.Put("/settings", h.UpdateSettings)

	em.Get("/history", h.GetHistory)
	em.Get("/history/:id", h.GetAnalysis)
	em.Get("/labels", h.GetLabels)

	em.Use("/ws", h.middleware.NewRateLimiter, h.prepareWebSocket)
	em.Get("/ws", websocket.New(h.handleWebSocket))
}
