package config

import (
	"EmotionLens/pkg/utils"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"os"
)

func NewFiber(logger *logrus.Logger) *fiber.App {
	// Leave headroom over the upload limit for multipart framing and base64 inflation.
	bodyLimit := int(utils.New().MaxFileSize())*2 + 1024*1024

	app := fiber.New(
		fiber.Config{
			AppName:           "EmotionLens",
			BodyLimit:         bodyLimit,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: os.Getenv("APP_ENV") == "development",
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
		})

	logger.Debugf("Fiber configured with body limit %d bytes", bodyLimit)

	return app
}
