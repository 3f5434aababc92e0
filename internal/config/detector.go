package config

import (
	"EmotionLens/pkg/detector"
	"EmotionLens/pkg/gemini"
	websocketPkg "EmotionLens/pkg/websocket"
	"github.com/sirupsen/logrus"
	"os"
	"strings"
)

const (
	DetectorWebsocket = "websocket"
	DetectorGemini    = "gemini"
)

// NewDetector picks the emotion detector backend from EMOTION_DETECTOR. The
// backend is built lazily, once per process.
func NewDetector(logger *logrus.Logger) *detector.Lazy {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("EMOTION_DETECTOR"))) {
	case DetectorGemini:
		return detector.NewLazy(DetectorGemini, func() (detector.IEmotionDetector, error) {
			client, err := gemini.NewGeminiClient()
			if err != nil {
				return nil, err
			}
			return detector.NewGeminiDetector(client), nil
		})
	default:
		return detector.NewLazy(DetectorWebsocket, func() (detector.IEmotionDetector, error) {
			return websocketPkg.NewAIWebSocketClient(logger), nil
		})
	}
}
