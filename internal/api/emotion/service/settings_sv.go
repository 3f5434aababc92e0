package emotionService

import (
	"EmotionLens/internal/api/emotion"
	"EmotionLens/internal/entity"
	contextPkg "EmotionLens/pkg/context"
	"EmotionLens/pkg/redis"
	"errors"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const settingsPrefix = "emotion:settings:"

// GetSettings returns the sidebar state stored for sessionID, or the defaults
// when there is none or the session store is unavailable.
func (s *emotionService) GetSettings(ctx context.Context, sessionID string) (entity.RenderConfig, error) {
	defaults := entity.DefaultRenderConfig()
	if s.cache == nil || sessionID == "" {
		return defaults, nil
	}
	requestID := contextPkg.GetRequestID(ctx)

	raw, err := s.cache.Get(ctx, settingsPrefix+sessionID)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"session_id": sessionID,
				"error":      err.Error(),
			}).Warn("Failed to load session settings")
		}
		return defaults, nil
	}

	cfg := defaults
	if err := jsoniter.UnmarshalFromString(raw, &cfg); err != nil || cfg.Validate() != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"session_id": sessionID,
		}).Warn("Discarding corrupt session settings")
		return defaults, nil
	}

	return cfg, nil
}

func (s *emotionService) UpdateSettings(ctx context.Context, sessionID string, overrides emotion.RenderOverrides) (entity.RenderConfig, error) {
	requestID := contextPkg.GetRequestID(ctx)

	current, err := s.GetSettings(ctx, sessionID)
	if err != nil {
		return entity.RenderConfig{}, err
	}

	cfg := overrides.Apply(current)
	if err := cfg.Validate(); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Rejected session settings")
		return entity.RenderConfig{}, emotion.ErrInvalidSettings
	}

	if s.cache == nil || sessionID == "" {
		return cfg, nil
	}

	raw, err := jsoniter.MarshalToString(cfg)
	if err != nil {
		return entity.RenderConfig{}, err
	}

	if err := s.cache.Set(ctx, settingsPrefix+sessionID, raw, s.opts.SessionTTL); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"session_id": sessionID,
			"error":      err.Error(),
		}).Error("Failed to store session settings")
		return entity.RenderConfig{}, emotion.ErrInternalServerError
	}

	return cfg, nil
}
