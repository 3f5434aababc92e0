package emotionService

import (
	"EmotionLens/internal/api/emotion"
	emotionRepository "EmotionLens/internal/api/emotion/repository"
	"EmotionLens/internal/entity"
	"EmotionLens/pkg/detector"
	"EmotionLens/pkg/redis"
	"EmotionLens/pkg/s3"
	"EmotionLens/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"os"
	"strconv"
	"time"
)

type IEmotionService interface {
	Analyze(ctx context.Context, req emotion.AnalyzeRequest) (emotion.AnalyzeResult, error)
	GetSettings(ctx context.Context, sessionID string) (entity.RenderConfig, error)
	UpdateSettings(ctx context.Context, sessionID string, overrides emotion.RenderOverrides) (entity.RenderConfig, error)
	GetHistory(ctx context.Context, page, limit int) (emotion.HistoryResponse, error)
	GetAnalysis(ctx context.Context, id string) (entity.Analysis, error)
	Labels() emotion.LabelsResponse
}

type Options struct {
	MaxImageDimension int
	CacheTTL          time.Duration
	SessionTTL        time.Duration
}

// OptionsFromEnv reads MAX_IMAGE_DIMENSION, DETECTION_CACHE_TTL and SESSION_TTL.
func OptionsFromEnv() Options {
	opts := Options{
		MaxImageDimension: 1920,
		CacheTTL:          10 * time.Minute,
		SessionTTL:        7 * 24 * time.Hour,
	}

	if v, err := strconv.Atoi(os.Getenv("MAX_IMAGE_DIMENSION")); err == nil && v > 0 {
		opts.MaxImageDimension = v
	}
	if v, err := time.ParseDuration(os.Getenv("DETECTION_CACHE_TTL")); err == nil {
		opts.CacheTTL = v
	}
	if v, err := time.ParseDuration(os.Getenv("SESSION_TTL")); err == nil && v > 0 {
		opts.SessionTTL = v
	}

	return opts
}

type emotionService struct {
	log               *logrus.Logger
	detector          detector.IEmotionDetector
	cache             redis.IRedis
	emotionRepository emotionRepository.Repository
	s3                s3.ItfS3
	utils             utils.IUtils
	opts              Options
}

// NewEmotionService wires the analysis pipeline. cache, repository and s3 are
// optional: a nil value disables caching and sessions, history and archiving.
func NewEmotionService(
	log *logrus.Logger,
	detector detector.IEmotionDetector,
	cache redis.IRedis,
	er emotionRepository.Repository,
	s3 s3.ItfS3,
	utils utils.IUtils,
	opts Options,
) IEmotionService {
	return &emotionService{
		log:               log,
		detector:          detector,
		cache:             cache,
		emotionRepository: er,
		s3:                s3,
		utils:             utils,
		opts:              opts,
	}
}

func (s *emotionService) detectorName() string {
	if s.detector == nil {
		return "none"
	}
	return s.detector.Name()
}

func (s *emotionService) Labels() emotion.LabelsResponse {
	labels := make([]string, len(entity.CanonicalEmotions))
	copy(labels, entity.CanonicalEmotions)

	return emotion.LabelsResponse{
		Labels:   labels,
		Detector: s.detectorName(),
	}
}
