package emotionService

import (
	"EmotionLens/internal/api/emotion"
	"EmotionLens/internal/entity"
	contextPkg "EmotionLens/pkg/context"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (s *emotionService) GetHistory(ctx context.Context, page, limit int) (emotion.HistoryResponse, error) {
	if s.emotionRepository == nil {
		return emotion.HistoryResponse{}, emotion.ErrHistoryDisabled
	}
	requestID := contextPkg.GetRequestID(ctx)

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	repo, err := s.emotionRepository.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return emotion.HistoryResponse{}, err
	}

	analyses, total, err := repo.Analysis.GetRecentAnalyses(ctx, limit, (page-1)*limit)
	if err != nil {
		return emotion.HistoryResponse{}, err
	}

	items := make([]emotion.AnalysisResponse, 0, len(analyses))
	for _, a := range analyses {
		if a.ImageURL != "" && s.s3 != nil {
			if presigned, err := s.s3.PresignUrl(a.ImageURL); err == nil {
				a.ImageURL = presigned
			}
		}
		items = append(items, emotion.NewAnalysisResponse(a))
	}

	return emotion.HistoryResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	}, nil
}

func (s *emotionService) GetAnalysis(ctx context.Context, id string) (entity.Analysis, error) {
	if s.emotionRepository == nil {
		return entity.Analysis{}, emotion.ErrHistoryDisabled
	}
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.emotionRepository.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return entity.Analysis{}, err
	}

	analysis, err := repo.Analysis.GetAnalysisByID(ctx, id)
	if err != nil {
		return entity.Analysis{}, err
	}

	if analysis.ImageURL != "" && s.s3 != nil {
		if presigned, err := s.s3.PresignUrl(analysis.ImageURL); err == nil {
			analysis.ImageURL = presigned
		}
	}

	return analysis, nil
}
