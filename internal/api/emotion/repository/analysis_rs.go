package emotionRepository

import (
	"EmotionLens/internal/api/emotion"
	"EmotionLens/internal/entity"
	contextPkg "EmotionLens/pkg/context"
	"context"
	"database/sql"
	"errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"time"
)

type AnalysisDB struct {
	ID               string         `db:"id"`
	RequestID        sql.NullString `db:"request_id"`
	Source           string         `db:"source"`
	Detector         string         `db:"detector"`
	FaceCount        int            `db:"face_count"`
	DominantEmotions pq.StringArray `db:"dominant_emotions"`
	Width            int            `db:"width"`
	Height           int            `db:"height"`
	ImageURL         sql.NullString `db:"image_url"`
	CreatedAt        time.Time      `db:"created_at"`
}

func (a AnalysisDB) toEntity() entity.Analysis {
	return entity.Analysis{
		ID:               a.ID,
		RequestID:        a.RequestID.String,
		Source:           entity.InputMethod(a.Source),
		Detector:         a.Detector,
		FaceCount:        a.FaceCount,
		DominantEmotions: []string(a.DominantEmotions),
		Width:            a.Width,
		Height:           a.Height,
		ImageURL:         a.ImageURL.String,
		CreatedAt:        a.CreatedAt,
	}
}

func (r *analysisRepository) CreateAnalysis(c context.Context, analysis entity.Analysis) error {
	requestID := contextPkg.GetRequestID(c)

	createdAt := analysis.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	argsKV := map[string]interface{}{
		"id":                analysis.ID,
		"request_id":        sql.NullString{String: analysis.RequestID, Valid: analysis.RequestID != ""},
		"source":            string(analysis.Source),
		"detector":          analysis.Detector,
		"face_count":        analysis.FaceCount,
		"dominant_emotions": pq.Array(analysis.DominantEmotions),
		"width":             analysis.Width,
		"height":            analysis.Height,
		"image_url":         sql.NullString{String: analysis.ImageURL, Valid: analysis.ImageURL != ""},
		"created_at":        createdAt,
	}

	query, args, err := sqlx.Named(queryCreateAnalysis, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateAnalysis")
		return err
	}
	query = r.q.Rebind(query)

	if _, err = r.q.ExecContext(c, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating analysis")
		return err
	}

	return nil
}

func (r *analysisRepository) GetRecentAnalyses(c context.Context, limit, offset int) ([]entity.Analysis, int, error) {
	requestID := contextPkg.GetRequestID(c)

	var total int
	if err := r.q.GetContext(c, &total, queryCountAnalyses); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when counting analyses")
		return nil, 0, err
	}

	query, args, err := sqlx.Named(queryGetRecentAnalyses, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetRecentAnalyses named query preparation err")
		return nil, 0, err
	}
	query = r.q.Rebind(query)

	var rows []AnalysisDB
	if err := r.q.SelectContext(c, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when listing analyses")
		return nil, 0, err
	}

	analyses := make([]entity.Analysis, 0, len(rows))
	for _, row := range rows {
		analyses = append(analyses, row.toEntity())
	}

	return analyses, total, nil
}

func (r *analysisRepository) GetAnalysisByID(c context.Context, id string) (entity.Analysis, error) {
	requestID := contextPkg.GetRequestID(c)

	query, args, err := sqlx.Named(queryGetAnalysisByID, map[string]interface{}{
		"id": id,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetAnalysisByID named query preparation err")
		return entity.Analysis{}, err
	}
	query = r.q.Rebind(query)

	var row AnalysisDB
	if err := r.q.QueryRowxContext(c, query, args...).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"id":         id,
			}).Warn("Analysis not found")
			return entity.Analysis{}, emotion.ErrAnalysisNotFound
		}

		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when getting analysis")
		return entity.Analysis{}, err
	}

	return row.toEntity(), nil
}
