package emotionRepository

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"EmotionLens/internal/api/emotion"
	"EmotionLens/internal/entity"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var analysisColumns = []string{
	"id", "request_id", "source", "detector", "face_count",
	"dominant_emotions", "width", "height", "image_url", "created_at",
}

func newMockClient(t *testing.T) (Client, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := New(sqlx.NewDb(db, "postgres"), logger).NewClient(false)
	require.NoError(t, err)
	return client, mock
}

func TestAnalysisDBToEntity(t *testing.T) {
	now := time.Now()
	row := AnalysisDB{
		ID:               "01J0000000000000000000000",
		RequestID:        sql.NullString{String: "req", Valid: true},
		Source:           "webcam",
		Detector:         "websocket",
		FaceCount:        2,
		DominantEmotions: pq.StringArray{"happy", "sad"},
		Width:            640,
		Height:           480,
		CreatedAt:        now,
	}

	a := row.toEntity()
	assert.Equal(t, entity.InputWebcam, a.Source)
	assert.Equal(t, "req", a.RequestID)
	assert.Equal(t, []string{"happy", "sad"}, a.DominantEmotions)
	assert.Empty(t, a.ImageURL)
	assert.Equal(t, now, a.CreatedAt)
}

func TestCreateAnalysis(t *testing.T) {
	client, mock := newMockClient(t)
	createdAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO emotion_analyses")).
		WithArgs(
			"01JANALYSIS",
			"req-1",
			"upload",
			"stub",
			2,
			pq.Array([]string{"happy", "sad"}),
			640,
			480,
			nil,
			createdAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := client.Analysis.CreateAnalysis(context.Background(), entity.Analysis{
		ID:               "01JANALYSIS",
		RequestID:        "req-1",
		Source:           entity.InputUpload,
		Detector:         "stub",
		FaceCount:        2,
		DominantEmotions: []string{"happy", "sad"},
		Width:            640,
		Height:           480,
		CreatedAt:        createdAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAnalysisDatabaseError(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO emotion_analyses")).
		WillReturnError(errors.New("connection reset"))

	err := client.Analysis.CreateAnalysis(context.Background(), entity.Analysis{ID: "01JANALYSIS"})
	assert.EqualError(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecentAnalyses(t *testing.T) {
	client, mock := newMockClient(t)
	createdAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM emotion_analyses")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2")).
		WithArgs(2, 4).
		WillReturnRows(sqlmock.NewRows(analysisColumns).
			AddRow("01JB", "req-2", "webcam", "stub", 1, "{happy}", 320, 240, "https://bucket/b.png", createdAt).
			AddRow("01JA", nil, "upload", "stub", 0, "{}", 640, 480, nil, createdAt))

	analyses, total, err := client.Analysis.GetRecentAnalyses(context.Background(), 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, analyses, 2)

	assert.Equal(t, "01JB", analyses[0].ID)
	assert.Equal(t, entity.InputWebcam, analyses[0].Source)
	assert.Equal(t, []string{"happy"}, analyses[0].DominantEmotions)
	assert.Equal(t, "https://bucket/b.png", analyses[0].ImageURL)

	assert.Empty(t, analyses[1].RequestID)
	assert.Empty(t, analyses[1].DominantEmotions)
	assert.Empty(t, analyses[1].ImageURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecentAnalysesCountError(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM emotion_analyses")).
		WillReturnError(errors.New("relation does not exist"))

	_, _, err := client.Analysis.GetRecentAnalyses(context.Background(), 20, 0)
	assert.EqualError(t, err, "relation does not exist")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAnalysisByID(t *testing.T) {
	client, mock := newMockClient(t)
	createdAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs("01JB").
		WillReturnRows(sqlmock.NewRows(analysisColumns).
			AddRow("01JB", "req-2", "webcam", "gemini", 2, "{happy,sad}", 320, 240, nil, createdAt))

	a, err := client.Analysis.GetAnalysisByID(context.Background(), "01JB")
	require.NoError(t, err)
	assert.Equal(t, "gemini", a.Detector)
	assert.Equal(t, 2, a.FaceCount)
	assert.Equal(t, []string{"happy", "sad"}, a.DominantEmotions)
	assert.Equal(t, createdAt, a.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAnalysisByIDNotFound(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(analysisColumns))

	_, err := client.Analysis.GetAnalysisByID(context.Background(), "missing")
	assert.ErrorIs(t, err, emotion.ErrAnalysisNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
