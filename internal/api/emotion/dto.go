package emotion

import (
	"EmotionLens/internal/entity"
	"EmotionLens/pkg/ingest"
	"encoding/base64"
	"time"
)

const NoticeNoFace = "No face detected"

// RenderOverrides is a partial RenderConfig: nil fields keep the value
// they are applied to.
type RenderOverrides struct {
	MinConfidence   *float64 `json:"min_confidence" form:"min_confidence" query:"min_confidence" validate:"omitempty,gte=0,lte=1"`
	ShowBoundingBox *bool    `json:"show_bounding_box" form:"show_bounding_box" query:"show_bounding_box"`
	ShowConfidence  *bool    `json:"show_confidence" form:"show_confidence" query:"show_confidence"`
	InputMethod     *string  `json:"input_method" form:"input_method" query:"input_method" validate:"omitempty,oneof=upload webcam"`
}

func (o RenderOverrides) Apply(cfg entity.RenderConfig) entity.RenderConfig {
	if o.MinConfidence != nil {
		cfg.MinConfidence = *o.MinConfidence
	}
	if o.ShowBoundingBox != nil {
		cfg.ShowBoundingBox = *o.ShowBoundingBox
	}
	if o.ShowConfidence != nil {
		cfg.ShowConfidence = *o.ShowConfidence
	}
	if o.InputMethod != nil {
		cfg.InputMethod = entity.InputMethod(*o.InputMethod)
	}
	return cfg
}

// AnalyzeForm is the body of /analyze and /annotate, sent either as
// multipart form fields next to the "image" file or as JSON with image_base64.
type AnalyzeForm struct {
	ImageBase64     string   `json:"image_base64" form:"image_base64"`
	Source          string   `json:"source" form:"source" validate:"omitempty,oneof=upload webcam"`
	Format          string   `json:"format" form:"format" validate:"omitempty,oneof=jpeg jpg png"`
	MinConfidence   *float64 `json:"min_confidence" form:"min_confidence" validate:"omitempty,gte=0,lte=1"`
	ShowBoundingBox *bool    `json:"show_bounding_box" form:"show_bounding_box"`
	ShowConfidence  *bool    `json:"show_confidence" form:"show_confidence"`
}

func (f AnalyzeForm) Overrides() RenderOverrides {
	return RenderOverrides{
		MinConfidence:   f.MinConfidence,
		ShowBoundingBox: f.ShowBoundingBox,
		ShowConfidence:  f.ShowConfidence,
	}
}

type AnalyzeRequest struct {
	Image  []byte
	Source entity.InputMethod
	Config entity.RenderConfig
	// Format of the returned image. Empty keeps PNG inputs as PNG and
	// everything else as JPEG.
	Format ingest.Format
}

type AnalyzeResult struct {
	Image      []byte
	MimeType   string
	Width      int
	Height     int
	Faces      []entity.FaceOverlay
	Notice     string
	Error      string
	ImageURL   string
	AnalysisID string
}

type FaceResponse struct {
	Box             entity.BoundingBox    `json:"box"`
	DominantEmotion string                `json:"dominant_emotion,omitempty"`
	DominantScore   float64               `json:"dominant_score"`
	Label           string                `json:"label,omitempty"`
	Rendered        bool                  `json:"rendered"`
	Emotions        []entity.EmotionScore `json:"emotions"`
}

type AnalyzeResponse struct {
	ImageBase64 string         `json:"image_base64"`
	MimeType    string         `json:"mime_type"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Faces       []FaceResponse `json:"faces"`
	Notice      string         `json:"notice,omitempty"`
	Error       string         `json:"error,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
	AnalysisID  string         `json:"analysis_id,omitempty"`
}

func NewAnalyzeResponse(res AnalyzeResult) AnalyzeResponse {
	faces := make([]FaceResponse, 0, len(res.Faces))
	for _, f := range res.Faces {
		emotions := f.Ranked
		if emotions == nil {
			emotions = []entity.EmotionScore{}
		}
		faces = append(faces, FaceResponse{
			Box:             f.Face.BoundingBox,
			DominantEmotion: f.Dominant,
			DominantScore:   f.DominantScore,
			Label:           f.Label,
			Rendered:        f.Rendered,
			Emotions:        emotions,
		})
	}

	return AnalyzeResponse{
		ImageBase64: base64.StdEncoding.EncodeToString(res.Image),
		MimeType:    res.MimeType,
		Width:       res.Width,
		Height:      res.Height,
		Faces:       faces,
		Notice:      res.Notice,
		Error:       res.Error,
		ImageURL:    res.ImageURL,
		AnalysisID:  res.AnalysisID,
	}
}

type SettingsResponse struct {
	SessionID string              `json:"session_id"`
	Settings  entity.RenderConfig `json:"settings"`
}

type AnalysisResponse struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	Source           string    `json:"source"`
	Detector         string    `json:"detector"`
	FaceCount        int       `json:"face_count"`
	DominantEmotions []string  `json:"dominant_emotions"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	ImageURL         string    `json:"image_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewAnalysisResponse(a entity.Analysis) AnalysisResponse {
	dominant := a.DominantEmotions
	if dominant == nil {
		dominant = []string{}
	}
	return AnalysisResponse{
		ID:               a.ID,
		RequestID:        a.RequestID,
		Source:           string(a.Source),
		Detector:         a.Detector,
		FaceCount:        a.FaceCount,
		DominantEmotions: dominant,
		Width:            a.Width,
		Height:           a.Height,
		ImageURL:         a.ImageURL,
		CreatedAt:        a.CreatedAt,
	}
}

type HistoryQuery struct {
	Page  int `query:"page" validate:"omitempty,gte=1"`
	Limit int `query:"limit" validate:"omitempty,gte=1,lte=100"`
}

type HistoryResponse struct {
	Items []AnalysisResponse `json:"items"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
	Total int                `json:"total"`
}

type LabelsResponse struct {
	Labels   []string `json:"labels"`
	Detector string   `json:"detector"`
}
