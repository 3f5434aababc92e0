package entity

import (
	"errors"
	"image"
	"math"
	"time"
)

const (
	EmotionAngry    = "angry"
	EmotionDisgust  = "disgust"
	EmotionFear     = "fear"
	EmotionHappy    = "happy"
	EmotionSad      = "sad"
	EmotionSurprise = "surprise"
	EmotionNeutral  = "neutral"
)

// CanonicalEmotions is the label order used to break ties between equal scores.
var CanonicalEmotions = []string{
	EmotionAngry,
	EmotionDisgust,
	EmotionFear,
	EmotionHappy,
	EmotionSad,
	EmotionSurprise,
	EmotionNeutral,
}

type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

type DetectedFace struct {
	BoundingBox   BoundingBox        `json:"box"`
	EmotionScores map[string]float64 `json:"emotions"`
}

type EmotionScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type InputMethod string

const (
	InputUpload InputMethod = "upload"
	InputWebcam InputMethod = "webcam"
)

type RenderConfig struct {
	ShowBoundingBox bool        `json:"show_bounding_box"`
	ShowConfidence  bool        `json:"show_confidence"`
	MinConfidence   float64     `json:"min_confidence" validate:"gte=0,lte=1"`
	InputMethod     InputMethod `json:"input_method" validate:"omitempty,oneof=upload webcam"`
}

func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		ShowBoundingBox: true,
		ShowConfidence:  true,
		MinConfidence:   0.5,
		InputMethod:     InputUpload,
	}
}

func (c RenderConfig) Validate() error {
	if math.IsNaN(c.MinConfidence) || c.MinConfidence < 0 || c.MinConfidence > 1 {
		return errors.New("min_confidence must be between 0 and 1")
	}
	switch c.InputMethod {
	case "", InputUpload, InputWebcam:
	default:
		return errors.New("input_method must be upload or webcam")
	}
	return nil
}

// FaceOverlay is the outcome of rendering a single DetectedFace.
type FaceOverlay struct {
	Face          DetectedFace
	Dominant      string
	DominantScore float64
	Ranked        []EmotionScore
	Label         string
	Rendered      bool
}

type Analysis struct {
	ID               string
	RequestID        string
	Source           InputMethod
	Detector         string
	FaceCount        int
	DominantEmotions []string
	Width            int
	Height           int
	ImageURL         string
	CreatedAt        time.Time
}
