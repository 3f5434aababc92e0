package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"EmotionLens/internal/entity"
	"EmotionLens/pkg/gemini"
)

const emotionPrompt = `
	Detect every human face in this image and classify its facial emotion.
	Return a JSON array with one object per face, in this exact format:
	[
		{
			"box": {"x": 10, "y": 20, "width": 120, "height": 140},
			"emotions": {"angry": 0.01, "disgust": 0.0, "fear": 0.02, "happy": 0.9, "sad": 0.02, "surprise": 0.03, "neutral": 0.02}
		}
	]
	Box coordinates are integer pixels of the original image, x and y are the top-left corner.
	Emotion scores are probabilities between 0 and 1.
	If there is no face, return [].
	Return ONLY the JSON array, without any additional text.
`

type geminiFace struct {
	Box struct {
		X      int `json:"x"`
		Y      int `json:"y"`
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"box"`
	Emotions map[string]float64 `json:"emotions"`
}

type geminiDetector struct {
	client gemini.IGemini
}

// NewGeminiDetector asks a Gemini vision model for faces and emotion scores.
func NewGeminiDetector(client gemini.IGemini) IEmotionDetector {
	return &geminiDetector{client: client}
}

func (g *geminiDetector) Name() string {
	return "gemini"
}

func (g *geminiDetector) Detect(ctx context.Context, frame []byte) ([]entity.DetectedFace, error) {
	text, err := g.client.AnalyzeImage(ctx, frame, "image/jpeg", emotionPrompt)
	if err != nil {
		return nil, err
	}
	return parseGeminiFaces(text)
}

func (g *geminiDetector) Close() {
	g.client.Close()
}

func parseGeminiFaces(response string) ([]entity.DetectedFace, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")

	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, errors.New("cannot find valid JSON in response")
	}

	var raw []geminiFace
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse Gemini response: %w", err)
	}

	faces := make([]entity.DetectedFace, 0, len(raw))
	for _, f := range raw {
		faces = append(faces, entity.DetectedFace{
			BoundingBox: entity.BoundingBox{
				X:      f.Box.X,
				Y:      f.Box.Y,
				Width:  f.Box.Width,
				Height: f.Box.Height,
			},
			EmotionScores: NormalizeScores(f.Emotions),
		})
	}

	return faces, nil
}
