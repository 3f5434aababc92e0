// Package overlay burns face boxes and emotion labels into an image.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"EmotionLens/internal/entity"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	BoxLineWidth  = 2.0
	LabelFontSize = 20.0
	// LabelOffset is the gap in pixels between the label baseline and the box top.
	LabelOffset = 10
)

var AnnotationColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// RankEmotions returns the scores ordered from highest to lowest. Equal scores
// follow entity.CanonicalEmotions, and unknown labels sort alphabetically after them.
func RankEmotions(scores map[string]float64) []entity.EmotionScore {
	ranked := make([]entity.EmotionScore, 0, len(scores))
	for label, score := range scores {
		if math.IsNaN(score) {
			continue
		}
		ranked = append(ranked, entity.EmotionScore{Label: label, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ra, rb := canonicalRank(a.Label), canonicalRank(b.Label)
		if ra != rb {
			return ra < rb
		}
		return a.Label < b.Label
	})

	return ranked
}

// DominantEmotion returns the highest scoring label. ok is false when there are no scores.
func DominantEmotion(scores map[string]float64) (label string, score float64, ok bool) {
	ranked := RankEmotions(scores)
	if len(ranked) == 0 {
		return "", 0, false
	}
	return ranked[0].Label, ranked[0].Score, true
}

// LabelText formats the caption drawn above a face.
func LabelText(label string, score float64, showConfidence bool) string {
	if showConfidence {
		return fmt.Sprintf("%s: %.2f", label, score)
	}
	return label
}

// Render draws every face whose dominant emotion reaches cfg.MinConfidence onto
// a copy of img. Faces below the threshold get neither a box nor a label. The
// returned overlays keep detector order and include skipped faces.
func Render(img image.Image, faces []entity.DetectedFace, cfg entity.RenderConfig) (*image.NRGBA, []entity.FaceOverlay) {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: LabelFontSize}))
	bounds := image.Rect(0, 0, dc.Width(), dc.Height())

	overlays := make([]entity.FaceOverlay, 0, len(faces))
	for _, face := range faces {
		ov := entity.FaceOverlay{
			Face:   face,
			Ranked: RankEmotions(face.EmotionScores),
		}
		if len(ov.Ranked) == 0 {
			overlays = append(overlays, ov)
			continue
		}
		ov.Dominant = ov.Ranked[0].Label
		ov.DominantScore = ov.Ranked[0].Score

		if ov.DominantScore < cfg.MinConfidence {
			overlays = append(overlays, ov)
			continue
		}

		box := face.BoundingBox.Rect().Intersect(bounds)
		if box.Empty() {
			overlays = append(overlays, ov)
			continue
		}

		ov.Label = LabelText(ov.Dominant, ov.DominantScore, cfg.ShowConfidence)
		if cfg.ShowBoundingBox {
			drawBox(dc, box)
		}
		drawLabel(dc, ov.Label, box)
		ov.Rendered = true

		overlays = append(overlays, ov)
	}

	return imaging.Clone(dc.Image()), overlays
}

func drawBox(dc *gg.Context, r image.Rectangle) {
	dc.SetColor(AnnotationColor)
	dc.SetLineWidth(BoxLineWidth)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}

func drawLabel(dc *gg.Context, text string, box image.Rectangle) {
	_, h := dc.MeasureString(text)

	y := float64(box.Min.Y - LabelOffset)
	if y-h < 0 {
		// no room above the box, keep the caption inside its top edge
		y = float64(box.Min.Y) + h + BoxLineWidth
	}

	dc.SetColor(AnnotationColor)
	dc.DrawString(text, float64(box.Min.X)+BoxLineWidth, y)
}

func canonicalRank(label string) int {
	for i, l := range entity.CanonicalEmotions {
		if l == label {
			return i
		}
	}
	return len(entity.CanonicalEmotions)
}
