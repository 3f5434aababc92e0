// Package detector defines the contract with the external emotion recognition
// model and the helpers shared by its backends.
package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"EmotionLens/internal/entity"
)

var ErrDetectorUnavailable = errors.New("emotion detector unavailable")

type IEmotionDetector interface {
	Name() string
	Detect(ctx context.Context, frame []byte) ([]entity.DetectedFace, error)
}

// Loader builds the underlying detector. It is expensive (model weights, network dial).
type Loader func() (IEmotionDetector, error)

// Lazy builds its detector on first use and reuses it for the life of the process.
// A failed build is remembered and reported on every call.
type Lazy struct {
	name string
	load Loader

	once     sync.Once
	detector IEmotionDetector
	err      error
}

func NewLazy(name string, load Loader) *Lazy {
	return &Lazy{name: name, load: load}
}

func (l *Lazy) Name() string {
	return l.name
}

// Warm forces the build. Safe to call from a background goroutine at start-up.
func (l *Lazy) Warm() error {
	_, err := l.get()
	return err
}

func (l *Lazy) Detect(ctx context.Context, frame []byte) ([]entity.DetectedFace, error) {
	d, err := l.get()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}
	return d.Detect(ctx, frame)
}

// Close releases the underlying detector if it was built and supports closing.
// It waits for a build in progress. Closing before first use prevents any later build.
func (l *Lazy) Close() {
	l.once.Do(func() {
		l.err = errors.New("detector closed before first use")
	})
	if l.detector == nil {
		return
	}
	if c, ok := l.detector.(interface{ Close() }); ok {
		c.Close()
	}
}

func (l *Lazy) get() (IEmotionDetector, error) {
	l.once.Do(func() {
		if l.load == nil {
			l.err = errors.New("no detector loader configured")
			return
		}
		l.detector, l.err = l.load()
		if l.err == nil && l.detector == nil {
			l.err = errors.New("detector loader returned nil")
		}
	})
	return l.detector, l.err
}

var labelAliases = map[string]string{
	"anger":     entity.EmotionAngry,
	"disgusted": entity.EmotionDisgust,
	"fearful":   entity.EmotionFear,
	"feared":    entity.EmotionFear,
	"happiness": entity.EmotionHappy,
	"sadness":   entity.EmotionSad,
	"surprised": entity.EmotionSurprise,
}

// NormalizeScores lower-cases labels, folds common synonyms onto the canonical
// names and rescales percentage scores (0-100) into [0,1].
func NormalizeScores(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	percent := false
	for _, v := range scores {
		if v > 1 {
			percent = true
			break
		}
	}

	for label, v := range scores {
		key := strings.ToLower(strings.TrimSpace(label))
		if key == "" {
			continue
		}
		if alias, ok := labelAliases[key]; ok {
			key = alias
		}
		if percent {
			v /= 100
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[key] += v
	}

	return out
}
