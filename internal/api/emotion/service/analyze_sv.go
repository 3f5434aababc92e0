package emotionService

import (
	"EmotionLens/internal/api/emotion"
	"EmotionLens/internal/entity"
	contextPkg "EmotionLens/pkg/context"
	"EmotionLens/pkg/detector"
	"EmotionLens/pkg/ingest"
	"EmotionLens/pkg/overlay"
	"EmotionLens/pkg/redis"
	"errors"
	"fmt"
	"image"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const detectionCachePrefix = "emotion:detections:"

func (s *emotionService) Analyze(ctx context.Context, req emotion.AnalyzeRequest) (emotion.AnalyzeResult, error) {
	requestID := contextPkg.GetRequestID(ctx)
	start := time.Now()

	img, decodedFormat, err := ingest.Decode(req.Image)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"source":     req.Source,
			"error":      err.Error(),
		}).Warn("Failed to decode image")
		if req.Source == entity.InputWebcam {
			return emotion.AnalyzeResult{}, emotion.ErrInvalidWebcamImage
		}
		return emotion.AnalyzeResult{}, emotion.ErrInvalidImage
	}

	img = ingest.Fit(img, s.opts.MaxImageDimension)

	outFormat := req.Format
	if outFormat == "" {
		outFormat = ingest.ParseFormat(decodedFormat)
	}

	result := emotion.AnalyzeResult{
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Faces:  []entity.FaceOverlay{},
	}

	output := img
	faces, err := s.detectFaces(ctx, img)
	switch {
	case err != nil:
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"detector":   s.detectorName(),
			"error":      err.Error(),
		}).Error("Emotion detection failed")
		result.Error = fmt.Sprintf("Error processing image: %v", err)
	case len(faces) == 0:
		result.Notice = emotion.NoticeNoFace
	default:
		annotated, overlays, renderErr := safeRender(img, faces, req.Config)
		if renderErr != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      renderErr.Error(),
			}).Error("Failed to render overlay")
			result.Error = fmt.Sprintf("Error processing image: %v", renderErr)
		} else {
			output = annotated
			result.Faces = overlays
		}
	}

	encoded, mimeType, err := ingest.Encode(output, outFormat)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to encode result image")
		return emotion.AnalyzeResult{}, emotion.ErrInternalServerError
	}
	result.Image = encoded
	result.MimeType = mimeType

	analysisID, err := s.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate ULID")
		return emotion.AnalyzeResult{}, emotion.ErrInternalServerError
	}
	result.AnalysisID = analysisID

	storedURL := s.archive(requestID, analysisID, outFormat, &result)
	s.record(ctx, req.Source, storedURL, result)

	s.log.WithFields(logrus.Fields{
		"request_id":  requestID,
		"analysis_id": analysisID,
		"faces":       len(result.Faces),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	}).Info("Image analysed")

	return result, nil
}

// detectFaces sends the fitted image to the detector, consulting the
// detection cache first. Boxes in the result are relative to img.
func (s *emotionService) detectFaces(ctx context.Context, img image.Image) ([]entity.DetectedFace, error) {
	frame, _, err := ingest.Encode(img, ingest.FormatJPEG)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	key := detectionCachePrefix + s.detectorName() + ":" + s.utils.Digest(frame)
	if faces, ok := s.cachedFaces(ctx, key); ok {
		return faces, nil
	}

	faces, err := s.safeDetect(ctx, frame)
	if err != nil {
		return nil, err
	}

	s.storeFaces(ctx, key, faces)
	return faces, nil
}

func (s *emotionService) safeDetect(ctx context.Context, frame []byte) (faces []entity.DetectedFace, err error) {
	if s.detector == nil {
		return nil, detector.ErrDetectorUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			faces, err = nil, fmt.Errorf("emotion detector panicked: %v", r)
		}
	}()

	return s.detector.Detect(ctx, frame)
}

func safeRender(img image.Image, faces []entity.DetectedFace, cfg entity.RenderConfig) (out *image.NRGBA, overlays []entity.FaceOverlay, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, overlays, err = nil, nil, fmt.Errorf("overlay rendering panicked: %v", r)
		}
	}()

	out, overlays = overlay.Render(img, faces, cfg)
	return out, overlays, nil
}

func (s *emotionService) cachedFaces(ctx context.Context, key string) ([]entity.DetectedFace, bool) {
	if s.cache == nil || s.opts.CacheTTL <= 0 {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrNotFound) {
			s.log.WithFields(logrus.Fields{
				"request_id": contextPkg.GetRequestID(ctx),
				"error":      err.Error(),
			}).Warn("Detection cache lookup failed")
		}
		return nil, false
	}

	var faces []entity.DetectedFace
	if err := jsoniter.UnmarshalFromString(raw, &faces); err != nil {
		return nil, false
	}
	return faces, true
}

func (s *emotionService) storeFaces(ctx context.Context, key string, faces []entity.DetectedFace) {
	if s.cache == nil || s.opts.CacheTTL <= 0 {
		return
	}

	raw, err := jsoniter.MarshalToString(faces)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, key, raw, s.opts.CacheTTL); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Warn("Failed to cache detections")
	}
}

// archive uploads the result image and sets a presigned link on result.
// It returns the stored object URL, or "" when archiving is off or failed.
func (s *emotionService) archive(requestID, analysisID string, format ingest.Format, result *emotion.AnalyzeResult) string {
	if s.s3 == nil {
		return ""
	}

	key := fmt.Sprintf("emotion-results/%s.%s", analysisID, format)
	storedURL, err := s.s3.UploadBytes(key, result.Image, result.MimeType)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to archive result image")
		return ""
	}

	presigned, err := s.s3.PresignUrl(storedURL)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Failed to presign result image URL")
		presigned = storedURL
	}
	result.ImageURL = presigned

	return storedURL
}

func (s *emotionService) record(ctx context.Context, source entity.InputMethod, imageURL string, result emotion.AnalyzeResult) {
	if s.emotionRepository == nil {
		return
	}
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.emotionRepository.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return
	}

	dominant := make([]string, 0, len(result.Faces))
	for _, f := range result.Faces {
		if f.Dominant != "" {
			dominant = append(dominant, f.Dominant)
		}
	}

	if source == "" {
		source = entity.InputUpload
	}

	analysis := entity.Analysis{
		ID:               result.AnalysisID,
		RequestID:        requestID,
		Source:           source,
		Detector:         s.detectorName(),
		FaceCount:        len(result.Faces),
		DominantEmotions: dominant,
		Width:            result.Width,
		Height:           result.Height,
		ImageURL:         imageURL,
		CreatedAt:        time.Now(),
	}

	if err := repo.Analysis.CreateAnalysis(ctx, analysis); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"analysis_id": result.AnalysisID,
			"error":       err.Error(),
		}).Error("Failed to record analysis")
	}
}
