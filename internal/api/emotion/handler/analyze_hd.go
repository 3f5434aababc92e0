package emotionHandler

import (
	"EmotionLens/internal/api/emotion"
	"EmotionLens/internal/entity"
	contextPkg "EmotionLens/pkg/context"
	"EmotionLens/pkg/handlerUtil"
	"EmotionLens/pkg/ingest"
	"EmotionLens/pkg/log"
	"EmotionLens/pkg/utils"
	"errors"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
	"strconv"
)

func (h *EmotionHandler) Analyze(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing emotion analysis request")

	req, err := h.parseAnalyzeRequest(ctx, c)
	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
		}
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "parse_analyze_request")
	}

	result, err := h.emotionService.Analyze(c, req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "analyze_image")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id":  requestID,
			"path":        ctx.Path(),
			"analysis_id": result.AnalysisID,
			"faces":       len(result.Faces),
		}).Info("Emotion analysis successful")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, emotion.NewAnalyzeResponse(result))
	}
}

// Annotate runs the same pipeline as Analyze but answers with the image itself.
func (h *EmotionHandler) Annotate(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	req, err := h.parseAnalyzeRequest(ctx, c)
	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
		}
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "parse_annotate_request")
	}

	result, err := h.emotionService.Analyze(c, req)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "annotate_image")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		ctx.Set(fiber.HeaderContentType, result.MimeType)
		ctx.Set("X-Face-Count", strconv.Itoa(len(result.Faces)))
		ctx.Set("X-Analysis-ID", result.AnalysisID)
		if result.Notice != "" {
			ctx.Set("X-Notice", result.Notice)
		}
		if result.Error != "" {
			ctx.Set("X-Analysis-Error", result.Error)
		}
		return ctx.Status(fiber.StatusOK).Send(result.Image)
	}
}

// parseAnalyzeRequest accepts a multipart upload with an "image" file or a JSON
// body carrying image_base64. Render options missing from the request fall
// back to the caller's session settings.
func (h *EmotionHandler) parseAnalyzeRequest(ctx *fiber.Ctx, c context.Context) (emotion.AnalyzeRequest, error) {
	if len(ctx.Body()) == 0 {
		return emotion.AnalyzeRequest{}, emotion.ErrNoImage
	}

	var form emotion.AnalyzeForm
	if err := ctx.BodyParser(&form); err != nil {
		return emotion.AnalyzeRequest{}, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(form); err != nil {
		return emotion.AnalyzeRequest{}, err
	}

	req := emotion.AnalyzeRequest{
		Source: entity.InputMethod(form.Source),
	}
	if form.Format != "" {
		req.Format = ingest.ParseFormat(form.Format)
	}

	if file, err := ctx.FormFile("image"); err == nil {
		if req.Source == "" {
			req.Source = entity.InputUpload
		}

		if err := h.utils.ValidateImageFile(file); err != nil {
			switch {
			case errors.Is(err, utils.ErrFileTooLarge):
				return emotion.AnalyzeRequest{}, emotion.ErrFileTooLarge
			case errors.Is(err, utils.ErrNotAnImage):
				return emotion.AnalyzeRequest{}, emotion.ErrInvalidFileType
			default:
				return emotion.AnalyzeRequest{}, emotion.ErrNoImage
			}
		}

		data, err := h.utils.ReadFile(file)
		if err != nil {
			return emotion.AnalyzeRequest{}, err
		}
		req.Image = data
	} else if form.ImageBase64 != "" {
		if req.Source == "" {
			req.Source = entity.InputWebcam
		}

		data, err := ingest.DecodeBase64(form.ImageBase64)
		if err != nil {
			if req.Source == entity.InputWebcam {
				return emotion.AnalyzeRequest{}, emotion.ErrInvalidWebcamImage
			}
			return emotion.AnalyzeRequest{}, emotion.ErrInvalidImage
		}
		if int64(len(data)) > h.utils.MaxFileSize() {
			return emotion.AnalyzeRequest{}, emotion.ErrFileTooLarge
		}
		req.Image = data
	} else {
		return emotion.AnalyzeRequest{}, emotion.ErrNoImage
	}

	cfg, err := h.emotionService.GetSettings(c, ctx.Get(SessionHeader))
	if err != nil {
		return emotion.AnalyzeRequest{}, err
	}
	req.Config = form.Overrides().Apply(cfg)

	return req, nil
}
