package emotion

import (
	"EmotionLens/pkg/response"
	"net/http"
)

var (
	ErrInternalServerError = response.NewError(http.StatusInternalServerError, "internal server error")
	ErrInvalidImage        = response.NewError(http.StatusBadRequest, "Error: Could not read the image file")
	ErrInvalidWebcamImage  = response.NewError(http.StatusBadRequest, "Error: Could not read the webcam image")
	ErrNoImage             = response.NewError(http.StatusBadRequest, "no image provided")
	ErrFileTooLarge        = response.NewError(http.StatusRequestEntityTooLarge, "File too large")
	ErrInvalidFileType     = response.NewError(http.StatusBadRequest, "Invalid file type. Only images are allowed.")
	ErrInvalidSettings     = response.NewError(http.StatusBadRequest, "invalid settings")
	ErrHistoryDisabled     = response.NewError(http.StatusServiceUnavailable, "analysis history is disabled")
	ErrAnalysisNotFound    = response.NewError(http.StatusNotFound, "analysis not found")
)
