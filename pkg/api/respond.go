package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
)

var (
	errBadUpload      = errors.New("invalid upload")
	errUploadTooLarge = errors.New("upload too large")
	errReportFailed   = errors.New("report generation failed")
)

// errorResponse is the JSON body of every failed API call
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func respondErrorMessage(w http.ResponseWriter, status int, message, detail string) {
	respondJSONStatus(w, status, errorResponse{Error: message, Detail: detail})
}

// respondError maps an error to its HTTP status and user-facing message
func respondError(w http.ResponseWriter, err error) {
	status, message := classifyError(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] ERROR: %v", err)
	}
	respondErrorMessage(w, status, message, err.Error())
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		return http.StatusNotFound, model.UserMessage(err)
	case errors.Is(err, model.ErrNoNumericColumns):
		return http.StatusUnprocessableEntity, model.UserMessage(err)
	case errors.Is(err, model.ErrMalformedInput):
		return http.StatusBadRequest, model.UserMessage(err)
	case errors.Is(err, model.ErrInvalidSelection):
		return http.StatusBadRequest, model.UserMessage(err)
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "The file is too large."
	case errors.Is(err, errBadUpload):
		return http.StatusBadRequest, "Upload a CSV file in the 'file' form field."
	default:
		return http.StatusInternalServerError, model.MsgReportFailed
	}
}
