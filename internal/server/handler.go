// Package server exposes the brokers over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/at-ishikawa/wordbroker/internal/recognition"
	"github.com/at-ishikawa/wordbroker/internal/translation"
)

const (
	ServiceTranslation = "translation"
	ServiceRecognition = "recognition"
)

type Translator interface {
	Translate(ctx context.Context, word string) translation.Result
}

type Recognizer interface {
	Recognize(ctx context.Context, image recognition.Image) (recognition.Result, error)
}

type TranslationRequest struct {
	Word  string `json:"word"`
	Image string `json:"image,omitempty"`
}

type TranslationResponse struct {
	Translated string `json:"translated"`
}

type RecognitionRequest struct {
	Image    string `json:"image"`
	MIMEType string `json:"mimeType"`
	Word     string `json:"word,omitempty"`
}

type RecognitionResponse struct {
	Text string `json:"text"`
}

type TranslationHandler struct {
	broker       Translator
	maxBodyBytes int64
}

// NewTranslationHandler never answers a POST with a 5xx: failures are tagged strings in a 200.
func NewTranslationHandler(broker Translator, maxBodyBytes int64) http.Handler {
	h := &TranslationHandler{broker: broker, maxBodyBytes: maxBodyBytes}
	return requestMiddleware(ServiceTranslation, corsMiddleware(h))
}

func workerCrash(reason any) TranslationResponse {
	return TranslationResponse{Translated: fmt.Sprintf("[Error: Worker Crash - %v]", reason)}
}

func (h *TranslationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Default().ErrorContext(ctx, "translation panicked", "panic", fmt.Sprint(recovered))
			writeJSON(ctx, w, http.StatusOK, workerCrash(recovered))
		}
	}()

	var req TranslationRequest
	if err := decodeJSON(r, h.maxBodyBytes, &req); err != nil {
		slog.Default().WarnContext(ctx, "invalid translation request", "error", err)
		writeJSON(ctx, w, http.StatusOK, workerCrash(err))
		return
	}
	// a word and an image together is still an image payload
	if req.Image != "" {
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{
			Error: "[Error: Wrong endpoint - send images to the recognition service]",
		})
		return
	}

	result := h.broker.Translate(ctx, req.Word)
	writeJSON(ctx, w, http.StatusOK, TranslationResponse{Translated: result.Translated})
}

type RecognitionHandler struct {
	broker       Recognizer
	maxBodyBytes int64
}

func NewRecognitionHandler(broker Recognizer, maxBodyBytes int64) http.Handler {
	h := &RecognitionHandler{broker: broker, maxBodyBytes: maxBodyBytes}
	return requestMiddleware(ServiceRecognition, corsMiddleware(h))
}

// decodeImage accepts raw base64 as well as a data URL
func decodeImage(encoded string) ([]byte, error) {
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("base64.DecodeString > %w", err)
	}
	return data, nil
}

func (h *RecognitionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Default().ErrorContext(ctx, "recognition panicked", "panic", fmt.Sprint(recovered))
			writeJSON(ctx, w, http.StatusInternalServerError, ErrorResponse{Error: fmt.Sprint(recovered)})
		}
	}()

	var req RecognitionRequest
	if err := decodeJSON(r, h.maxBodyBytes, &req); err != nil {
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("[Error: Invalid request body - %v]", err)})
		return
	}
	if strings.TrimSpace(req.Word) != "" {
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{
			Error: "[Error: Wrong endpoint - send words to the translation service]",
		})
		return
	}
	if req.Image == "" || req.MIMEType == "" {
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: "[Error: Missing image or mimeType]"})
		return
	}
	data, err := decodeImage(req.Image)
	if err != nil {
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("[Error: Invalid image encoding - %v]", err)})
		return
	}

	result, err := h.broker.Recognize(ctx, recognition.Image{Data: data, MIMEType: req.MIMEType})
	if errors.Is(err, recognition.ErrInvalidImage) {
		writeJSON(ctx, w, http.StatusBadRequest, ErrorResponse{Error: "[Error: Missing image or mimeType]"})
		return
	}
	if err != nil {
		slog.Default().ErrorContext(ctx, "recognition failed", "error", err)
		writeJSON(ctx, w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(ctx, w, http.StatusOK, RecognitionResponse{Text: result.Tagged()})
}

// NewHTTPServer serves handler over HTTP/1.1 and cleartext HTTP/2
func NewHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
