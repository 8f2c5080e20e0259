package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().ErrorContext(ctx, "failed to write response", "error", err)
	}
}

func decodeJSON(r *http.Request, maxBodyBytes int64, v any) error {
	body := io.Reader(r.Body)
	if maxBodyBytes > 0 {
		body = io.LimitReader(r.Body, maxBodyBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("io.ReadAll > %w", err)
	}
	if maxBodyBytes > 0 && int64(len(data)) > maxBodyBytes {
		return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json.Unmarshal > %w", err)
	}
	return nil
}
