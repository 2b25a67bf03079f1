package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "RF-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		// One code for every internal fault; the cause is only logged.
		return apiError{
			Code:    "RF-API-5000",
			Message: "Internal server error. Please retry later.",
		}
	case status == http.StatusBadRequest:
		code = "RF-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "RF-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusMethodNotAllowed:
		code = "RF-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	// For 4xx, keep user-safe context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "consumer id is required"):
			msg = "A consumer identity is required for this endpoint."
		case strings.Contains(raw, "invalid limit"), strings.Contains(raw, "limit must not be negative"):
			msg = "Limit must be a positive integer."
		case strings.Contains(raw, "not a uuid"):
			msg = "Fragment id is malformed."
		case strings.Contains(raw, "nothing unseen"):
			msg = "No unseen fragments remain."
		case strings.Contains(raw, "no fragments"):
			msg = "No fragments are available yet."
		case strings.Contains(raw, "fragment") && strings.Contains(raw, "not found"):
			msg = "Fragment was not found."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+ConsumerHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
