package lmsauth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError renders err as {success:false, message, ...}. Anything that is
// not an *Error is logged and reported as a generic 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	e := AsError(err)
	if e.Kind == KindInternal {
		logger.Error("request failed", "error", err)
	}
	body := map[string]any{
		"success": false,
		"message": e.Message,
	}
	if e.Code != "" {
		body["code"] = e.Code
	}
	if e.Field != "" {
		body["field"] = e.Field
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	writeJSON(w, e.HTTPStatus(), body)
}

// decodeBody fills dst from a JSON body or, for form posts, from form values
// keyed by the same names as the JSON tags.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return ValidationError(ErrCodeInvalidBody, "Invalid request body", "")
		}
		return decodeForm(r.PostForm, dst)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		return ValidationError(ErrCodeInvalidBody, "Invalid request body", "")
	}
	return nil
}

func decodeForm(form url.Values, dst any) error {
	flat := make(map[string]string, len(form))
	for k := range form {
		flat[k] = form.Get(k)
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return ValidationError(ErrCodeInvalidBody, "Invalid request body", "")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return ValidationError(ErrCodeInvalidBody, "Invalid request body", "")
	}
	return nil
}
