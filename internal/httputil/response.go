package httputil

import (
	"encoding/json"
	"net/http"
)

// RespondJSON marshals data before touching the response so an encoding
// failure can still become a 500.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// ProblemDetail is an RFC 7807 error body. Extra keys are flattened into the
// top-level object next to the standard members.
type ProblemDetail struct {
	Type   string                 `json:"type"`
	Title  string                 `json:"title"`
	Status int                    `json:"status"`
	Detail string                 `json:"detail,omitempty"`
	Extra  map[string]interface{} `json:"-"`
}

// MarshalJSON writes Extra first so the standard members always win a clash
func (p ProblemDetail) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(p.Extra)+4)
	for k, v := range p.Extra {
		m[k] = v
	}

	m["type"] = p.Type
	m["title"] = p.Title
	m["status"] = p.Status
	if p.Detail != "" {
		m["detail"] = p.Detail
	}

	return json.Marshal(m)
}

// RespondError writes a problem+json error
func RespondError(w http.ResponseWriter, status int, detail string) {
	RespondErrorWithExtras(w, status, detail, nil)
}

// RespondErrorWithExtras writes a problem+json error carrying extra members,
// e.g. the conflicting record on a 409.
func RespondErrorWithExtras(w http.ResponseWriter, status int, detail string, extras map[string]interface{}) {
	payload, err := json.Marshal(ProblemDetail{
		Type:   problemType(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Extra:  extras,
	})
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	w.Write(payload)
}

const rfc7231 = "https://datatracker.ietf.org/doc/html/rfc7231#section-"

// problemTypes covers the error statuses the note API emits
var problemTypes = map[int]string{
	http.StatusBadRequest:          rfc7231 + "6.5.1",
	http.StatusNotFound:            rfc7231 + "6.5.4",
	http.StatusConflict:            rfc7231 + "6.5.8",
	http.StatusInternalServerError: rfc7231 + "6.6.1",
	http.StatusServiceUnavailable:  rfc7231 + "6.6.4",
}

func problemType(status int) string {
	if t, ok := problemTypes[status]; ok {
		return t
	}
	return "about:blank"
}
