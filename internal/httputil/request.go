package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// MaxBodyBytes caps request bodies. Batch imports of full transcripts are large.
const MaxBodyBytes = 32 << 20

// ParseJSON decodes JSON from the request body into the given destination.
// It limits the request body size to prevent abuse and provides clear error messages.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	// Unknown fields are allowed: payloads are normalized downstream and
	// unknown keys dropped there.
	decoder := json.NewDecoder(r.Body)

	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// QueryInt reads an integer query parameter, returning def when it is absent
func QueryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q must be an integer", key)
	}
	return n, nil
}
