package httputil

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemType(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusBadRequest, rfc7231 + "6.5.1"},
		{http.StatusNotFound, rfc7231 + "6.5.4"},
		{http.StatusConflict, rfc7231 + "6.5.8"},
		{http.StatusInternalServerError, rfc7231 + "6.6.1"},
		{http.StatusServiceUnavailable, rfc7231 + "6.6.4"},
		{http.StatusRequestEntityTooLarge, "about:blank"},
		{http.StatusTeapot, "about:blank"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, problemType(tt.status))
		})
	}
}

func TestRespondErrorWithExtras(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErrorWithExtras(rec, http.StatusConflict, "folder exists", map[string]interface{}{
		"existing": map[string]string{"id": "f1"},
		"status":   999,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, rfc7231+"6.5.8", body["type"])
	assert.Equal(t, "Conflict", body["title"])
	assert.Equal(t, float64(http.StatusConflict), body["status"])
	assert.Equal(t, "folder exists", body["detail"])
	assert.Equal(t, map[string]interface{}{"id": "f1"}, body["existing"])
}

func TestRespondErrorOmitsEmptyDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusServiceUnavailable, "")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "detail")
	assert.Equal(t, rfc7231+"6.6.4", body["type"])
}

func TestRespondJSONEncodingFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusOK, map[string]float64{"bad": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
