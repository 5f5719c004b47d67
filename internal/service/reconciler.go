package service

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/tidwall/gjson"

	"bilinote/internal/domain/models"
	"bilinote/internal/domain/services"
)

var (
	errNotString   = errors.New("must be a string")
	errNotDuration = errors.New("must be a number of seconds")
)

// stringPath maps a payload path onto a string column
type stringPath struct {
	path string
	dest func(u *models.HistoryUpdate) *models.Field[string]
}

// blobPath maps a payload path onto an opaque JSON column
type blobPath struct {
	path string
	dest func(u *models.HistoryUpdate) *models.Field[json.RawMessage]
}

// Flat payloads use column names directly.
var flatStrings = []stringPath{
	{"status", func(u *models.HistoryUpdate) *models.Field[string] { return &u.Status }},
	{"platform", func(u *models.HistoryUpdate) *models.Field[string] { return &u.Platform }},
	{"folder_id", func(u *models.HistoryUpdate) *models.Field[string] { return &u.FolderID }},
	{"title", func(u *models.HistoryUpdate) *models.Field[string] { return &u.Title }},
	{"cover_url", func(u *models.HistoryUpdate) *models.Field[string] { return &u.CoverURL }},
	{"file_path", func(u *models.HistoryUpdate) *models.Field[string] { return &u.FilePath }},
	{"video_id", func(u *models.HistoryUpdate) *models.Field[string] { return &u.VideoID }},
	{"transcript_full_text", func(u *models.HistoryUpdate) *models.Field[string] { return &u.TranscriptFullText }},
	{"transcript_language", func(u *models.HistoryUpdate) *models.Field[string] { return &u.TranscriptLanguage }},
	{"markdown_content", func(u *models.HistoryUpdate) *models.Field[string] { return &u.MarkdownContent }},
}

var flatBlobs = []blobPath{
	{"raw_info", func(u *models.HistoryUpdate) *models.Field[json.RawMessage] { return &u.RawInfo }},
	{"transcript_raw", func(u *models.HistoryUpdate) *models.Field[json.RawMessage] { return &u.TranscriptRaw }},
	{"transcript_segments", func(u *models.HistoryUpdate) *models.Field[json.RawMessage] { return &u.TranscriptSegments }},
	{"markdown_versions", func(u *models.HistoryUpdate) *models.Field[json.RawMessage] { return &u.MarkdownVersions }},
	{"form_data", func(u *models.HistoryUpdate) *models.Field[json.RawMessage] { return &u.FormData }},
}

// Task payloads are the browser task-store shape: media metadata under
// audioMeta, transcript fields under transcript.
var taskStrings = []stringPath{
	{"status", func(u *models.HistoryUpdate) *models.Field[string] { return &u.Status }},
	{"platform", func(u *models.HistoryUpdate) *models.Field[string] { return &u.Platform }},
	{"folder_id", func(u *models.HistoryUpdate) *models.Field[string] { return &u.FolderID }},
	{"audioMeta.title", func(u *models.HistoryUpdate) *models.Field[string] { return &u.Title }},
	{"audioMeta.cover_url", func(u *models.HistoryUpdate) *models.Field[string] { return &u.CoverURL }},
	{"audioMeta.file_path", func(u *models.HistoryUpdate) *models.Field[string] { return &u.FilePath }},
	{"audioMeta.video_id", func(u *models.HistoryUpdate) *models.Field[string] { return &u.VideoID }},
	{"transcript.full_text", func(u *models.HistoryUpdate) *models.Field[string] { return &u.TranscriptFullText }},
	{"transcript.language", func(u *models.HistoryUpdate) *models.Field[string] { return &u.TranscriptLanguage }},
}

var taskBlobs = []blobPath{
	{"audioMeta.raw_info", func(u *models.HistoryUpdate) *models.Field[json.RawMessage] { return &u.RawInfo }},
	{"transcript.raw", func(u *models.HistoryUpdate) *models.Field[json.RawMessage] { return &u.TranscriptRaw }},
	{"formData", func(u *models.HistoryUpdate) *models.Field[json.RawMessage] { return &u.FormData }},
}

// normalizePayload maps raw onto history columns. Every known field is
// normalized on its own; unknown keys are dropped and missing keys stay
// absent. A payload with id but no task_id is read as a task-store export;
// anything else is flat.
func normalizePayload(raw []byte) (*services.HistoryInput, error) {
	if !gjson.ValidBytes(raw) {
		return nil, validationError(errors.New("payload is not valid JSON"))
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, validationError(errors.New("payload must be a JSON object"))
	}

	input := &services.HistoryInput{}
	errs := validation.Errors{}

	taskID, id := doc.Get("task_id"), doc.Get("id")
	if !taskID.Exists() && id.Exists() {
		input.TaskID = identity(id, "id", errs)
		normalizeTask(doc, &input.Fields, errs)
	} else {
		input.TaskID = identity(taskID, "task_id", errs)
		normalizeFlat(doc, &input.Fields, errs)
	}

	if err := errs.Filter(); err != nil {
		return nil, validationError(err)
	}
	return input, nil
}

func normalizeFlat(doc gjson.Result, u *models.HistoryUpdate, errs validation.Errors) {
	applyStrings(doc, flatStrings, u, errs)
	applyBlobs(doc, flatBlobs, u)
	applyDuration(doc.Get("duration"), "duration", u, errs)
}

func normalizeTask(doc gjson.Result, u *models.HistoryUpdate, errs validation.Errors) {
	applyStrings(doc, taskStrings, u, errs)
	applyBlobs(doc, taskBlobs, u)
	applyDuration(doc.Get("audioMeta.duration"), "audioMeta.duration", u, errs)

	if segments := doc.Get("transcript.segments"); segments.Exists() {
		u.TranscriptSegments = projectSegments(segments)
	}

	markdown := doc.Get("markdown")
	switch {
	case !markdown.Exists():
	case markdown.Type == gjson.Null:
		u.MarkdownContent = models.Null[string]()
	case markdown.IsArray():
		// Newest version first; its content is the current note
		u.MarkdownVersions = models.Set(json.RawMessage(markdown.Raw))
		u.MarkdownContent = models.Set(markdown.Get("0.content").String())
	case markdown.Type == gjson.String:
		u.MarkdownContent = models.Set(markdown.Str)
	default:
		errs["markdown"] = errors.New("must be a string or a list of versions")
	}
}

func identity(r gjson.Result, name string, errs validation.Errors) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return canonicalNumber(r)
	case gjson.Null:
		return ""
	default:
		if r.Exists() {
			errs[name] = errNotString
		}
		return ""
	}
}

func applyStrings(doc gjson.Result, paths []stringPath, u *models.HistoryUpdate, errs validation.Errors) {
	for _, p := range paths {
		field, err := stringField(doc.Get(p.path))
		if err != nil {
			errs[p.path] = err
			continue
		}
		*p.dest(u) = field
	}
}

func applyBlobs(doc gjson.Result, paths []blobPath, u *models.HistoryUpdate) {
	for _, p := range paths {
		*p.dest(u) = blobField(doc.Get(p.path))
	}
}

func applyDuration(r gjson.Result, name string, u *models.HistoryUpdate, errs validation.Errors) {
	field, err := durationField(r)
	if err != nil {
		errs[name] = err
		return
	}
	u.Duration = field
}

// stringField accepts strings and stringifies other scalars
func stringField(r gjson.Result) (models.Field[string], error) {
	switch r.Type {
	case gjson.Null:
		if !r.Exists() {
			return models.Field[string]{}, nil
		}
		return models.Null[string](), nil
	case gjson.String:
		return models.Set(r.Str), nil
	case gjson.Number:
		return models.Set(canonicalNumber(r)), nil
	case gjson.True, gjson.False:
		return models.Set(r.Raw), nil
	default:
		return models.Field[string]{}, errNotString
	}
}

// canonicalNumber spells a JSON number the same way however it was written,
// so 1, 1.0 and 1e0 all become "1". Plain integer literals keep every digit.
func canonicalNumber(r gjson.Result) string {
	if !strings.ContainsAny(r.Raw, ".eE") {
		return r.Raw
	}
	return strconv.FormatFloat(r.Num, 'f', -1, 64)
}

// durationField truncates fractional seconds toward zero
func durationField(r gjson.Result) (models.Field[int], error) {
	var seconds float64
	switch r.Type {
	case gjson.Null:
		if !r.Exists() {
			return models.Field[int]{}, nil
		}
		return models.Null[int](), nil
	case gjson.Number:
		seconds = r.Float()
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if s == "" {
			return models.Null[int](), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Field[int]{}, errNotDuration
		}
		seconds = f
	default:
		return models.Field[int]{}, errNotDuration
	}

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || math.Abs(seconds) > math.MaxInt32 {
		return models.Field[int]{}, errNotDuration
	}
	return models.Set(int(math.Trunc(seconds))), nil
}

// blobField passes structured values through untouched
func blobField(r gjson.Result) models.Field[json.RawMessage] {
	if !r.Exists() {
		return models.Field[json.RawMessage]{}
	}
	if r.Type == gjson.Null {
		return models.Null[json.RawMessage]()
	}
	return models.Set(json.RawMessage(r.Raw))
}

type segment struct {
	Start json.RawMessage `json:"start"`
	End   json.RawMessage `json:"end"`
	Text  string          `json:"text"`
}

// projectSegments keeps start, end and text of each transcript segment.
// Anything other than an array passes through as-is.
func projectSegments(r gjson.Result) models.Field[json.RawMessage] {
	if !r.IsArray() {
		return blobField(r)
	}

	segments := []segment{}
	r.ForEach(func(_, seg gjson.Result) bool {
		segments = append(segments, segment{
			Start: numberOrZero(seg.Get("start")),
			End:   numberOrZero(seg.Get("end")),
			Text:  seg.Get("text").String(),
		})
		return true
	})

	out, err := json.Marshal(segments)
	if err != nil {
		return blobField(r)
	}
	return models.Set(json.RawMessage(out))
}

func numberOrZero(r gjson.Result) json.RawMessage {
	if r.Type != gjson.Number {
		return json.RawMessage("0")
	}
	return json.RawMessage(r.Raw)
}
