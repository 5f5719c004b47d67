package models

import (
	"encoding/json"
	"time"
)

// Task statuses reported by the note pipeline. Stored as free-form text.
const (
	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"

	// StatusUnknown marks imported records that carried no status
	StatusUnknown = "UNKNOWN"
)

// History is one processed work-item, addressed externally by TaskID.
// Structured columns are opaque JSON and are never interpreted here.
type History struct {
	ID       int64   `json:"id" db:"id"`
	TaskID   string  `json:"task_id" db:"task_id"`
	Status   string  `json:"status" db:"status"`
	Platform string  `json:"platform" db:"platform"`
	FolderID *string `json:"folder_id" db:"folder_id"` // NULL = unfiled

	Title    *string         `json:"title" db:"title"`
	CoverURL *string         `json:"cover_url" db:"cover_url"`
	Duration *int            `json:"duration" db:"duration"` // seconds
	FilePath *string         `json:"file_path" db:"file_path"`
	VideoID  *string         `json:"video_id" db:"video_id"`
	RawInfo  json.RawMessage `json:"raw_info" db:"raw_info"`

	TranscriptFullText *string         `json:"transcript_full_text" db:"transcript_full_text"`
	TranscriptLanguage *string         `json:"transcript_language" db:"transcript_language"`
	TranscriptRaw      json.RawMessage `json:"transcript_raw" db:"transcript_raw"`
	TranscriptSegments json.RawMessage `json:"transcript_segments" db:"transcript_segments"`

	MarkdownContent  *string         `json:"markdown_content" db:"markdown_content"`
	MarkdownVersions json.RawMessage `json:"markdown_versions" db:"markdown_versions"`

	FormData json.RawMessage `json:"form_data" db:"form_data"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HistoryUpdate is the set of history columns a mutation touches.
// TaskID is deliberately absent: identity is immutable after creation.
type HistoryUpdate struct {
	Status   Field[string] `json:"status"`
	Platform Field[string] `json:"platform"`
	FolderID Field[string] `json:"folder_id"`

	Title    Field[string]          `json:"title"`
	CoverURL Field[string]          `json:"cover_url"`
	Duration Field[int]             `json:"duration"`
	FilePath Field[string]          `json:"file_path"`
	VideoID  Field[string]          `json:"video_id"`
	RawInfo  Field[json.RawMessage] `json:"raw_info"`

	TranscriptFullText Field[string]          `json:"transcript_full_text"`
	TranscriptLanguage Field[string]          `json:"transcript_language"`
	TranscriptRaw      Field[json.RawMessage] `json:"transcript_raw"`
	TranscriptSegments Field[json.RawMessage] `json:"transcript_segments"`

	MarkdownContent  Field[string]          `json:"markdown_content"`
	MarkdownVersions Field[json.RawMessage] `json:"markdown_versions"`

	FormData Field[json.RawMessage] `json:"form_data"`
}

// Sparse returns a copy where explicit nulls mean "leave untouched".
func (u HistoryUpdate) Sparse() HistoryUpdate {
	return HistoryUpdate{
		Status:             u.Status.Sparse(),
		Platform:           u.Platform.Sparse(),
		FolderID:           u.FolderID.Sparse(),
		Title:              u.Title.Sparse(),
		CoverURL:           u.CoverURL.Sparse(),
		Duration:           u.Duration.Sparse(),
		FilePath:           u.FilePath.Sparse(),
		VideoID:            u.VideoID.Sparse(),
		RawInfo:            u.RawInfo.Sparse(),
		TranscriptFullText: u.TranscriptFullText.Sparse(),
		TranscriptLanguage: u.TranscriptLanguage.Sparse(),
		TranscriptRaw:      u.TranscriptRaw.Sparse(),
		TranscriptSegments: u.TranscriptSegments.Sparse(),
		MarkdownContent:    u.MarkdownContent.Sparse(),
		MarkdownVersions:   u.MarkdownVersions.Sparse(),
		FormData:           u.FormData.Sparse(),
	}
}

// Columns lists the touched columns in a stable order, paired with the
// value to write (nil for an explicit null). Repositories build their SET
// clauses from this list.
func (u HistoryUpdate) Columns() []Column {
	var cols []Column
	add := func(name string, present bool, value any) {
		if present {
			cols = append(cols, Column{Name: name, Value: value})
		}
	}

	add("status", u.Status.Present, ptrAny(u.Status.Ptr()))
	add("platform", u.Platform.Present, ptrAny(u.Platform.Ptr()))
	add("folder_id", u.FolderID.Present, ptrAny(u.FolderID.Ptr()))
	add("title", u.Title.Present, ptrAny(u.Title.Ptr()))
	add("cover_url", u.CoverURL.Present, ptrAny(u.CoverURL.Ptr()))
	add("duration", u.Duration.Present, ptrAny(u.Duration.Ptr()))
	add("file_path", u.FilePath.Present, ptrAny(u.FilePath.Ptr()))
	add("video_id", u.VideoID.Present, ptrAny(u.VideoID.Ptr()))
	add("raw_info", u.RawInfo.Present, rawAny(u.RawInfo))
	add("transcript_full_text", u.TranscriptFullText.Present, ptrAny(u.TranscriptFullText.Ptr()))
	add("transcript_language", u.TranscriptLanguage.Present, ptrAny(u.TranscriptLanguage.Ptr()))
	add("transcript_raw", u.TranscriptRaw.Present, rawAny(u.TranscriptRaw))
	add("transcript_segments", u.TranscriptSegments.Present, rawAny(u.TranscriptSegments))
	add("markdown_content", u.MarkdownContent.Present, ptrAny(u.MarkdownContent.Ptr()))
	add("markdown_versions", u.MarkdownVersions.Present, rawAny(u.MarkdownVersions))
	add("form_data", u.FormData.Present, rawAny(u.FormData))

	return cols
}

// IsEmpty reports whether the update touches no column.
func (u HistoryUpdate) IsEmpty() bool {
	return len(u.Columns()) == 0
}

// ApplyTo writes the touched fields onto h. Used to build the full row for
// an insert from the same normalized set an update would use.
func (u HistoryUpdate) ApplyTo(h *History) {
	if u.Status.Present {
		h.Status = u.Status.Value
	}
	if u.Platform.Present {
		h.Platform = u.Platform.Value
	}
	if u.FolderID.Present {
		h.FolderID = u.FolderID.Ptr()
	}
	if u.Title.Present {
		h.Title = u.Title.Ptr()
	}
	if u.CoverURL.Present {
		h.CoverURL = u.CoverURL.Ptr()
	}
	if u.Duration.Present {
		h.Duration = u.Duration.Ptr()
	}
	if u.FilePath.Present {
		h.FilePath = u.FilePath.Ptr()
	}
	if u.VideoID.Present {
		h.VideoID = u.VideoID.Ptr()
	}
	if u.RawInfo.Present {
		h.RawInfo = rawValue(u.RawInfo)
	}
	if u.TranscriptFullText.Present {
		h.TranscriptFullText = u.TranscriptFullText.Ptr()
	}
	if u.TranscriptLanguage.Present {
		h.TranscriptLanguage = u.TranscriptLanguage.Ptr()
	}
	if u.TranscriptRaw.Present {
		h.TranscriptRaw = rawValue(u.TranscriptRaw)
	}
	if u.TranscriptSegments.Present {
		h.TranscriptSegments = rawValue(u.TranscriptSegments)
	}
	if u.MarkdownContent.Present {
		h.MarkdownContent = u.MarkdownContent.Ptr()
	}
	if u.MarkdownVersions.Present {
		h.MarkdownVersions = rawValue(u.MarkdownVersions)
	}
	if u.FormData.Present {
		h.FormData = rawValue(u.FormData)
	}
}

// Column is one column assignment of an update.
type Column struct {
	Name  string
	Value any // nil writes NULL
}

func ptrAny[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func rawValue(f Field[json.RawMessage]) json.RawMessage {
	if !f.HasValue() || len(f.Value) == 0 {
		return nil
	}
	return f.Value
}

func rawAny(f Field[json.RawMessage]) any {
	if v := rawValue(f); v != nil {
		return []byte(v)
	}
	return nil
}
