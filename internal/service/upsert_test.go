package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilinote/internal/domain"
	"bilinote/internal/domain/models"
	"bilinote/internal/domain/repositories"
	"bilinote/internal/domain/services"
)

const fullPayload = `{
	"task_id": "t1",
	"status": "SUCCESS",
	"platform": "bilibili",
	"title": "Lecture 1",
	"duration": 1234.9,
	"video_id": "BV1xx",
	"raw_info": {"uploader": "someone", "tags": ["a", "b"]},
	"transcript_segments": [{"start": 0, "end": 1.5, "text": "hi"}],
	"markdown_versions": [{"ver_id": "v1", "content": "# Notes"}],
	"markdown_content": "# Notes",
	"unknown_key": "dropped"
}`

func TestUpsertCreatesThenMerges(t *testing.T) {
	env := newTestEnv(t)

	created := env.mustUpsert(t, fullPayload)
	assert.True(t, created.Created)
	assert.Equal(t, 1234, *created.History.Duration)
	assert.JSONEq(t, `{"uploader": "someone", "tags": ["a", "b"]}`, string(created.History.RawInfo))
	assert.Nil(t, created.History.CoverURL)

	merged := env.mustUpsert(t, `{"task_id": "t1", "status": "FAILED", "title": null, "cover_url": "http://img"}`)
	assert.False(t, merged.Created)
	assert.Equal(t, "FAILED", merged.History.Status)
	assert.Equal(t, "Lecture 1", *merged.History.Title)
	assert.Equal(t, "http://img", *merged.History.CoverURL)
	assert.Equal(t, "bilibili", merged.History.Platform)
	assert.Equal(t, created.History.ID, merged.History.ID)
	assert.True(t, merged.History.CreatedAt.Equal(created.History.CreatedAt))
}

func TestUpsertIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	first := env.mustUpsert(t, fullPayload).History
	time.Sleep(2 * time.Millisecond)
	second := env.mustUpsert(t, fullPayload).History

	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))

	// Everything but updated_at is unchanged
	first.UpdatedAt = time.Time{}
	second.UpdatedAt = time.Time{}
	assert.Equal(t, first, second)
}

func TestUpsertValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{name: "new row without status", payload: `{"task_id": "n1", "platform": "bilibili"}`, want: domain.ErrValidation},
		{name: "new row with null platform", payload: `{"task_id": "n2", "status": "PENDING", "platform": null}`, want: domain.ErrValidation},
		{name: "no identity", payload: `{"status": "PENDING", "platform": "x"}`, want: domain.ErrValidation},
		{name: "not an object", payload: `[1, 2]`, want: domain.ErrValidation},
		{name: "malformed", payload: `{"task_id":`, want: domain.ErrValidation},
		{name: "object title", payload: `{"task_id": "n3", "status": "PENDING", "platform": "x", "title": {}}`, want: domain.ErrValidation},
		{name: "negative duration", payload: `{"task_id": "n4", "status": "PENDING", "platform": "x", "duration": -3}`, want: domain.ErrValidation},
		{name: "missing folder", payload: `{"task_id": "n5", "status": "PENDING", "platform": "x", "folder_id": "ghost"}`, want: domain.ErrInvalidReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.upsert.Upsert(ctx, []byte(tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	page, err := env.history.ListHistory(ctx, &services.ListHistoryRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestUpsertExistingRowNeedsNoRequiredColumns(t *testing.T) {
	env := newTestEnv(t)

	env.mustUpsert(t, `{"task_id": "t1", "status": "RUNNING", "platform": "youtube"}`)
	result := env.mustUpsert(t, `{"task_id": "t1", "markdown_content": "done"}`)
	assert.Equal(t, "done", *result.History.MarkdownContent)
	assert.Equal(t, "RUNNING", result.History.Status)
}

func TestUpsertConcurrentNewTaskID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*services.UpsertResult, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := fmt.Sprintf(`{"task_id": "race", "status": "RUNNING", "platform": "bilibili", "title": "w%d"}`, i)
			results[i], errs[i] = env.upsert.Upsert(ctx, []byte(payload))
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if results[i].Created {
			created++
		}
	}
	assert.Equal(t, 1, created)

	page, err := env.history.ListHistory(ctx, &services.ListHistoryRequest{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

// flakyHistoryRepo fails Upsert with a retryable conflict a fixed number of times
type flakyHistoryRepo struct {
	repositories.HistoryRepository
	failures int
	calls    int
}

func (r *flakyHistoryRepo) Upsert(ctx context.Context, h *models.History, u models.HistoryUpdate, now time.Time) (*models.History, bool, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, false, &domain.ConflictError{Message: "race", ResourceType: "history", ResourceID: h.TaskID, Retryable: true}
	}
	return r.HistoryRepository.Upsert(ctx, h, u, now)
}

func TestUpsertRetriesRetryableConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("RecoversWithinBudget", func(t *testing.T) {
		repo := &flakyHistoryRepo{HistoryRepository: env.historyRepo, failures: 2}
		svc := NewUpsertService(repo, env.txManager, env.validator, 3, env.logger)

		result, err := svc.Upsert(ctx, []byte(`{"task_id": "r1", "status": "PENDING", "platform": "x"}`))
		require.NoError(t, err)
		assert.True(t, result.Created)
		assert.Equal(t, 3, repo.calls)
	})

	t.Run("GivesUp", func(t *testing.T) {
		repo := &flakyHistoryRepo{HistoryRepository: env.historyRepo, failures: 10}
		svc := NewUpsertService(repo, env.txManager, env.validator, 2, env.logger)

		_, err := svc.Upsert(ctx, []byte(`{"task_id": "r2", "status": "PENDING", "platform": "x"}`))
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.True(t, domain.IsRetryable(err))
		assert.Equal(t, 3, repo.calls)
	})
}

func TestImport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	history, err := env.upsert.Import(ctx, []byte(fullPayload))
	require.NoError(t, err)
	assert.Equal(t, "t1", history.TaskID)

	_, err = env.upsert.Import(ctx, []byte(fullPayload))
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUpsertNumericTaskIDSpellings(t *testing.T) {
	env := newTestEnv(t)

	first := env.mustUpsert(t, `{"task_id": 42, "status": "PENDING", "platform": "bilibili"}`)
	assert.True(t, first.Created)

	second := env.mustUpsert(t, `{"task_id": 42.0, "status": "SUCCESS"}`)
	assert.False(t, second.Created)
	assert.Equal(t, "42", second.History.TaskID)
	assert.Equal(t, first.History.ID, second.History.ID)
	assert.Equal(t, "SUCCESS", second.History.Status)
}

func TestImportBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustUpsert(t, `{"task_id": "exists", "status": "SUCCESS", "platform": "bilibili", "title": "original"}`)

	items := []json.RawMessage{
		json.RawMessage(`{"task_id": "new1", "status": "SUCCESS", "platform": "bilibili"}`),
		json.RawMessage(`{"task_id": "exists", "status": "FAILED", "platform": "bilibili", "title": "overwritten?"}`),
		json.RawMessage(`{"task_id": "bad", "platform": "bilibili"}`),
		json.RawMessage(`{"id": "task-shape", "status": "SUCCESS", "platform": "youtube", "markdown": "# md"}`),
		json.RawMessage(`"not an object"`),
	}

	result, err := env.upsert.ImportBatch(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Items, 5)

	assert.Equal(t, services.ImportCreated, result.Items[0].Outcome)
	assert.Equal(t, services.ImportSkipped, result.Items[1].Outcome)
	assert.Equal(t, services.ImportFailed, result.Items[2].Outcome)
	assert.NotEmpty(t, result.Items[2].Reason)
	assert.Equal(t, "bad", result.Items[2].TaskID)
	assert.Equal(t, services.ImportCreated, result.Items[3].Outcome)
	assert.Equal(t, services.ImportFailed, result.Items[4].Outcome)
	assert.Equal(t, 4, result.Items[4].Index)

	// Skipped rows are left alone
	existing, err := env.history.GetHistory(ctx, "exists")
	require.NoError(t, err)
	assert.Equal(t, "original", *existing.Title)

	shaped, err := env.history.GetHistory(ctx, "task-shape")
	require.NoError(t, err)
	assert.Equal(t, "# md", *shaped.MarkdownContent)
}

func TestImportBatchWithDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	items := []json.RawMessage{
		json.RawMessage(`{"id": "bare", "markdown": "# md"}`),
		json.RawMessage(`{"id": "null-status", "status": null, "platform": "youtube"}`),
		json.RawMessage(`{"id": "explicit", "status": "SUCCESS", "platform": "bilibili"}`),
		json.RawMessage(`{"id": "empty-status", "status": "", "platform": "bilibili"}`),
	}
	opts := services.ImportOptions{DefaultStatus: models.StatusUnknown, DefaultPlatform: "unknown"}

	result, err := env.upsert.ImportBatchWith(ctx, items, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, services.ImportFailed, result.Items[3].Outcome)

	tests := []struct {
		taskID       string
		wantStatus   string
		wantPlatform string
	}{
		{"bare", models.StatusUnknown, "unknown"},
		{"null-status", models.StatusUnknown, "youtube"},
		{"explicit", "SUCCESS", "bilibili"},
	}
	for _, tt := range tests {
		t.Run(tt.taskID, func(t *testing.T) {
			got, err := env.history.GetHistory(ctx, tt.taskID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantPlatform, got.Platform)
		})
	}

	// Without defaults the same bare payload is rejected
	plain, err := env.upsert.ImportBatch(ctx, []json.RawMessage{json.RawMessage(`{"id": "bare2"}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, plain.Failed)
}
