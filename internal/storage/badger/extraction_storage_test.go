package badger

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func template(doc, wf string) *models.ExtractionJob {
	return &models.ExtractionJob{
		DocumentID:   doc,
		WorkflowID:   wf,
		DocumentPath: "/docs/" + doc + ".pdf",
		FieldIDs:     []string{"0f6f4a4e-3b52-4f5e-9f0a-6a2b1c3d4e5f"},
	}
}

func TestExtractionStorage_ClaimCreatesPendingJob(t *testing.T) {
	store := newTestManager(t).ExtractionStorage()
	ctx := context.Background()

	result, err := store.Claim(ctx, template("doc-1", "wf-1"))
	require.NoError(t, err)

	assert.True(t, result.Claimed)
	assert.True(t, result.Created)
	assert.Equal(t, models.JobStatusPending, result.Job.Status)
	assert.Equal(t, int64(1), result.Job.Attempt)
	assert.NotEmpty(t, result.Job.ID)
	assert.False(t, result.Job.CreatedAt.IsZero())

	byKey, err := store.GetByKey(ctx, "doc-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, result.Job.ID, byKey.ID)

	byID, err := store.Get(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, "/docs/doc-1.pdf", byID.DocumentPath)
}

func TestExtractionStorage_ClaimReturnsExistingJob(t *testing.T) {
	store := newTestManager(t).ExtractionStorage()
	ctx := context.Background()

	first, err := store.Claim(ctx, template("doc-1", "wf-1"))
	require.NoError(t, err)

	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusComplete} {
		_, err := store.Update(ctx, first.Job.ID, 1, func(job *models.ExtractionJob) error {
			job.Status = status
			return nil
		})
		require.NoError(t, err)

		again, err := store.Claim(ctx, template("doc-1", "wf-1"))
		require.NoError(t, err)
		assert.False(t, again.Claimed, string(status))
		assert.Equal(t, first.Job.ID, again.Job.ID)
		assert.Equal(t, status, again.Job.Status)
		assert.Equal(t, int64(1), again.Job.Attempt)
	}
}

func TestExtractionStorage_ClaimResetsFailedJob(t *testing.T) {
	store := newTestManager(t).ExtractionStorage()
	ctx := context.Background()

	first, err := store.Claim(ctx, template("doc-1", "wf-1"))
	require.NoError(t, err)

	_, err = store.Update(ctx, first.Job.ID, 1, func(job *models.ExtractionJob) error {
		job.ProviderFileID = "file-1"
		job.ProviderRequestID = "req-1"
		job.MarkFailed("provider error: boom", time.Now())
		return nil
	})
	require.NoError(t, err)

	retry, err := store.Claim(ctx, template("doc-1", "wf-1"))
	require.NoError(t, err)

	assert.True(t, retry.Claimed)
	assert.False(t, retry.Created)
	assert.Equal(t, first.Job.ID, retry.Job.ID)
	assert.Equal(t, models.JobStatusPending, retry.Job.Status)
	assert.Equal(t, int64(2), retry.Job.Attempt)
	assert.Empty(t, retry.Job.ErrorMessage)
	assert.Empty(t, retry.Job.ProviderRequestID)
	assert.Equal(t, "file-1", retry.Job.ProviderFileID)
	assert.Nil(t, retry.Job.CompletedAt)

	t.Run("new document path drops the uploaded file", func(t *testing.T) {
		_, err := store.Update(ctx, first.Job.ID, 2, func(job *models.ExtractionJob) error {
			job.MarkFailed("provider error: boom", time.Now())
			return nil
		})
		require.NoError(t, err)

		moved := template("doc-1", "wf-1")
		moved.DocumentPath = "/elsewhere/doc-1.pdf"
		result, err := store.Claim(ctx, moved)
		require.NoError(t, err)
		assert.Empty(t, result.Job.ProviderFileID)
		assert.Equal(t, "/elsewhere/doc-1.pdf", result.Job.DocumentPath)
	})
}

func TestExtractionStorage_ConcurrentClaimCreatesOneJob(t *testing.T) {
	store := newTestManager(t).ExtractionStorage()
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
		ids     = map[string]bool{}
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := store.Claim(ctx, template("doc-1", "wf-1"))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if result.Claimed {
				claimed++
			}
			ids[result.Job.ID] = true
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claimed)
	assert.Len(t, ids, 1)

	jobs, err := store.ListByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestExtractionStorage_UpdateRejectsStaleAttempt(t *testing.T) {
	store := newTestManager(t).ExtractionStorage()
	ctx := context.Background()

	result, err := store.Claim(ctx, template("doc-1", "wf-1"))
	require.NoError(t, err)

	_, err = store.Update(ctx, result.Job.ID, 2, func(job *models.ExtractionJob) error {
		job.Status = models.JobStatusComplete
		return nil
	})
	assert.ErrorIs(t, err, interfaces.ErrStaleAttempt)

	mutateErr := errors.New("abort")
	_, err = store.Update(ctx, result.Job.ID, 1, func(job *models.ExtractionJob) error {
		job.Status = models.JobStatusComplete
		return mutateErr
	})
	assert.ErrorIs(t, err, mutateErr)

	job, err := store.Get(ctx, result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)

	_, err = store.Update(ctx, "missing", 1, func(job *models.ExtractionJob) error { return nil })
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)
}

func TestExtractionStorage_UpdatePersistsResults(t *testing.T) {
	store := newTestManager(t).ExtractionStorage()
	ctx := context.Background()

	result, err := store.Claim(ctx, template("doc-1", "wf-1"))
	require.NoError(t, err)

	page := 1
	_, err = store.Update(ctx, result.Job.ID, 1, func(job *models.ExtractionJob) error {
		now := time.Now().UTC()
		job.Status = models.JobStatusComplete
		job.CompletedAt = &now
		job.Results = map[string][]models.Extraction{
			"F1": {{Text: "Acme", Page: &page, BoundingBox: &models.BoundingBox{5, 20, 50, 10}, Spans: json.RawMessage(`[]`)}},
			"F2": {},
		}
		job.AnswerMetadata = map[string]*models.AnswerMetadata{
			"F3": {FieldName: "Governing law", Answers: []models.Answer{{Option: "a", Value: "Ontario"}}, HasAnswers: true},
		}
		return nil
	})
	require.NoError(t, err)

	job, err := store.GetByKey(ctx, "doc-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusComplete, job.Status)
	require.Len(t, job.Results["F1"], 1)
	assert.Equal(t, 1, *job.Results["F1"][0].Page)
	assert.Equal(t, 50.0, job.Results["F1"][0].BoundingBox.Right())
	assert.Contains(t, job.Results, "F2")
	assert.Equal(t, "Ontario", job.AnswerMetadata["F3"].Answers[0].Value)
}

func TestExtractionStorage_Cancel(t *testing.T) {
	store := newTestManager(t).ExtractionStorage()
	ctx := context.Background()

	job, ok, err := store.Cancel(ctx, "doc-1", "wf-1", "cancelled by user")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, job)

	result, err := store.Claim(ctx, template("doc-1", "wf-1"))
	require.NoError(t, err)

	job, ok, err = store.Cancel(ctx, "doc-1", "wf-1", "cancelled by user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "cancelled by user", job.ErrorMessage)
	assert.Equal(t, int64(2), job.Attempt)

	_, err = store.Update(ctx, result.Job.ID, 1, func(job *models.ExtractionJob) error { return nil })
	assert.ErrorIs(t, err, interfaces.ErrStaleAttempt)

	_, ok, err = store.Cancel(ctx, "doc-1", "wf-1", "cancelled by user")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractionStorage_ListAndDelete(t *testing.T) {
	store := newTestManager(t).ExtractionStorage()
	ctx := context.Background()

	for _, pair := range [][2]string{{"doc-1", "wf-1"}, {"doc-1", "wf-2"}, {"doc-2", "wf-1"}} {
		_, err := store.Claim(ctx, template(pair[0], pair[1]))
		require.NoError(t, err)
	}

	jobs, err := store.ListByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	pending, err := store.ListByStatus(ctx, models.JobStatusPending, time.Time{})
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	old, err := store.ListByStatus(ctx, models.JobStatusPending, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, old)

	deleted, err := store.DeleteByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.GetByKey(ctx, "doc-1", "wf-1")
	assert.ErrorIs(t, err, interfaces.ErrJobNotFound)

	remaining, err := store.ListByDocument(ctx, "doc-2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	recreated, err := store.Claim(ctx, template("doc-1", "wf-1"))
	require.NoError(t, err)
	assert.True(t, recreated.Created)
}

func TestWorkflowStorage(t *testing.T) {
	store := newTestManager(t).WorkflowStorage()
	ctx := context.Background()

	_, err := store.Get(ctx, "wf-1")
	assert.ErrorIs(t, err, interfaces.ErrWorkflowNotFound)

	wf := &models.Workflow{ID: "wf-1", Name: "Leases", Fields: json.RawMessage(`["0f6f4a4e-3b52-4f5e-9f0a-6a2b1c3d4e5f"]`)}
	require.NoError(t, store.Save(ctx, wf))
	created := wf.CreatedAt

	wf.Name = "Commercial leases"
	wf.CreatedAt = time.Time{}
	require.NoError(t, store.Save(ctx, wf))

	got, err := store.Get(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Commercial leases", got.Name)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.JSONEq(t, `["0f6f4a4e-3b52-4f5e-9f0a-6a2b1c3d4e5f"]`, string(got.Fields))

	require.NoError(t, store.Save(ctx, &models.Workflow{ID: "wf-0", Name: "A", Fields: json.RawMessage(`[]`)}))
	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "wf-0", list[0].ID)

	require.NoError(t, store.Delete(ctx, "wf-1"))
	require.NoError(t, store.Delete(ctx, "wf-1"))
	_, err = store.Get(ctx, "wf-1")
	assert.ErrorIs(t, err, interfaces.ErrWorkflowNotFound)
}

func TestFieldStorage(t *testing.T) {
	store := newTestManager(t).FieldStorage()
	ctx := context.Background()

	saved, err := store.SaveAll(ctx, []models.FieldDefinition{
		{FieldID: "f-2", Name: "Term"},
		{FieldID: "f-1", Name: "Assignment", AnswerOptions: models.AnswerOptions{"a": "Yes"}},
		{Name: "no id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	field, err := store.Get(ctx, "f-1")
	require.NoError(t, err)
	assert.Equal(t, "Yes", field.AnswerOptions["a"])
	assert.False(t, field.SyncedAt.IsZero())

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Assignment", list[0].Name)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrFieldNotFound)
}

func TestManager_CollectGarbage(t *testing.T) {
	manager := newTestManager(t)
	store := manager.ExtractionStorage()

	_, err := store.Claim(context.Background(), template("doc-gc", "wf-1"))
	require.NoError(t, err)

	collector, ok := manager.(interface{ CollectGarbage() (int, error) })
	require.True(t, ok)

	// A small fresh store has nothing worth rewriting
	rewritten, err := collector.CollectGarbage()
	require.NoError(t, err)
	assert.Zero(t, rewritten)
}
