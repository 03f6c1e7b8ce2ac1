package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/models"
)

// newTestManager connects to EXTRACTA_TEST_POSTGRES_DSN, skipping when unset
func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	dsn := os.Getenv("EXTRACTA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EXTRACTA_TEST_POSTGRES_DSN not set")
	}

	manager, err := NewManager(context.Background(), arbor.NewLogger(), &common.PostgresConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestExtractionStorage_ClaimLifecycle(t *testing.T) {
	store := newTestManager(t).ExtractionStorage()
	ctx := context.Background()
	doc := "doc-" + uuid.NewString()

	tmpl := &models.ExtractionJob{DocumentID: doc, WorkflowID: "wf-1", DocumentPath: "/docs/a.pdf"}
	t.Cleanup(func() { store.DeleteByDocument(context.Background(), doc) })

	first, err := store.Claim(ctx, tmpl)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, int64(1), first.Job.Attempt)

	again, err := store.Claim(ctx, tmpl)
	require.NoError(t, err)
	assert.False(t, again.Claimed)

	_, err = store.Update(ctx, first.Job.ID, 1, func(job *models.ExtractionJob) error {
		job.MarkFailed("provider error: boom", time.Now())
		return nil
	})
	require.NoError(t, err)

	retry, err := store.Claim(ctx, tmpl)
	require.NoError(t, err)
	assert.True(t, retry.Claimed)
	assert.Equal(t, int64(2), retry.Job.Attempt)

	_, err = store.Update(ctx, first.Job.ID, 1, func(job *models.ExtractionJob) error { return nil })
	assert.ErrorIs(t, err, interfaces.ErrStaleAttempt)

	job, ok, err := store.Cancel(ctx, doc, "wf-1", "cancelled by user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cancelled by user", job.ErrorMessage)

	deleted, err := store.DeleteByDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestExtractionStorage_ConcurrentClaim(t *testing.T) {
	store := newTestManager(t).ExtractionStorage()
	ctx := context.Background()
	doc := "doc-" + uuid.NewString()
	t.Cleanup(func() { store.DeleteByDocument(context.Background(), doc) })

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := store.Claim(ctx, &models.ExtractionJob{DocumentID: doc, WorkflowID: "wf-1"})
			if !assert.NoError(t, err) {
				return
			}
			if result.Claimed {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claimed)
}
