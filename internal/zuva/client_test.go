package zuva

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const (
	testToken   = "test-token"
	testFieldID = "0f6f4a4e-3b52-4f5e-9f0a-6a2b1c3d4e5f"
)

func fastRetry() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func newTestClient(t *testing.T, handler http.Handler, opts ...ClientOption) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := []ClientOption{
		WithBaseURL(srv.URL),
		WithLogger(arbor.NewLogger()),
		WithRateLimit(0),
		WithRetryPolicy(fastRetry()),
	}
	client, err := NewClient(testToken, append(base, opts...)...)
	require.NoError(t, err)
	return client, srv
}

// dropConnection closes the TCP connection without a response
func dropConnection(t *testing.T, w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	require.True(t, ok)
	conn, _, err := hj.Hijack()
	require.NoError(t, err)
	conn.Close()
}

func TestNewClient(t *testing.T) {
	t.Run("region selects base url", func(t *testing.T) {
		client, err := NewClient(testToken, WithRegion(RegionEU))
		require.NoError(t, err)
		assert.Equal(t, "https://eu.app.zuva.ai/api/v2", client.BaseURL())
	})

	t.Run("defaults to us", func(t *testing.T) {
		client, err := NewClient(testToken)
		require.NoError(t, err)
		assert.Equal(t, "https://us.app.zuva.ai/api/v2", client.BaseURL())
	})

	t.Run("unknown region", func(t *testing.T) {
		_, err := NewClient(testToken, WithRegion("ap"))
		assert.ErrorIs(t, err, ErrInvalidRegion)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := NewClient("")
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestUpload(t *testing.T) {
	t.Run("streams file with bearer token", func(t *testing.T) {
		var gotBody []byte
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/files", r.URL.Path)
			assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
			assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"file_id":"file-123"}`))
		}))

		path := filepath.Join(t.TempDir(), "contract.pdf")
		require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0644))

		fileID, err := client.UploadFile(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, "file-123", fileID)
		assert.Equal(t, "%PDF-1.4 test", string(gotBody))
	})

	t.Run("401 is an authentication error", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

		_, err := client.Upload(context.Background(), "doc.pdf", BytesOpener([]byte("x")))
		var authErr *AuthenticationError
		assert.True(t, errors.As(err, &authErr))
	})

	t.Run("non-201 is an upload error", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"file_id":"file-123"}`))
		}))

		_, err := client.Upload(context.Background(), "doc.pdf", BytesOpener([]byte("x")))
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusOK, apiErr.StatusCode)
		assert.Equal(t, "upload", apiErr.Op)
	})

	t.Run("missing file id", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		}))

		_, err := client.Upload(context.Background(), "doc.pdf", BytesOpener([]byte("x")))
		assert.Error(t, err)
	})

	t.Run("missing local file is not retried", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))

		_, err := client.UploadFile(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"))
		assert.Error(t, err)
		assert.False(t, IsTransient(err))
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})
}

func TestSubmit(t *testing.T) {
	validFields := []string{testFieldID}

	t.Run("local validation", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))

		tooMany := make([]string, MaxIDsPerRequest+1)
		for i := range tooMany {
			tooMany[i] = testFieldID
		}

		tests := []struct {
			name     string
			fileIDs  []string
			fieldIDs []string
			contains string
		}{
			{"no files", nil, validFields, "file_ids"},
			{"too many files", tooMany, validFields, "file_ids"},
			{"no fields", []string{"f"}, nil, "field_ids"},
			{"too many fields", []string{"f"}, tooMany, "field_ids"},
			{"invalid field id", []string{"f"}, []string{testFieldID, "not-a-uuid"}, "not-a-uuid"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := client.Submit(context.Background(), tt.fileIDs, tt.fieldIDs)
				var valErr *ValidationError
				require.True(t, errors.As(err, &valErr))
				assert.Contains(t, valErr.Message, tt.contains)
			})
		}
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("invalid ids are listed up to five", func(t *testing.T) {
		client, _ := newTestClient(t, http.NotFoundHandler())
		_, err := client.Submit(context.Background(), []string{"f"}, []string{"a", "b", "c", "d", "e", "f", "g"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "a, b, c, d, e (and 2 more)")
	})

	t.Run("accepted returns first request id", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/extraction", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body submitRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"file-1"}, body.FileIDs)
			assert.Equal(t, validFields, body.FieldIDs)

			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"file_ids":[{"request_id":"req-1","file_id":"file-1","status":"queued"}]}`))
		}))

		requestID, err := client.Submit(context.Background(), []string{"file-1"}, validFields)
		require.NoError(t, err)
		assert.Equal(t, "req-1", requestID)
	})

	t.Run("400 surfaces provider code and message verbatim", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"invalid_field_ids","message":"Field ids must be valid"}}`))
		}))

		_, err := client.Submit(context.Background(), []string{"file-1"}, validFields)
		var valErr *ValidationError
		require.True(t, errors.As(err, &valErr))
		assert.Equal(t, "invalid_field_ids", valErr.Code)
		assert.Equal(t, "Field ids must be valid", valErr.Message)
	})

	t.Run("404 means unknown field ids", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := client.Submit(context.Background(), []string{"file-1"}, validFields)
		var nfErr *NotFoundError
		assert.True(t, errors.As(err, &nfErr))
	})

	t.Run("4xx is never retried", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))

		_, err := client.Submit(context.Background(), []string{"file-1"}, validFields)
		assert.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestRetryOnNetworkErrors(t *testing.T) {
	t.Run("recovers within three attempts", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				dropConnection(t, w)
				return
			}
			w.Write([]byte(`{"request_id":"req-1","status":"processing"}`))
		}))

		status, err := client.PollStatus(context.Background(), "req-1")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, status.Status)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("gives up after three attempts", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			dropConnection(t, w)
		}))

		_, err := client.FetchResults(context.Background(), "req-1")
		assert.True(t, IsTransient(err))
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("5xx is not retried", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))

		_, err := client.FetchResults(context.Background(), "req-1")
		var apiErr *APIError
		assert.True(t, errors.As(err, &apiErr))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

// statusServer replies to status polls with the given sequence, repeating the last entry
func statusServer(t *testing.T, sequence ...string) (http.Handler, *int32) {
	var calls int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		if n > len(sequence) {
			n = len(sequence)
		}
		entry := sequence[n-1]
		if entry == "error" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(entry))
	}), &calls
}

func TestWaitForCompletion(t *testing.T) {
	const (
		processing = `{"status":"processing"}`
		complete   = `{"status":"complete"}`
	)

	t.Run("times out after polling twice", func(t *testing.T) {
		handler, calls := statusServer(t, processing)
		client, _ := newTestClient(t, handler)

		start := time.Now()
		_, err := client.WaitForCompletion(context.Background(), "req-1", 100*time.Millisecond, 50*time.Millisecond)
		elapsed := time.Since(start)

		var timeoutErr *PipelineTimeoutError
		require.True(t, errors.As(err, &timeoutErr))
		assert.Equal(t, StagePoll, timeoutErr.Stage)
		assert.Equal(t, int32(2), atomic.LoadInt32(calls))
		assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	})

	t.Run("returns on complete", func(t *testing.T) {
		handler, calls := statusServer(t, processing, processing, complete)
		client, _ := newTestClient(t, handler)

		status, err := client.WaitForCompletion(context.Background(), "req-1", time.Second, 5*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, status.Status)
		assert.Equal(t, "req-1", status.RequestID)
		assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	})

	t.Run("provider failure carries its message", func(t *testing.T) {
		handler, _ := statusServer(t, processing, `{"status":"failed","message":"document could not be read"}`)
		client, _ := newTestClient(t, handler)

		_, err := client.WaitForCompletion(context.Background(), "req-1", time.Second, 5*time.Millisecond)
		var failErr *ProviderFailureError
		require.True(t, errors.As(err, &failErr))
		assert.Equal(t, "document could not be read", failErr.Message)
	})

	t.Run("poll errors do not abort the loop", func(t *testing.T) {
		handler, calls := statusServer(t, "error", "error", complete)
		client, _ := newTestClient(t, handler)

		status, err := client.WaitForCompletion(context.Background(), "req-1", time.Second, 5*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, StatusComplete, status.Status)
		assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	})

	t.Run("authentication failure is terminal", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}))

		_, err := client.WaitForCompletion(context.Background(), "req-1", time.Second, 5*time.Millisecond)
		var authErr *AuthenticationError
		assert.True(t, errors.As(err, &authErr))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("hung status call is cut off at max wait", func(t *testing.T) {
		release := make(chan struct{})
		var calls int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}))
		t.Cleanup(func() { close(release) })

		start := time.Now()
		_, err := client.WaitForCompletion(context.Background(), "req-1", 100*time.Millisecond, 5*time.Millisecond)
		elapsed := time.Since(start)

		var timeoutErr *PipelineTimeoutError
		require.True(t, errors.As(err, &timeoutErr), "got %v", err)
		assert.Equal(t, StagePoll, timeoutErr.Stage)
		assert.Less(t, elapsed, time.Second)
		assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
	})

	t.Run("context cancellation stops polling", func(t *testing.T) {
		handler, _ := statusServer(t, processing)
		client, _ := newTestClient(t, handler)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := client.WaitForCompletion(ctx, "req-1", time.Minute, 5*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestFetchResults(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extraction/req-1/results/text", r.URL.Path)
		w.Write([]byte(`{"results":[]}`))
	}))

	raw, err := client.FetchResults(context.Background(), "req-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, string(raw))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestFetchFieldCatalogue(t *testing.T) {
	catalogue := `[{"field_id":"` + testFieldID + `","name":"Assignment","answer_options":{"a":"Yes","b":"No"}}]`

	t.Run("serves from cache within ttl", func(t *testing.T) {
		var calls int32
		clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/fields", r.URL.Path)
			atomic.AddInt32(&calls, 1)
			w.Write([]byte(catalogue))
		}), withClock(clock.Now))

		ctx := context.Background()

		first, err := client.FetchFieldCatalogue(ctx, false)
		require.NoError(t, err)
		require.Len(t, first, 1)
		assert.Equal(t, "Assignment", first[0].Name)
		assert.Equal(t, "Yes", first[0].AnswerOptions["a"])

		clock.Advance(30 * time.Minute)
		_, err = client.FetchFieldCatalogue(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

		clock.Advance(31 * time.Minute)
		_, err = client.FetchFieldCatalogue(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("force refresh bypasses cache", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Write([]byte(catalogue))
		}))

		ctx := context.Background()
		_, err := client.FetchFieldCatalogue(ctx, false)
		require.NoError(t, err)
		_, err = client.FetchFieldCatalogue(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("accepts wrapped list", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"fields":` + catalogue + `}`))
		}))

		fields, err := client.FetchFieldCatalogue(context.Background(), false)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, testFieldID, fields[0].FieldID)
	})

	t.Run("failed refresh keeps previous cache", func(t *testing.T) {
		var fail atomic.Bool
		clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fail.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(catalogue))
		}), withClock(clock.Now))

		ctx := context.Background()
		_, err := client.FetchFieldCatalogue(ctx, false)
		require.NoError(t, err)

		fail.Store(true)
		_, err = client.FetchFieldCatalogue(ctx, true)
		assert.Error(t, err)

		fields, err := client.FetchFieldCatalogue(ctx, false)
		require.NoError(t, err)
		assert.Len(t, fields, 1)
	})

	t.Run("callers cannot mutate the cache", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(catalogue))
		}))

		ctx := context.Background()
		fields, err := client.FetchFieldCatalogue(ctx, false)
		require.NoError(t, err)
		fields[0].Name = "changed"

		again, err := client.FetchFieldCatalogue(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, "Assignment", again[0].Name)
	})
}

func TestStatusResponseDecoding(t *testing.T) {
	var status StatusResponse
	require.NoError(t, json.Unmarshal([]byte(`{"request_id":"r","status":"queued"}`), &status))
	assert.Equal(t, StatusQueued, status.Status)
	assert.True(t, strings.HasPrefix(string(status.Status), "queue"))
}
