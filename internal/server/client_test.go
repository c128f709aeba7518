package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guzun-corp/tsight-agent/internal/domain"
)

func TestClient_AcquireTask(t *testing.T) {
	var gotAuth, gotRequestID string
	var gotBody acquireRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/tasks/acquire", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(domain.Task{
			ID:             "task-1",
			DatasourceName: "main",
			Query:          "SELECT t, cnt FROM metrics",
		})
	}))
	defer srv.Close()

	c := NewClient("secret-key", srv.URL)
	task, err := c.AcquireTask(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, "main", task.DatasourceName)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.True(t, gotBody.IsHighPriorityQueue)
}

func TestClient_AcquireEmptyQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL)

	_, err := c.AcquireTask(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoTask)

	_, err = c.AcquireJob(context.Background())
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestClient_SubmitRecords(t *testing.T) {
	var gotPath string
	var gotBody submitRecordsRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL)
	err := c.SubmitRecords(context.Background(), "task-9", []domain.Record{{T: 1700000000, Cnt: 3.5}}, false)
	require.NoError(t, err)

	assert.Equal(t, "/tasks/task-9/submit", gotPath)
	require.Len(t, gotBody.Records, 1)
	assert.Equal(t, uint32(1700000000), gotBody.Records[0].T)
	assert.False(t, gotBody.IsHighPriorityQueue)
}

func TestClient_SubmitSchemas(t *testing.T) {
	var gotPath string
	var gotBody submitSchemasRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	card := uint64(12)
	schemas := []domain.TableSchema{{
		Database: "shop",
		Table:    "orders",
		RowCount: 100,
		Columns: map[string]domain.ColumnInfo{
			"id":   {TypeName: "int", Cardinality: &card},
			"note": {TypeName: "string"},
		},
	}}

	c := NewClient("k", srv.URL)
	require.NoError(t, c.SubmitSchemas(context.Background(), "main", schemas))

	assert.Equal(t, "/datasource/main/discovery", gotPath)
	require.Len(t, gotBody.Schemas, 1)
	assert.Equal(t, "orders", gotBody.Schemas[0].Table)
	require.NotNil(t, gotBody.Schemas[0].Columns["id"].Cardinality)
	assert.Equal(t, uint64(12), *gotBody.Schemas[0].Columns["id"].Cardinality)
	assert.Nil(t, gotBody.Schemas[0].Columns["note"].Cardinality)
}

func TestClient_ServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL)
	err := c.SubmitTaskError(context.Background(), "task-1", "boom", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_TrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasource/main/add", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL+"/")
	require.NoError(t, c.UpsertDatasource(context.Background(), "main", "clickhouse"))
}
