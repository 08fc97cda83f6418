package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/learner-progress/internal/storage/memory"
)

func TestHeartbeatThenGet(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/progress/heartbeat",
		`{"leaf_id":"lesson-a","elapsed_s":30,"grouping_id":"module-1","container_id":"course-1"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, node := range []string{"lesson-a", "module-1", "course-1"} {
		rec = env.do(t, http.MethodGet, "/v1/progress/"+node, "")
		require.Equal(t, http.StatusOK, rec.Code, node)
		var body recordResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, int64(30), body.TotalTimeSpentS, node)
		assert.False(t, body.Completed)
	}
}

func TestHeartbeatValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	cases := map[string]string{
		"negative":      `{"leaf_id":"lesson-a","elapsed_s":-5}`,
		"missing leaf":  `{"elapsed_s":5}`,
		"missing time":  `{"leaf_id":"lesson-a"}`,
		"unknown field": `{"leaf_id":"lesson-a","elapsed_s":5,"bogus":1}`,
		"not json":      `{`,
	}
	for name, body := range cases {
		rec := env.do(t, http.MethodPost, "/v1/progress/heartbeat", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	rec := env.do(t, http.MethodPost, "/v1/progress/heartbeat", `{"leaf_id":"lesson-a","elapsed_s":-5}`)
	assert.Contains(t, rec.Body.String(), "elapsed_s must be >= 0", "error text is not HTML-escaped")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "elapsed_s must be >= 0", body["error"])
	assert.Equal(t, 0, env.repo.Len())
}

func TestCompleteRejectsGroupingAsLeaf(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/v1/progress/heartbeat",
		`{"leaf_id":"lesson-a","elapsed_s":10,"grouping_id":"module-1","container_id":"course-1"}`)
	rec := env.do(t, http.MethodPost, "/v1/progress/complete", `{"node_id":"module-1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "node module-1 is a grouping, not a leaf")

	rec = env.do(t, http.MethodGet, "/v1/progress/module-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body recordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Completed)
}

func TestCompleteWithPropagation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/v1/progress/heartbeat",
		`{"leaf_id":"lesson-a","elapsed_s":60,"grouping_id":"module-1","container_id":"course-1"}`)
	env.do(t, http.MethodPost, "/v1/progress/heartbeat",
		`{"leaf_id":"lesson-b","elapsed_s":30,"grouping_id":"module-1","container_id":"course-1"}`)

	rec := env.do(t, http.MethodPost, "/v1/progress/complete", `{"node_id":"lesson-a","container_id":"course-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var first completeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.True(t, first.NewlyCompleted)
	assert.Empty(t, first.AncestorUpdates)
	require.NotNil(t, first.Record.TimeToCompleteS)
	assert.Equal(t, int64(60), *first.Record.TimeToCompleteS)

	rec = env.do(t, http.MethodPost, "/v1/progress/complete", `{"node_id":"lesson-b","kind":"leaf","container_id":"course-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var second completeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Len(t, second.AncestorUpdates, 2)
	assert.Equal(t, "module-1", second.AncestorUpdates[0].NodeID)
	assert.Equal(t, int64(90), *second.AncestorUpdates[0].TimeToCompleteS)

	rec = env.do(t, http.MethodPost, "/v1/progress/complete", `{"node_id":"lesson-a","container_id":"course-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var again completeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.False(t, again.NewlyCompleted)
	assert.Equal(t, int64(60), *again.Record.TimeToCompleteS)
}

func TestCompleteRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/progress/complete", `{"node_id":"lesson-a","kind":"chapter"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.repo.Len())
}

func TestGetProgressNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/progress/lesson-z", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContainerProgressRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/containers/course-1/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum containerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "not_started", string(sum.Status))
	assert.Equal(t, 2, sum.Progress.Total)
	require.Len(t, sum.Leaves, 3)
	assert.True(t, sum.Leaves[2].Optional)

	rec = env.do(t, http.MethodPost, "/v1/containers/course-1/progress", `{"leaf_id":"lesson-a","time_spent_s":40,"completed":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "in_progress", string(sum.Status))
	assert.Equal(t, 1, sum.Progress.Completed)
	assert.Equal(t, int64(40), sum.TimeSpentS)

	rec = env.do(t, http.MethodPost, "/v1/containers/course-1/progress", `{"leaf_id":"lesson-b","time_spent_s":20,"completed":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "completed", string(sum.Status))
	require.NotNil(t, sum.TimeToCompleteS)
	assert.Equal(t, int64(60), *sum.TimeToCompleteS)
}

func TestContainerProgressErrors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/containers/unknown/progress", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/containers/course-1/progress", `{"leaf_id":"stranger","time_spent_s":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageFailureMapsTo503(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, memory.WithFault(func(string, string) error {
		return errors.New("database is down")
	}))

	rec := env.do(t, http.MethodPost, "/v1/progress/heartbeat", `{"leaf_id":"lesson-a","elapsed_s":5}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database is down")
}
