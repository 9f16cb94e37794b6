package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/events"
	"audit-portal/portal-backend/pkg/apperr"
)

type recordedRequest struct {
	method string
	path   string
	body   string
}

// fakeCluster answers like a single Elasticsearch node
type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	search   string
	status   int
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{r.Method, r.URL.Path, string(body)})
	status := f.status
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
		return
	}
	if strings.HasSuffix(r.URL.Path, "/_search") {
		_, _ = w.Write([]byte(f.search))
		return
	}
	_, _ = w.Write([]byte(`{"result":"created"}`))
}

func newTestIndexer(t *testing.T, cluster *fakeCluster) *Indexer {
	t.Helper()
	server := httptest.NewServer(cluster)
	t.Cleanup(server.Close)
	ix, err := NewIndexer(Config{Addresses: []string{server.URL}}, zap.NewNop())
	require.NoError(t, err)
	return ix
}

func TestNewIndexer_Disabled(t *testing.T) {
	ix, err := NewIndexer(Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, ix)

	assert.NoError(t, ix.IndexEvent(context.Background(), &events.Event{ID: uuid.New()}))
	assert.NoError(t, ix.RemoveEvent(context.Background(), uuid.New()))
	assert.NoError(t, ix.EnsureIndex(context.Background()))

	_, err = ix.Search(context.Background(), uuid.New(), "cash", 10)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestIndexer_IndexAndRemove(t *testing.T) {
	cluster := &fakeCluster{}
	ix := newTestIndexer(t, cluster)
	event := &events.Event{
		ID:          uuid.New(),
		ProjectID:   uuid.New(),
		WeekID:      uuid.New(),
		TaskID:      "task-1",
		Type:        events.TypeMeeting,
		Content:     "Kick-off with the CFO",
		AuthorEmail: "auditor@example.com",
		CreatedAt:   time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		Data:        events.Data{FileURLs: []events.FileRef{{Name: "minutes.pdf", URL: "https://files/minutes.pdf"}}},
	}

	require.NoError(t, ix.IndexEvent(context.Background(), event))
	require.NoError(t, ix.RemoveEvent(context.Background(), event.ID))

	require.Len(t, cluster.requests, 2)
	put := cluster.requests[0]
	assert.Equal(t, "/"+DefaultIndex+"/_doc/"+event.ID.String(), put.path)
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(put.body), &doc))
	assert.Equal(t, event.ProjectID.String(), doc.ProjectID)
	assert.Equal(t, "meeting", doc.Type)
	assert.Equal(t, []string{"minutes.pdf"}, doc.Files)

	del := cluster.requests[1]
	assert.Equal(t, http.MethodDelete, del.method)
	assert.Equal(t, "/"+DefaultIndex+"/_doc/"+event.ID.String(), del.path)
}

func TestIndexer_RemoveMissingIsFine(t *testing.T) {
	cluster := &fakeCluster{status: http.StatusNotFound}
	ix := newTestIndexer(t, cluster)

	assert.NoError(t, ix.RemoveEvent(context.Background(), uuid.New()))
}

func TestIndexer_Search(t *testing.T) {
	projectID := uuid.New()
	cluster := &fakeCluster{search: `{"hits":{"hits":[
		{"_score":2.5,"_source":{"id":"e1","project_id":"` + projectID.String() + `","content":"Cash count done"},
		 "highlight":{"content":["<em>Cash</em> count done"]}}
	]}}`}
	ix := newTestIndexer(t, cluster)

	hits, err := ix.Search(context.Background(), projectID, " cash ", 0)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "e1", hits[0].ID)
	assert.Equal(t, 2.5, hits[0].Score)
	assert.Equal(t, []string{"<em>Cash</em> count done"}, hits[0].Highlight)

	req := cluster.requests[0]
	assert.Equal(t, "/"+DefaultIndex+"/_search", req.path)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(req.body), &body))
	assert.Equal(t, float64(20), body["size"])
	assert.Contains(t, req.body, projectID.String())
	assert.Contains(t, req.body, `"query":"cash"`)
}

func TestIndexer_SearchErrors(t *testing.T) {
	ix := newTestIndexer(t, &fakeCluster{status: http.StatusInternalServerError})

	_, err := ix.Search(context.Background(), uuid.New(), "  ", 10)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ix.Search(context.Background(), uuid.New(), "cash", 10)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}
