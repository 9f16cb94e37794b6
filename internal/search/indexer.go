package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/internal/events"
	"audit-portal/portal-backend/pkg/apperr"
)

// DefaultIndex holds one document per event
const DefaultIndex = "audit-events"

// ErrDisabled is returned by Search when no cluster is configured
var ErrDisabled = apperr.New(apperr.ErrUpstream, "search is not configured")

// Config holds Elasticsearch connection settings
type Config struct {
	Addresses []string `json:"addresses" yaml:"addresses"`
	Username  string   `json:"username" yaml:"username"`
	Password  string   `json:"password" yaml:"password"`
	Index     string   `json:"index" yaml:"index"`
}

// Document is the indexed form of an event
type Document struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	WeekID      string    `json:"week_id"`
	TaskID      string    `json:"task_id"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	AuthorEmail string    `json:"author_email"`
	Files       []string  `json:"files,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Hit is one search result
type Hit struct {
	Document
	Score     float64  `json:"score"`
	Highlight []string `json:"highlight,omitempty"`
}

// Indexer mirrors events into Elasticsearch. A nil *Indexer ignores writes.
type Indexer struct {
	es     *elasticsearch.Client
	index  string
	logger *zap.Logger
}

// NewIndexer connects to the cluster. It returns a nil Indexer when no
// address is configured.
func NewIndexer(cfg Config, logger *zap.Logger) (*Indexer, error) {
	if len(cfg.Addresses) == 0 {
		return nil, nil
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	index := cfg.Index
	if index == "" {
		index = DefaultIndex
	}
	return &Indexer{es: es, index: index, logger: logger}, nil
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "project_id":   {"type": "keyword"},
      "week_id":      {"type": "keyword"},
      "task_id":      {"type": "keyword"},
      "type":         {"type": "keyword"},
      "content":      {"type": "text"},
      "author_email": {"type": "keyword"},
      "files":        {"type": "keyword"},
      "created_at":   {"type": "date"}
    }
  }
}`

// EnsureIndex creates the index with its mapping when it does not exist
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	if ix == nil {
		return nil
	}
	res, err := ix.es.Indices.Exists([]string{ix.index}, ix.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = ix.es.Indices.Create(ix.index,
		ix.es.Indices.Create.WithContext(ctx),
		ix.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res)
	}
	ix.logger.Info("Search index created", zap.String("index", ix.index))
	return nil
}

// IndexEvent implements events.Indexer
func (ix *Indexer) IndexEvent(ctx context.Context, event *events.Event) error {
	if ix == nil {
		return nil
	}
	body, err := json.Marshal(NewDocument(event))
	if err != nil {
		return err
	}
	res, err := ix.es.Index(ix.index, bytes.NewReader(body),
		ix.es.Index.WithContext(ctx),
		ix.es.Index.WithDocumentID(event.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("failed to index event: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index event", res)
	}
	return nil
}

// RemoveEvent implements events.Indexer. Missing documents are not an error.
func (ix *Indexer) RemoveEvent(ctx context.Context, id uuid.UUID) error {
	if ix == nil {
		return nil
	}
	res, err := ix.es.Delete(ix.index, id.String(), ix.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to remove event: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("remove event", res)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score     float64             `json:"_score"`
			Source    Document            `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a full-text query over one project's events
func (ix *Indexer) Search(ctx context.Context, projectID uuid.UUID, query string, limit int) ([]Hit, error) {
	if ix == nil {
		return nil, ErrDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("q is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	body, err := json.Marshal(searchQuery(projectID, query, limit))
	if err != nil {
		return nil, err
	}
	res, err := ix.es.Search(
		ix.es.Search.WithContext(ctx),
		ix.es.Search.WithIndex(ix.index),
		ix.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, responseError("search", res))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{Document: h.Source, Score: h.Score, Highlight: h.Highlight["content"]})
	}
	return hits, nil
}

func searchQuery(projectID uuid.UUID, query string, limit int) map[string]interface{} {
	return map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"multi_match": map[string]interface{}{
							"query":  query,
							"fields": []string{"content^2", "author_email", "files"},
						},
					},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"project_id": projectID.String()}},
				},
			},
		},
		"sort": []interface{}{"_score", map[string]interface{}{"created_at": "desc"}},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{"content": map[string]interface{}{}},
		},
	}
}

// NewDocument converts an event to its indexed form
func NewDocument(e *events.Event) Document {
	files := make([]string, 0, len(e.Data.FileURLs))
	for _, f := range e.Data.FileURLs {
		files = append(files, f.Name)
	}
	return Document{
		ID:          e.ID.String(),
		ProjectID:   e.ProjectID.String(),
		WeekID:      e.WeekID.String(),
		TaskID:      e.TaskID,
		Type:        string(e.Type),
		Content:     e.Content,
		AuthorEmail: e.AuthorEmail,
		Files:       files,
		CreatedAt:   e.CreatedAt,
	}
}

func responseError(op string, res *esapi.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("elasticsearch %s failed: %s %s", op, res.Status(), strings.TrimSpace(string(msg)))
}
