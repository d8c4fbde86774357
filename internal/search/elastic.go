// Package search keeps an Elasticsearch index of public posts for
// tag-similarity lookups.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"nokoroa/internal/models"
	"nokoroa/internal/observability"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.opentelemetry.io/otel/attribute"
)

// Config addresses the cluster.
type Config struct {
	URL      string
	Username string
	Password string
	Index    string
}

// Elastic indexes public posts and answers related-post queries.
type Elastic struct {
	client *elasticsearch.Client
	index  string
}

// document is what gets indexed per post.
type document struct {
	ID         uint      `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
	Location   *string   `json:"location,omitempty"`
	Prefecture *string   `json:"prefecture,omitempty"`
	AuthorID   uint      `json:"authorId"`
	CreatedAt  time.Time `json:"createdAt"`
}

var indexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":         map[string]string{"type": "long"},
			"title":      map[string]string{"type": "text"},
			"content":    map[string]string{"type": "text"},
			"tags":       map[string]string{"type": "keyword"},
			"location":   map[string]string{"type": "keyword"},
			"prefecture": map[string]string{"type": "keyword"},
			"authorId":   map[string]string{"type": "long"},
			"createdAt":  map[string]string{"type": "date"},
		},
	},
}

// NewElastic creates a client for cfg. It does not contact the cluster.
func NewElastic(cfg Config) (*Elastic, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	index := cfg.Index
	if index == "" {
		index = "nokoroa-posts"
	}
	return &Elastic{client: client, index: index}, nil
}

// EnsureIndex creates the posts index with its mapping when missing.
func (e *Elastic) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", e.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(indexMapping)
	if err != nil {
		return err
	}
	created, err := e.client.Indices.Create(e.index,
		e.client.Indices.Create.WithContext(ctx),
		e.client.Indices.Create.WithBody(bytes.NewReader(body)))
	if err != nil {
		return fmt.Errorf("create index %s: %w", e.index, err)
	}
	defer created.Body.Close()
	if created.IsError() {
		return fmt.Errorf("create index %s: %s", e.index, created.String())
	}
	return nil
}

// IndexPost upserts a public post, or removes it from the index when private.
func (e *Elastic) IndexPost(ctx context.Context, post models.PublicPost) error {
	if !post.IsPublic {
		return e.DeletePost(ctx, post.ID)
	}

	span, ctx := observability.StartClientSpan(ctx, "elasticsearch", "index")
	span.AddAttributes(attribute.Int64("post.id", int64(post.ID)))
	defer span.End()

	body, err := json.Marshal(document{
		ID:         post.ID,
		Title:      post.Title,
		Content:    post.Content,
		Tags:       post.Tags,
		Location:   post.Location,
		Prefecture: post.Prefecture,
		AuthorID:   post.AuthorID,
		CreatedAt:  post.CreatedAt,
	})
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: strconv.FormatUint(uint64(post.ID), 10),
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("index post %d: %w", post.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		err := fmt.Errorf("index post %d: %s", post.ID, res.String())
		span.SetError(err)
		return err
	}
	return nil
}

// DeletePost removes a post. A missing document is not an error.
func (e *Elastic) DeletePost(ctx context.Context, id uint) error {
	span, ctx := observability.StartClientSpan(ctx, "elasticsearch", "delete")
	defer span.End()

	req := esapi.DeleteRequest{Index: e.index, DocumentID: strconv.FormatUint(uint64(id), 10)}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("delete post %d from index: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		err := fmt.Errorf("delete post %d from index: %s", id, res.String())
		span.SetError(err)
		return err
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				ID uint `json:"id"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// FindRelated returns ids of posts sharing at least one of tags, best
// matches first, excluding postID.
func (e *Elastic) FindRelated(ctx context.Context, postID uint, tags []string, limit int) ([]uint, error) {
	if len(tags) == 0 || limit <= 0 {
		return []uint{}, nil
	}

	span, ctx := observability.StartClientSpan(ctx, "elasticsearch", "related")
	span.AddAttributes(attribute.Int64("post.id", int64(postID)), attribute.Int("tags", len(tags)))
	defer span.End()

	should := make([]map[string]any, len(tags))
	for i, tag := range tags {
		should[i] = map[string]any{"term": map[string]any{"tags": tag}}
	}
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should":               should,
				"minimum_should_match": 1,
				"must_not": map[string]any{
					"term": map[string]any{"id": postID},
				},
			},
		},
		"_source": []string{"id"},
		"size":    limit,
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
		e.client.Search.WithTimeout(5*time.Second),
	)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("related posts search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		err := fmt.Errorf("related posts search: %s", res.String())
		span.SetError(err)
		return nil, err
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode related posts: %w", err)
	}
	ids := make([]uint, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		ids = append(ids, hit.Source.ID)
	}
	return ids, nil
}
