// Package search maintains the Elasticsearch read model of submissions and
// answers listing queries from it.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const indexMapping = `{
	"mappings": {
		"properties": {
			"id": {"type": "keyword"},
			"agencyId": {"type": "keyword"},
			"status": {"type": "keyword"},
			"activeQuoteId": {"type": "keyword"},
			"clientContact": {
				"properties": {
					"name": {"type": "text", "fields": {"raw": {"type": "keyword"}}},
					"email": {"type": "keyword"},
					"phone": {"type": "keyword"}
				}
			},
			"payload": {"type": "object", "enabled": false},
			"documents": {"type": "object", "enabled": false},
			"notes": {"type": "object", "enabled": false},
			"createdAt": {"type": "date"},
			"updatedAt": {"type": "date"}
		}
	}
}`

// SubmissionIndex writes and queries one index. Documents are indexed with
// external versioning on Submission.Version so a late, older snapshot never
// overwrites a newer one.
type SubmissionIndex struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewSubmissionIndex(client *elasticsearch.Client, index string, log logger.Logger) *SubmissionIndex {
	return &SubmissionIndex{client: client, index: index, logger: log}
}

// EnsureIndex creates the index with its mapping when it is missing.
func (s *SubmissionIndex) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", s.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(indexMapping)))
	if err != nil {
		return fmt.Errorf("create index %s: %w", s.index, err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("create index %s: %s", s.index, res.String())
	}
	s.logger.Info("created submission index", map[string]interface{}{"index": s.index})
	return nil
}

func (s *SubmissionIndex) IndexSubmission(ctx context.Context, sub *models.Submission) error {
	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	version := int(sub.Version)
	req := esapi.IndexRequest{
		Index:       s.index,
		DocumentID:  sub.ID,
		Body:        bytes.NewReader(body),
		Version:     &version,
		VersionType: "external_gte",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index submission %s: %w", sub.ID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		s.logger.Debug("stale submission snapshot skipped", map[string]interface{}{
			"submissionId": sub.ID,
			"version":      sub.Version,
		})
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("index submission %s: %s", sub.ID, res.String())
	}
	return nil
}

// BuildQuery translates a filter into a search body, newest first.
func BuildQuery(filter models.SubmissionFilter) map[string]interface{} {
	filters := []interface{}{}
	if filter.AgencyID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"agencyId": filter.AgencyID},
		})
	}
	if filter.Status != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"status": string(filter.Status)},
		})
	}

	must := []interface{}{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{
				"clientContact.name": map[string]interface{}{"query": q, "operator": "and"},
			},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filters,
				"must":   must,
			},
		},
		"sort":             []interface{}{map[string]interface{}{"createdAt": map[string]interface{}{"order": "desc"}}},
		"track_total_hits": true,
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.Submission `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *SubmissionIndex) SearchSubmissions(ctx context.Context, filter models.SubmissionFilter) (*models.SubmissionPage, error) {
	body, err := json.Marshal(BuildQuery(filter))
	if err != nil {
		return nil, err
	}
	from, size := filter.From, filter.Size
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("search submissions: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search submissions: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	page := &models.SubmissionPage{
		Submissions: make([]*models.Submission, 0, len(r.Hits.Hits)),
		Total:       r.Hits.Total.Value,
	}
	for i := range r.Hits.Hits {
		sub := r.Hits.Hits[i].Source
		page.Submissions = append(page.Submissions, &sub)
	}
	s.logger.Debug("submission search", map[string]interface{}{
		"total": page.Total,
		"from":  from,
	})
	return page, nil
}
