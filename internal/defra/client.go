// Package defra is a thin HTTP/GraphQL client for DefraDB, the document
// store holding books and everything derived from them, plus the Docker
// lifecycle for running DefraDB locally.
package defra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnhealthy is returned when the DefraDB health check fails.
	ErrUnhealthy = errors.New("defra health check failed")
)

// Client talks to a DefraDB node over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a client for the DefraDB node at url.
func NewClient(url string) *Client {
	return &Client{
		url: strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GQLRequest is a GraphQL request body.
type GQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GQLResponse is a GraphQL response body.
type GQLResponse struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []GQLError     `json:"errors,omitempty"`
}

// GQLError is a single GraphQL error.
type GQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Error returns the first error message, or "".
func (r *GQLResponse) Error() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// HealthCheck reports whether the node is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/health-check", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Execute sends a GraphQL request and returns the parsed response.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (*GQLResponse, error) {
	bodyBytes, err := json.Marshal(GQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/v0/graphql", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("defra server error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if len(respBody) == 0 {
		return nil, fmt.Errorf("defra returned empty response (status %d)", resp.StatusCode)
	}

	var gqlResp GQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w (body: %s)", err, string(respBody))
	}
	return &gqlResp, nil
}

// AddSchema registers a GraphQL schema with the node. Re-adding an
// existing schema fails; callers treat that as already-initialized.
func (c *Client) AddSchema(ctx context.Context, schema string) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/v0/schema", strings.NewReader(schema))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("schema error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Create inserts one document and returns its docID.
func (c *Client) Create(ctx context.Context, collection string, input map[string]any) (string, error) {
	ids, err := c.CreateMany(ctx, collection, []map[string]any{input})
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("create_%s returned no document", collection)
	}
	return ids[0], nil
}

// CreateMany inserts documents in one batch mutation and returns their
// docIDs. DefraDB does not guarantee result order matches input order.
func (c *Client) CreateMany(ctx context.Context, collection string, inputs []map[string]any) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	parts := make([]string, 0, len(inputs))
	for _, input := range inputs {
		gql, err := mapToGraphQLInput(input)
		if err != nil {
			return nil, fmt.Errorf("building input: %w", err)
		}
		parts = append(parts, gql)
	}

	query := fmt.Sprintf(`mutation { create_%s(input: [%s]) { _docID } }`, collection, strings.Join(parts, ", "))
	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("create error: %s", msg)
	}

	docs, ok := resp.Data["create_"+collection].([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected create response: %+v", resp.Data)
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		if doc, ok := d.(map[string]any); ok {
			if id, ok := doc["_docID"].(string); ok {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) != len(inputs) {
		return ids, fmt.Errorf("created %d docs but expected %d", len(ids), len(inputs))
	}
	return ids, nil
}

// Update applies input to the document with the given docID.
func (c *Client) Update(ctx context.Context, collection, docID string, input map[string]any) error {
	gql, err := mapToGraphQLInput(input)
	if err != nil {
		return fmt.Errorf("building input: %w", err)
	}
	query := fmt.Sprintf(`mutation { update_%s(docID: %q, input: %s) { _docID } }`, collection, docID, gql)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return err
	}
	if msg := resp.Error(); msg != "" {
		return fmt.Errorf("update error: %s", msg)
	}
	return nil
}

// Delete removes the document with the given docID.
func (c *Client) Delete(ctx context.Context, collection, docID string) error {
	query := fmt.Sprintf(`mutation { delete_%s(docID: %q) { _docID } }`, collection, docID)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return err
	}
	if msg := resp.Error(); msg != "" {
		return fmt.Errorf("delete error: %s", msg)
	}
	return nil
}

// DeleteWhere removes every document matching the filter and returns
// how many were deleted. The filter uses DefraDB operator syntax, e.g.
// {"book_id": {"_eq": id}}.
func (c *Client) DeleteWhere(ctx context.Context, collection string, filter map[string]any) (int, error) {
	gql, err := mapToGraphQLInput(filter)
	if err != nil {
		return 0, fmt.Errorf("building filter: %w", err)
	}
	query := fmt.Sprintf(`mutation { delete_%s(filter: %s) { _docID } }`, collection, gql)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	if msg := resp.Error(); msg != "" {
		return 0, fmt.Errorf("delete error: %s", msg)
	}

	docs, _ := resp.Data["delete_"+collection].([]any)
	return len(docs), nil
}

// Upsert updates the single document matching filter, or creates one
// from createInput when none matches. Returns the docID.
func (c *Client) Upsert(ctx context.Context, collection string, filter, createInput, updateInput map[string]any) (string, error) {
	filterGQL, err := mapToGraphQLInput(filter)
	if err != nil {
		return "", fmt.Errorf("building filter: %w", err)
	}
	createGQL, err := mapToGraphQLInput(createInput)
	if err != nil {
		return "", fmt.Errorf("building create input: %w", err)
	}
	updateGQL, err := mapToGraphQLInput(updateInput)
	if err != nil {
		return "", fmt.Errorf("building update input: %w", err)
	}

	query := fmt.Sprintf(`mutation { upsert_%s(filter: %s, create: %s, update: %s) { _docID } }`,
		collection, filterGQL, createGQL, updateGQL)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return "", err
	}
	if msg := resp.Error(); msg != "" {
		return "", fmt.Errorf("upsert error: %s", msg)
	}

	if docs, ok := resp.Data["upsert_"+collection].([]any); ok && len(docs) > 0 {
		if doc, ok := docs[0].(map[string]any); ok {
			if id, ok := doc["_docID"].(string); ok {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("unexpected upsert response: %+v", resp.Data)
}

// mapToGraphQLInput renders a map as a GraphQL input object.
func mapToGraphQLInput(input map[string]any) (string, error) {
	var parts []string
	for k, v := range input {
		valStr, err := valueToGraphQL(v)
		if err != nil {
			return "", fmt.Errorf("converting value for key %q: %w", k, err)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", k, valStr))
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

// valueToGraphQL renders a Go value in GraphQL input syntax. Strings go
// through JSON encoding: %q would emit escapes GraphQL rejects.
func valueToGraphQL(v any) (string, error) {
	switch val := v.(type) {
	case string:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("marshaling string: %w", err)
		}
		return string(b), nil
	case int:
		return fmt.Sprintf("%d", val), nil
	case int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		return fmt.Sprintf("%v", val), nil
	case bool:
		return fmt.Sprintf("%v", val), nil
	case map[string]any:
		return mapToGraphQLInput(val)
	case []string:
		items := make([]string, 0, len(val))
		for _, item := range val {
			s, err := valueToGraphQL(item)
			if err != nil {
				return "", err
			}
			items = append(items, s)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			s, err := valueToGraphQL(item)
			if err != nil {
				return "", err
			}
			items = append(items, s)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("marshaling value: %w", err)
		}
		return string(b), nil
	}
}
