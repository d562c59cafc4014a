// Package client is a Go client for the annie HTTP API.
//
// Example usage:
//
//	c := client.New("http://localhost:8080")
//	if err := c.CreateIndex(client.CreateIndexRequest{Name: "docs", Dimension: 384, SpaceType: "cosine"}); err != nil {
//		...
//	}
//	ids, err := c.AddVectors("docs", vectors, nil)
//	res, err := c.Search("docs", query, 10)
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	pkgerrors "annie/pkg/errors"
)

// Client is a thin HTTP client over the annie API.
type Client struct {
	BaseURL string
	Client  *http.Client
}

// APIError is returned when the server answers with a non-successful status.
// It unwraps to the pkg/errors sentinel named by Code, falling back to one
// derived from the status.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("annie: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if err := pkgerrors.FromCode(e.Code); err != nil {
		return err
	}
	switch e.StatusCode {
	case http.StatusNotFound:
		return pkgerrors.ErrIndexNotFound
	case http.StatusConflict:
		return pkgerrors.ErrIndexExists
	case http.StatusNotImplemented:
		return pkgerrors.ErrNotImplemented
	case http.StatusBadRequest:
		return pkgerrors.ErrInvalidParameter
	}
	return nil
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type CreateIndexRequest struct {
	Name       string         `json:"name"`
	IndexType  string         `json:"index_type,omitempty"`
	SpaceType  string         `json:"space_type,omitempty"`
	Dimension  int            `json:"dimension"`
	MinkowskiP float32        `json:"minkowski_p,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type IndexInfo struct {
	Name       string  `json:"name"`
	IndexType  string  `json:"index_type"`
	SpaceType  string  `json:"space_type"`
	MinkowskiP float32 `json:"minkowski_p,omitempty"`
	Dimension  int     `json:"dimension"`
	Count      int     `json:"count"`
}

type SearchResult struct {
	IDs       []int64   `json:"ids"`
	Distances []float32 `json:"distances"`
}

// request sends an HTTP request and decodes the JSON response into out.
func (c *Client) request(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			apiErr.Message, apiErr.Code = e.Error, e.Code
		}
		return apiErr
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func indexPath(name string, rest ...string) string {
	p := "/v1/indexes/" + url.PathEscape(name)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// HealthCheck reports whether the server is serving.
func (c *Client) HealthCheck() (bool, error) {
	var result struct {
		Status string `json:"status"`
	}
	if err := c.request(http.MethodGet, "/v1/health", nil, &result); err != nil {
		return false, err
	}
	return result.Status == "ok", nil
}

func (c *Client) CreateIndex(req CreateIndexRequest) (*IndexInfo, error) {
	var info IndexInfo
	if err := c.request(http.MethodPost, "/v1/indexes", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) GetIndex(name string) (*IndexInfo, error) {
	var info IndexInfo
	if err := c.request(http.MethodGet, indexPath(name), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) ListIndexes() ([]IndexInfo, error) {
	var result struct {
		Indexes []IndexInfo `json:"indexes"`
	}
	if err := c.request(http.MethodGet, "/v1/indexes", nil, &result); err != nil {
		return nil, err
	}
	return result.Indexes, nil
}

func (c *Client) DeleteIndex(name string) error {
	return c.request(http.MethodDelete, indexPath(name), nil, nil)
}

// SaveIndex asks the server to snapshot the index now.
func (c *Client) SaveIndex(name string) error {
	return c.request(http.MethodPost, indexPath(name, "save"), nil, nil)
}

// AddVectors stores vectors under ids. With nil ids the server assigns them.
// It returns the ids used.
func (c *Client) AddVectors(name string, vectors [][]float32, ids []int64) ([]int64, error) {
	payload := map[string]any{"vectors": vectors}
	if ids != nil {
		payload["ids"] = ids
	}
	var result struct {
		IDs []int64 `json:"ids"`
	}
	if err := c.request(http.MethodPost, indexPath(name, "vectors"), payload, &result); err != nil {
		return nil, fmt.Errorf("add vectors failed: %w", err)
	}
	return result.IDs, nil
}

// RemoveVectors deletes every vector stored under ids and returns how many were removed.
func (c *Client) RemoveVectors(name string, ids []int64) (int, error) {
	var result struct {
		Removed int `json:"removed"`
	}
	err := c.request(http.MethodPost, indexPath(name, "vectors", "delete"), map[string]any{"ids": ids}, &result)
	return result.Removed, err
}

func (c *Client) Search(name string, vector []float32, k int) (*SearchResult, error) {
	return c.search(name, map[string]any{"vector": vector, "k": k})
}

// SearchFiltered restricts results to allowedIDs.
func (c *Client) SearchFiltered(name string, vector []float32, k int, allowedIDs []int64) (*SearchResult, error) {
	if allowedIDs == nil {
		allowedIDs = []int64{}
	}
	return c.search(name, map[string]any{"vector": vector, "k": k, "filter_ids": allowedIDs})
}

func (c *Client) search(name string, payload map[string]any) (*SearchResult, error) {
	var result SearchResult
	if err := c.request(http.MethodPost, indexPath(name, "search"), payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchBatch answers several queries at once, one result per query.
func (c *Client) SearchBatch(name string, queries [][]float32, k int) ([]SearchResult, error) {
	var result struct {
		Results []SearchResult `json:"results"`
	}
	payload := map[string]any{"queries": queries, "k": k}
	if err := c.request(http.MethodPost, indexPath(name, "search", "batch"), payload, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}
