// Package client provides a Go HTTP client for programmatic access to the
// notetree API, plus a reconnecting event viewer.
//
// [Client] mirrors the server's endpoint structure with strongly typed
// methods for pages, blocks, media, and the atomic batch endpoint. It uses
// the same [github.com/notetree/notetree/pkg/models] entities as the server,
// and implements the overlay's Committer contract through
// [Client.SubmitBatch], so an editing session can commit its staged edits
// directly through it.
//
// [Viewer] subscribes to the server's event stream over WebSocket and
// redials with configurable backoff when the connection drops. Once the
// retry budget is exhausted the viewer reports connection loss and stops.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/notetree/notetree/pkg/batch"
	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d, body=%s", e.StatusCode, e.Body)
}

// Client is the notetree REST API client. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
}

// NewClient creates a client for the server at baseURL, which should include
// protocol and host without a trailing slash.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetAuthToken sets the bearer token sent with every request.
func (c *Client) SetAuthToken(token string) {
	c.authToken = token
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	return c.httpClient.Do(req)
}

func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Health checks the health status of the server.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Page operations

func (c *Client) CreatePage(ctx context.Context, page *models.Page) (*models.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/pages", page)
	if err != nil {
		return nil, err
	}
	var result models.Page
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/pages/%s", id), nil)
	if err != nil {
		return nil, err
	}
	var result models.Page
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetPageBySlug(ctx context.Context, slug string) (*models.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/pages/slug/%s", slug), nil)
	if err != nil {
		return nil, err
	}
	var result models.Page
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdatePage(ctx context.Context, id models.PageID, update store.PageUpdate) (*models.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/pages/%s", id), update)
	if err != nil {
		return nil, err
	}
	var result models.Page
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeletePage(ctx context.Context, id models.PageID) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/pages/%s", id), nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

func (c *Client) ListPages(ctx context.Context) ([]*models.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/pages", nil)
	if err != nil {
		return nil, err
	}
	var result []*models.Page
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Block operations

func (c *Client) CreateBlock(ctx context.Context, block *models.Block) (*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/blocks", block)
	if err != nil {
		return nil, err
	}
	var result models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/blocks/%s", id), nil)
	if err != nil {
		return nil, err
	}
	var result models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateBlock(ctx context.Context, id models.BlockID, update store.BlockUpdate) (*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/blocks/%s", id), update)
	if err != nil {
		return nil, err
	}
	var result models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteBlock(ctx context.Context, id models.BlockID) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/blocks/%s", id), nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

// ListBlocks retrieves every block of a page in sibling order.
func (c *Client) ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/pages/%s/blocks", pageID), nil)
	if err != nil {
		return nil, err
	}
	var result []*models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListTopLevelBlocks retrieves a page's parentless blocks.
func (c *Client) ListTopLevelBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/pages/%s/blocks/top-level", pageID), nil)
	if err != nil {
		return nil, err
	}
	var result []*models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListChildBlocks retrieves a block's direct children.
func (c *Client) ListChildBlocks(ctx context.Context, parentID models.BlockID) ([]*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/blocks/%s/children", parentID), nil)
	if err != nil {
		return nil, err
	}
	var result []*models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Media operations

func (c *Client) CreateMedia(ctx context.Context, media *models.MediaAsset) (*models.MediaAsset, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/media", media)
	if err != nil {
		return nil, err
	}
	var result models.MediaAsset
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetMedia(ctx context.Context, id models.MediaID) (*models.MediaAsset, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/media/%s", id), nil)
	if err != nil {
		return nil, err
	}
	var result models.MediaAsset
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateMedia(ctx context.Context, id models.MediaID, update store.MediaUpdate) (*models.MediaAsset, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/media/%s", id), update)
	if err != nil {
		return nil, err
	}
	var result models.MediaAsset
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteMedia(ctx context.Context, id models.MediaID) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/media/%s", id), nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

func (c *Client) ListMedia(ctx context.Context, blockID models.BlockID) ([]*models.MediaAsset, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/blocks/%s/media", blockID), nil)
	if err != nil {
		return nil, err
	}
	var result []*models.MediaAsset
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ReorderMedia rewrites the sibling order of a block's media assets.
func (c *Client) ReorderMedia(ctx context.Context, blockID models.BlockID, mediaIDs []models.MediaID) error {
	body := map[string][]models.MediaID{"media_ids": mediaIDs}
	resp, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/blocks/%s/media/reorder", blockID), body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

// SubmitBatch executes a batch atomically on the server. It satisfies the
// overlay session's Committer contract.
func (c *Client) SubmitBatch(ctx context.Context, b batch.Batch) (*batch.Outcome, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/batch", b)
	if err != nil {
		return nil, err
	}
	var result batch.Outcome
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
