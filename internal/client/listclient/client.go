// Package listclient drives the list lifecycle endpoints from the client
// side: status transitions, reuse, editing sessions and the post-activation
// autosave reset.
package listclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/listkeeper/project/internal/contracts"
)

var ErrUnavailable = errors.New("list API unavailable")

// ReuseResult mirrors the reuse endpoint's response: the draft that now
// holds the copied content plus its items.
type ReuseResult struct {
	Draft contracts.ListSummary   `json:"draft"`
	Items []contracts.ListItemDTO `json:"items"`
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

func statusErr(op string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != "" {
		return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, body.Error)
	}
	return fmt.Errorf("%s: status %d", op, resp.StatusCode)
}

func (c *Client) summaryCall(ctx context.Context, op, method, path string, body any) (contracts.ListSummary, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return contracts.ListSummary{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return contracts.ListSummary{}, statusErr(op, resp)
	}
	var summary contracts.ListSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return contracts.ListSummary{}, fmt.Errorf("decode %s response: %w", op, err)
	}
	return summary, nil
}

func (c *Client) statusCall(ctx context.Context, op, method, path string, body any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return statusErr(op, resp)
	}
	return nil
}

func (c *Client) Activate(ctx context.Context, listID string) (contracts.ListSummary, error) {
	return c.summaryCall(ctx, "activate", http.MethodPatch,
		"/api/v1/lists/"+listID+"/activate", map[string]string{"status": "ACTIVE"})
}

func (c *Client) Complete(ctx context.Context, listID string, checkedItemIDs []string) (contracts.ListSummary, error) {
	return c.summaryCall(ctx, "complete", http.MethodPost,
		"/api/v1/lists/"+listID+"/complete", map[string]any{"checked_item_ids": checkedItemIDs})
}

func (c *Client) Reuse(ctx context.Context, listID string) (ReuseResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/lists/"+listID+"/reuse", nil)
	if err != nil {
		return ReuseResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ReuseResult{}, statusErr("reuse", resp)
	}
	var result ReuseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ReuseResult{}, fmt.Errorf("decode reuse response: %w", err)
	}
	return result, nil
}

func (c *Client) DeleteList(ctx context.Context, listID string) error {
	return c.statusCall(ctx, "delete list", http.MethodDelete, "/api/v1/lists/"+listID, nil)
}

func (c *Client) SetEditing(ctx context.Context, listID string, editing bool) error {
	return c.statusCall(ctx, "set editing", http.MethodPatch,
		"/api/v1/lists/"+listID+"/editing", map[string]bool{"is_editing": editing})
}

func (c *Client) FinishEdit(ctx context.Context, listID string) error {
	return c.statusCall(ctx, "finish edit", http.MethodPost,
		"/api/v1/lists/"+listID+"/finish-edit", nil)
}

// ResetAutosave clears the server's autosave slot; used after an activation
// so stale draft content does not resurface.
func (c *Client) ResetAutosave(ctx context.Context, targetDraftID string) error {
	var body any
	if targetDraftID != "" {
		body = map[string]string{"target_draft_id": targetDraftID}
	}
	return c.statusCall(ctx, "reset autosave", http.MethodPost, "/api/v1/autosave/reset", body)
}
