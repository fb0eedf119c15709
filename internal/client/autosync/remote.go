package autosync

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

var ErrRemoteUnavailable = errors.New("autosave endpoint unavailable")

// RemoteStore is the server-side autosave slot as seen from the client.
type RemoteStore interface {
	Get(ctx context.Context) (*contracts.DraftSnapshot, error)
	Put(ctx context.Context, draft contracts.DraftPayload) (contracts.ListSummary, error)
	Delete(ctx context.Context) error
}

// HTTPRemote talks to the list API's autosave endpoints with a bearer
// token.
type HTTPRemote struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewHTTPRemote(baseURL, token string) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPRemote) do(ctx context.Context, method string, body any) (*http.Response, error) {
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

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+"/api/v1/autosave", reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return resp, nil
}

// Get returns nil when the user has no autosave draft on the server.
func (r *HTTPRemote) Get(ctx context.Context) (*contracts.DraftSnapshot, error) {
	resp, err := r.do(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrRemoteUnavailable, resp.StatusCode)
	}

	var snapshot contracts.DraftSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decode autosave draft: %w", err)
	}
	return &snapshot, nil
}

func (r *HTTPRemote) Put(ctx context.Context, draft contracts.DraftPayload) (contracts.ListSummary, error) {
	resp, err := r.do(ctx, http.MethodPut, draft)
	if err != nil {
		return contracts.ListSummary{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return contracts.ListSummary{}, fmt.Errorf("%w: status %d", ErrRemoteUnavailable, resp.StatusCode)
	}
	var summary contracts.ListSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return contracts.ListSummary{}, fmt.Errorf("decode autosave response: %w", err)
	}
	return summary, nil
}

func (r *HTTPRemote) Delete(ctx context.Context) error {
	resp, err := r.do(ctx, http.MethodDelete, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: status %d", ErrRemoteUnavailable, resp.StatusCode)
	}
	return nil
}
