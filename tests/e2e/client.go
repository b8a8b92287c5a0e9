package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"heroes/internal/model"
)

// APIError surfaces non-2xx responses from the server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

//nolint:errorlint
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

var ErrNotFound = errors.New("not found")

// Client talks to the characters API the way the browser client does.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// List returns every character in stored order.
func (c *Client) List(ctx context.Context) (model.Collection, error) {
	var out model.Collection
	err := c.do(ctx, http.MethodGet, "/api/characters", nil, http.StatusOK, &out)
	return out, err
}

// Search returns characters whose name or real name contains q.
func (c *Client) Search(ctx context.Context, q string) (model.Collection, error) {
	var out model.Collection
	err := c.do(ctx, http.MethodGet, "/api/characters/search?query="+url.QueryEscape(q), nil, http.StatusOK, &out)
	return out, err
}

// Get retrieves one character; returns ErrNotFound on 404.
func (c *Client) Get(ctx context.Context, id model.CharacterID) (model.Character, error) {
	var out model.Character
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/characters/%d", id), nil, http.StatusOK, &out)
	return out, err
}

func (c *Client) Create(ctx context.Context, in model.CharacterInput) (model.Character, error) {
	var out model.Character
	err := c.do(ctx, http.MethodPost, "/api/characters", in, http.StatusCreated, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, id model.CharacterID, in model.CharacterInput) (model.Character, error) {
	var out model.Character
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/characters/%d", id), in, http.StatusOK, &out)
	return out, err
}

// Delete removes a character; returns ErrNotFound when it does not exist.
func (c *Client) Delete(ctx context.Context, id model.CharacterID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/characters/%d", id), nil, http.StatusOK, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func newAPIError(status int, body []byte) error {
	return &APIError{
		StatusCode: status,
		Body:       string(body),
	}
}
