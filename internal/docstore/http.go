package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HTTPStore talks to a focusline document server. A nil HTTPClient is
// replaced on first use by one with the configured Timeout.
type HTTPStore struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration

	clientOnce sync.Once
}

// NewHTTPStore creates a client with a 10s request timeout.
func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		BaseURL:     baseURL,
		BearerToken: token,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		Timeout:     10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("document server: status=%d body=%s", e.StatusCode, e.Body)
}

type documentResponse struct {
	Path string   `json:"path"`
	Data Document `json:"data"`
}

func (c *HTTPStore) Get(ctx context.Context, path string) (Document, bool, error) {
	if err := ValidatePath(path); err != nil {
		return nil, false, err
	}
	var resp documentResponse
	err := c.do(ctx, http.MethodGet, documentEndpoint(path, nil), nil, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if resp.Data == nil {
		resp.Data = Document{}
	}
	return resp.Data, true, nil
}

func (c *HTTPStore) Set(ctx context.Context, path string, data Document, merge bool) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if data == nil {
		data = Document{}
	}
	q := url.Values{}
	q.Set("merge", fmt.Sprint(merge))
	return c.do(ctx, http.MethodPut, documentEndpoint(path, q), data, nil)
}

func documentEndpoint(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("path", path)
	return "v0/documents?" + q.Encode()
}

func (c *HTTPStore) client() *http.Client {
	c.clientOnce.Do(func() {
		if c.HTTPClient == nil {
			c.HTTPClient = &http.Client{Timeout: c.Timeout}
		}
	})
	return c.HTTPClient
}

func (c *HTTPStore) do(ctx context.Context, method, endpoint string, body any, out any) error {
	target := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader = http.NoBody
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
