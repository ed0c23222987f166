package certsapi

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

	"github.com/pvarki/takbackend/pkg/logger"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured = errors.New("certificate api details missing from pipeline outputs")
	ErrNotReady      = errors.New("certificate api not ready")
	ErrUnauthorized  = errors.New("certificate api rejected credentials")
	ErrEmptyBundle   = errors.New("could not get client bundle content")
	ErrCreateFailed  = errors.New("client bundle creation failed")
)

// Output keys written by the pipeline.
const (
	OutputDNSName = "dns_name"
	OutputToken   = "cert_api_token"
)

// Client talks to the certificate API running on one TAK instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

// FromOutputs builds a Client from the pipeline output payload. Values may be
// plain strings or terraform output objects of the form {"value": ...}.
func FromOutputs(outputs []byte, scheme string, hc *http.Client) (*Client, error) {
	if len(outputs) == 0 {
		return nil, ErrNotConfigured
	}
	var m map[string]any
	if err := json.Unmarshal(outputs, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	dns := OutputString(m, OutputDNSName)
	token := OutputString(m, OutputToken)
	if dns == "" || token == "" {
		return nil, ErrNotConfigured
	}
	if scheme == "" {
		scheme = "https"
	}
	return New(fmt.Sprintf("%s://%s/api", scheme, dns), token, hc), nil
}

// OutputString reads key from a pipeline output map, unwrapping {"value": x}.
func OutputString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["value"].(string); ok {
			return s
		}
	}
	return ""
}

// BaseURL returns the API root, e.g. https://tak.example.com/api.
func (c *Client) BaseURL() string { return c.baseURL }

// Ping probes GET /v1. It returns nil only on 200; 401 and 403 yield
// ErrUnauthorized, everything else ErrNotReady.
func (c *Client) Ping(ctx context.Context) error {
	u := c.baseURL + "/v1"
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrNotReady, resp.StatusCode)
	}
}

// GetOrCreateBundle returns the named client's bundle, asking the API to
// create it when the GET does not find one.
func (c *Client) GetOrCreateBundle(ctx context.Context, name string) ([]byte, error) {
	getURL := c.baseURL + "/v1/clients/" + url.PathEscape(name)
	logger.L().Debug("fetching client bundle", zap.String("url", getURL))
	resp, err := c.do(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return nil, fmt.Errorf("get client bundle: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		content, err := io.ReadAll(resp.Body)
		drain(resp)
		if err != nil {
			return nil, fmt.Errorf("read client bundle: %w", err)
		}
		if len(content) == 0 {
			return nil, ErrEmptyBundle
		}
		return content, nil
	}
	drain(resp)

	body, _ := json.Marshal(map[string]string{"name": name})
	postURL := c.baseURL + "/v1/clients"
	logger.L().Debug("creating client bundle", zap.String("url", postURL), zap.String("name", name))
	resp, err = c.do(ctx, http.MethodPost, postURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrCreateFailed, resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read created bundle: %w", err)
	}
	if len(content) == 0 {
		return nil, ErrEmptyBundle
	}
	return content, nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
