package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pvarki/takbackend/internal/api/types"
)

const defaultURL = "http://localhost:8080"

// APIClient talks to the takbackend HTTP API.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// envelope mirrors types.APIResponse with the payload left undecoded.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *types.APIError `json:"error"`
}

// newAPIClient builds an APIClient from flags or env vars.
func newAPIClient(cmd *cobra.Command) *APIClient {
	url, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")
	if url == "" {
		url = os.Getenv("TAKCTL_URL")
	}
	if token == "" {
		token = os.Getenv("TAKCTL_TOKEN")
	}
	if url == "" {
		url = defaultURL
	}
	return &APIClient{
		baseURL: strings.TrimRight(url, "/"),
		token:   token,
		http: &http.Client{
			Timeout: 2 * time.Minute,
			// nextclient answers with a redirect that must not be followed blindly.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (c *APIClient) do(method, path string, body, out any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
		rd = &buf
	}
	req, err := http.NewRequest(method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Error != nil {
			return resp, fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return resp, fmt.Errorf("api error %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil || len(raw) == 0 {
		return resp, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, json.Unmarshal(env.Data, out)
}

func (c *APIClient) get(path string, out any) error {
	_, err := c.do(http.MethodGet, path, nil, out)
	return err
}

func (c *APIClient) post(path string, body, out any) error {
	_, err := c.do(http.MethodPost, path, body, out)
	return err
}

func (c *APIClient) delete(path string) error {
	_, err := c.do(http.MethodDelete, path, nil, nil)
	return err
}

// nextClient allocates a client and returns the instructions URL it was
// redirected to.
func (c *APIClient) nextClient(sequenceID string) (string, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/sequences/nextclient/"+sequenceID, nil, nil)
	if err != nil {
		return "", err
	}
	loc := resp.Header.Get("Location")
	if resp.StatusCode != http.StatusFound || loc == "" {
		return "", errors.New("expected a redirect to the client instructions")
	}
	return loc, nil
}

// download fetches an absolute URL as raw bytes.
func (c *APIClient) download(url string) ([]byte, error) {
	resp, err := c.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
