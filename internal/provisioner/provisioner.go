package provisioner

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

	"github.com/pvarki/takbackend/internal/models"
	"github.com/pvarki/takbackend/pkg/logger"
	"go.uber.org/zap"
)

// Common errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrPipeline     = errors.New("pipeline request failed")
)

// Provisioner triggers the external pipeline that builds and tears down
// TAK server infrastructure. Completion is reported asynchronously through
// the callback URL handed to Create.
type Provisioner interface {
	Create(ctx context.Context, instance *models.Instance, callbackURL string) error
	Delete(ctx context.Context, instance *models.Instance) error
}

// CreateRequest is the body POSTed to the pipeline.
type CreateRequest struct {
	ID          string          `json:"id"`
	CallbackURL string          `json:"callback_url"`
	OwnerID     string          `json:"owner_id"`
	Color       string          `json:"color"`
	Grouping    string          `json:"grouping"`
	Inputs      json.RawMessage `json:"inputs"`
}

// PipelineClient implements Provisioner over HTTP.
type PipelineClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewPipelineClient(baseURL, token string, timeout time.Duration) *PipelineClient {
	return &PipelineClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying transport, mostly for tests.
func (p *PipelineClient) WithHTTPClient(c *http.Client) *PipelineClient {
	p.http = c
	return p
}

var _ Provisioner = (*PipelineClient)(nil)

func (p *PipelineClient) Create(ctx context.Context, instance *models.Instance, callbackURL string) error {
	if instance == nil || callbackURL == "" {
		return ErrInvalidInput
	}
	inputs := json.RawMessage(instance.TFInputs)
	if len(inputs) == 0 {
		inputs = json.RawMessage("{}")
	}
	body, err := json.Marshal(CreateRequest{
		ID:          instance.ID.String(),
		CallbackURL: callbackURL,
		OwnerID:     instance.OwnerID,
		Color:       instance.Color,
		Grouping:    instance.Grouping,
		Inputs:      inputs,
	})
	if err != nil {
		return fmt.Errorf("marshal create request: %w", err)
	}

	logger.L().Info("triggering pipeline create", zap.String("instance_id", instance.ID.String()), zap.String("callback_url", callbackURL))
	return p.do(ctx, http.MethodPost, p.baseURL+"/instances", body)
}

func (p *PipelineClient) Delete(ctx context.Context, instance *models.Instance) error {
	if instance == nil {
		return ErrInvalidInput
	}
	logger.L().Info("triggering pipeline delete", zap.String("instance_id", instance.ID.String()))
	return p.do(ctx, http.MethodDelete, p.baseURL+"/instances/"+instance.ID.String(), nil)
}

func (p *PipelineClient) do(ctx context.Context, method, url string, body []byte) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("build pipeline request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrPipeline, method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrPipeline, method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
