// Package backend is the typed HTTP client for the remote search/embedding/
// batch-matching service. It is a pure transport shim: validation happens
// before any network call, errors are mapped onto the standard taxonomy,
// and retry policy belongs to the caller, not here.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "nextrial-session/internal/common/errors"
	"nextrial-session/internal/models"
)

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	config *Config
	client *http.Client
	logger Logger
}

func NewClient(config *Config, log Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.With(map[string]interface{}{
			"component": "backend-client",
		}),
	}
}

// CheckHealth reports the backend's health state. A reachable server never
// produces a transport error here; malformed or non-2xx responses surface
// as UpstreamError carrying the HTTP status.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.getJSON(ctx, "/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Search runs one scoped search query against the backend.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*models.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, apperrors.NewValidationError("query must not be empty")
	}
	if req.NResults < 1 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("nResults must be >= 1, got %d", req.NResults))
	}
	if req.SimilarityThreshold < 0 || req.SimilarityThreshold > 1 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("similarityThreshold must be in [0,1], got %g", req.SimilarityThreshold))
	}

	payload := searchRequestPayload{
		Query:               req.Query,
		NResults:            req.NResults,
		SimilarityThreshold: req.SimilarityThreshold,
		PatientID:           req.PatientID,
		Sources:             req.Sources,
	}

	var resp searchResponsePayload
	if err := c.postJSON(ctx, "/api/search/query", payload, &resp); err != nil {
		return nil, err
	}

	result := resp.toSearchResult()

	c.logger.Info("search completed", map[string]interface{}{
		"totalResults":     result.TotalResults,
		"confidence":       string(result.Confidence),
		"processingTimeMs": result.ProcessingTimeMs,
	})

	return result, nil
}

// Embed returns embedding vectors for the given texts.
func (c *Client) Embed(ctx context.Context, texts []string) (*EmbedResponse, error) {
	if len(texts) == 0 {
		return nil, apperrors.NewValidationError("texts must not be empty")
	}

	payload := map[string]interface{}{"texts": texts}

	var resp EmbedResponse
	if err := c.postJSON(ctx, "/api/embed", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchMatch kicks off an async patient matching job. Only the
// acknowledgement is returned; job completion is out of band.
func (c *Client) BatchMatch(ctx context.Context, patientIDs []string) (*BatchMatchResponse, error) {
	if len(patientIDs) == 0 {
		return nil, apperrors.NewValidationError("patientIds must not be empty")
	}

	payload := map[string]interface{}{"patient_ids": patientIDs}

	var resp BatchMatchResponse
	if err := c.postJSON(ctx, "/api/batch/match-patients", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats returns implementation-defined backend statistics.
func (c *Client) Stats(ctx context.Context) (map[string]interface{}, error) {
	var stats map[string]interface{}
	if err := c.getJSON(ctx, "/api/stats", &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// ClearRemoteConversation clears the backend pipeline's memory. This is
// distinct from deleting local conversations.
func (c *Client) ClearRemoteConversation(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.postJSON(ctx, "/api/conversation/clear", struct{}{}, &resp)
}

// TrialDetails fetches implementation-defined detail for one trial.
func (c *Client) TrialDetails(ctx context.Context, id string) (map[string]interface{}, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("trial id must not be empty")
	}

	var details map[string]interface{}
	if err := c.getJSON(ctx, "/api/trials/"+url.PathEscape(id), &details); err != nil {
		return nil, err
	}
	return details, nil
}

// ==========================
// Transport helpers
// ==========================

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return apperrors.NewTransportError(err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return apperrors.NewTransportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		// Connection failures, DNS errors and timeouts all land here.
		return apperrors.NewTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewUpstreamError(resp.StatusCode, fmt.Sprintf("malformed response body: %v", err))
	}

	return nil
}

// decodeError extracts a structured error body when the backend sends one,
// falling back to the raw status text.
func (c *Client) decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	message := http.StatusText(resp.StatusCode)
	var payload errorResponsePayload
	if err := json.Unmarshal(body, &payload); err == nil {
		if text := payload.text(); text != "" {
			message = text
		}
	}

	c.logger.Warn("backend returned error status", map[string]interface{}{
		"status":  resp.StatusCode,
		"path":    resp.Request.URL.Path,
		"message": message,
	})

	return apperrors.NewUpstreamError(resp.StatusCode, message)
}
