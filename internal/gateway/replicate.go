package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nicekate/storylab/internal/core"
)

const apiPredictions = "/v1/predictions"

// jobState tracks the asynchronous narration job through its lifecycle.
type jobState int

const (
	jobSubmitted jobState = iota
	jobPolling
	jobSucceeded
	jobFailed
	jobTimedOut
)

// Terminal status strings reported by the provider.
const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusCanceled  = "canceled"
)

// ReplicateClient calls the asynchronous narration provider. Synthesize
// submits a prediction, polls its status URL at a fixed interval until a
// terminal state, then downloads the resulting audio over a follow-up
// transfer.
type ReplicateClient struct {
	httpClient   *http.Client
	baseURL      string
	apiToken     string
	modelVersion string
	speed        float64
	pollInterval time.Duration
	maxAttempts  int
}

type predictionInput struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output string `json:"output"`
	Error  string `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// NewReplicateClient creates a client for the asynchronous narration
// provider with a bounded polling budget.
func NewReplicateClient(
	baseURL, apiToken, modelVersion string,
	speed float64,
	pollInterval time.Duration,
	maxAttempts int,
) *ReplicateClient {
	return &ReplicateClient{
		httpClient:   &http.Client{Timeout: DefaultHTTPTimeout},
		baseURL:      baseURL,
		apiToken:     apiToken,
		modelVersion: modelVersion,
		speed:        speed,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Synthesize generates narration audio for text using the given voice
// preset. It blocks until the job reaches a terminal state or the polling
// budget is exhausted.
func (c *ReplicateClient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", core.ErrInvalidInput)
	}

	if c.apiToken == "" {
		return nil, fmt.Errorf("%w: REPLICATE_API_TOKEN", core.ErrMissingConfiguration)
	}

	job, err := c.submit(ctx, text, voice)
	if err != nil {
		return nil, err
	}

	job, state, err := c.pollUntilTerminal(ctx, job)
	if err != nil {
		return nil, err
	}

	switch state {
	case jobSucceeded:
		return c.download(ctx, job.Output)
	case jobFailed:
		return nil, fmt.Errorf("%w: narration job failed: %s", core.ErrUpstream, job.Error)
	case jobTimedOut:
		return nil, fmt.Errorf(
			"%w: narration job %s not terminal after %d attempts",
			core.ErrPollingTimedOut,
			job.ID,
			c.maxAttempts,
		)
	default:
		return nil, fmt.Errorf("%w: narration job in unexpected state", core.ErrInvalidResponse)
	}
}

func (c *ReplicateClient) submit(ctx context.Context, text, voice string) (prediction, error) {
	requestBody, err := json.Marshal(predictionRequest{
		Version: c.modelVersion,
		Input: predictionInput{
			Text:  text,
			Voice: voice,
			Speed: c.speed,
		},
	})
	if err != nil {
		return prediction{}, fmt.Errorf("failed to marshal prediction request: %w", err)
	}

	url := c.baseURL + apiPredictions

	job, err := c.doPredictionRequest(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return prediction{}, err
	}

	if job.ID == "" {
		return prediction{}, fmt.Errorf(
			"%w: prediction response carries no job id",
			core.ErrInvalidResponse,
		)
	}

	return job, nil
}

// pollUntilTerminal drives the Submitted -> Polling -> terminal state
// machine. Each attempt waits one poll interval, then fetches the job
// status; the attempt budget bounds the total wait.
func (c *ReplicateClient) pollUntilTerminal(
	ctx context.Context,
	job prediction,
) (prediction, jobState, error) {
	state := jobSubmitted

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if terminal, terminalState := terminalStateOf(job.Status); terminal {
			return job, terminalState, nil
		}

		state = jobPolling

		select {
		case <-ctx.Done():
			return job, state, fmt.Errorf("narration polling canceled: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}

		statusURL := job.URLs.Get
		if statusURL == "" {
			statusURL = fmt.Sprintf("%s%s/%s", c.baseURL, apiPredictions, job.ID)
		}

		refreshed, err := c.doPredictionRequest(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return job, state, err
		}

		job = refreshed
	}

	return job, jobTimedOut, nil
}

func terminalStateOf(status string) (bool, jobState) {
	switch status {
	case statusSucceeded:
		return true, jobSucceeded
	case statusFailed, statusCanceled:
		return true, jobFailed
	default:
		return false, jobPolling
	}
}

func (c *ReplicateClient) doPredictionRequest(
	ctx context.Context,
	method, url string,
	body io.Reader,
) (prediction, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return prediction{}, fmt.Errorf("failed to create prediction request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set(headerContentType, contentTypeJSON)
	}

	httpReq.Header.Set(headerAuthorization, "Token "+c.apiToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return prediction{}, fmt.Errorf(
			"%w: prediction request to %s failed: %w",
			core.ErrUpstream,
			url,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)

		return prediction{}, fmt.Errorf(
			"%w: prediction endpoint returned %s: %s",
			core.ErrUpstream,
			resp.Status,
			string(respBody),
		)
	}

	var job prediction

	err = json.NewDecoder(resp.Body).Decode(&job)
	if err != nil {
		return prediction{}, fmt.Errorf(
			"%w: failed to decode prediction response: %w",
			core.ErrInvalidResponse,
			err,
		)
	}

	return job, nil
}

// download fetches the finished job's audio output.
func (c *ReplicateClient) download(ctx context.Context, outputURL string) ([]byte, error) {
	if outputURL == "" {
		return nil, fmt.Errorf("%w: succeeded job carries no output URL", core.ErrInvalidResponse)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, outputURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio download request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: audio download failed: %w", core.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"%w: audio download returned %s",
			core.ErrUpstream,
			resp.Status,
		)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded audio: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: downloaded audio is empty", core.ErrInvalidResponse)
	}

	return audioData, nil
}
