package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"verigate/internal/proof"
)

var providerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "verigate_provider_call_duration_seconds",
	Help:    "Latency of calls to the external verification provider",
	Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
}, []string{"method", "outcome"})

// HTTPConfig configures the HTTP adapter.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	// PropagationWindow is how long after creation a 404 on a status check
	// is attributed to the provider's sync lag and reported as pending.
	PropagationWindow time.Duration
	RequestTimeout    time.Duration
}

// HTTPClient talks JSON over REST to the verification provider.
type HTTPClient struct {
	cfg   HTTPConfig
	httpc *http.Client

	// createdAt tracks operations created through this client so 404s
	// inside the propagation window can be downgraded to pending.
	mu        sync.Mutex
	createdAt map[string]time.Time
}

// NewHTTPClient constructs the provider adapter.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.PropagationWindow <= 0 {
		cfg.PropagationWindow = 30 * time.Second
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		cfg:       cfg,
		httpc:     &http.Client{Timeout: timeout},
		createdAt: make(map[string]time.Time),
	}
}

type createOperationRequest struct {
	AccountID string `json:"accountId"`
	Purpose   string `json:"purpose"`
	Policy    Policy `json:"policy"`
}

type createOperationResponse struct {
	OperationID string    `json:"operationId"`
	Secret      string    `json:"secret"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// CreateOperation registers a new verification operation with the provider.
func (c *HTTPClient) CreateOperation(ctx context.Context, userID uuid.UUID, purpose Purpose, policy Policy) (*Operation, error) {
	body, err := json.Marshal(createOperationRequest{
		AccountID: userID.String(),
		Purpose:   string(purpose),
		Policy:    policy,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal create operation request: %w", err)
	}

	var resp createOperationResponse
	if err := c.do(ctx, http.MethodPost, "/operations", bytes.NewReader(body), "create_operation", &resp); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.createdAt[resp.OperationID] = time.Now()
	c.pruneLocked()
	c.mu.Unlock()

	return &Operation{
		OperationID:     resp.OperationID,
		OneTimeSecret:   resp.Secret,
		VerificationURL: resp.URL,
		ExpiresAt:       resp.ExpiresAt,
	}, nil
}

type statusResponse struct {
	State       int        `json:"state"`
	Result      int        `json:"result"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// CheckStatus fetches the current operation status. A 404 for an operation
// still inside its propagation window is the provider's sync lag, not an
// authoritative answer, and maps to a pending status.
func (c *HTTPClient) CheckStatus(ctx context.Context, operationID string) (Status, error) {
	var resp statusResponse
	err := c.do(ctx, http.MethodGet, "/status/"+operationID, nil, "check_status", &resp)
	if err != nil {
		var hard *HardError
		if errors.As(err, &hard) && hard.StatusCode == http.StatusNotFound {
			if c.withinPropagationWindow(operationID) {
				return Status{State: StatePending, Result: ResultNone}, nil
			}
			return Status{}, Transient("operation not visible yet", err)
		}
		return Status{}, err
	}

	if resp.State < int(StatePending) || resp.State > int(StateExpired) {
		return Status{}, Hard(http.StatusOK, fmt.Sprintf("unknown operation state %d", resp.State))
	}
	if resp.Result < int(ResultNone) || resp.Result > int(ResultFailure) {
		return Status{}, Hard(http.StatusOK, fmt.Sprintf("unknown operation result %d", resp.Result))
	}

	return Status{
		State:       State(resp.State),
		Result:      Result(resp.Result),
		CompletedAt: resp.CompletedAt,
	}, nil
}

type proofResponse struct {
	IsLive                     bool    `json:"isLive"`
	SelfieInjectionDetection   string  `json:"selfieInjectionDetection"`
	DocumentInjectionDetection string  `json:"documentInjectionDetection"`
	DocumentExpired            bool    `json:"documentExpired"`
	BarcodeSecurityCheck       string  `json:"barcodeSecurityCheck"`
	MRZOCRMismatch             string  `json:"mrzOcrMismatch"`
	PADResult                  string  `json:"padResult"`
	FaceMatchScore             float64 `json:"faceMatchScore"`
	ConfidenceScore            float64 `json:"confidenceScore"`
}

// GetProof fetches the structured proof payload for a completed login
// operation. A 404 here is always transient: the proof may not have
// propagated yet even when the status already reads completed.
func (c *HTTPClient) GetProof(ctx context.Context, operationID string) (*proof.Result, error) {
	var resp proofResponse
	if err := c.do(ctx, http.MethodGet, "/result/"+operationID, nil, "get_proof", &resp); err != nil {
		var hard *HardError
		if errors.As(err, &hard) && hard.StatusCode == http.StatusNotFound {
			return nil, Transient("proof not available yet", err)
		}
		return nil, err
	}

	return &proof.Result{
		IsLive:                     resp.IsLive,
		SelfieInjectionDetection:   proof.CheckResult(resp.SelfieInjectionDetection),
		DocumentInjectionDetection: proof.CheckResult(resp.DocumentInjectionDetection),
		DocumentExpired:            resp.DocumentExpired,
		BarcodeSecurityCheck:       proof.CheckResult(resp.BarcodeSecurityCheck),
		MRZOCRMismatch:             proof.CheckResult(resp.MRZOCRMismatch),
		PAD:                        proof.PADResult(resp.PADResult),
		FaceMatchScore:             resp.FaceMatchScore,
		ConfidenceScore:            resp.ConfidenceScore,
	}, nil
}

// do executes one provider call and decodes the JSON response into out.
// 5xx and transport failures become transient errors; other non-2xx
// statuses become hard errors.
func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, metric string, out any) error {
	start := time.Now()
	outcome := "error"
	defer func() {
		providerCallDuration.WithLabelValues(metric, outcome).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		outcome = "transient"
		return Transient("provider unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to decode
	case resp.StatusCode >= 500:
		outcome = "transient"
		return Transient(fmt.Sprintf("provider returned %d", resp.StatusCode), nil)
	default:
		outcome = "hard"
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Hard(resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		outcome = "transient"
		return Transient("malformed provider response", err)
	}
	outcome = "ok"
	return nil
}

func (c *HTTPClient) withinPropagationWindow(operationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	created, ok := c.createdAt[operationID]
	return ok && time.Since(created) < c.cfg.PropagationWindow
}

// pruneLocked drops creation timestamps older than the propagation window.
// Callers must hold c.mu.
func (c *HTTPClient) pruneLocked() {
	cutoff := time.Now().Add(-c.cfg.PropagationWindow)
	for id, created := range c.createdAt {
		if created.Before(cutoff) {
			delete(c.createdAt, id)
		}
	}
}
