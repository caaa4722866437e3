// internal/llmclient/cua_client.go
package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

const defaultCUAModel = "computer-use-preview"

// -- Responses API Request/Response Structures (Internal to this file) --

type computerTool struct {
	Type          string `json:"type"`
	DisplayWidth  int    `json:"display_width"`
	DisplayHeight int    `json:"display_height"`
	Environment   string `json:"environment"`
}

type responsesRequest struct {
	Model      string         `json:"model"`
	Input      []schemas.Item `json:"input"`
	Tools      []computerTool `json:"tools"`
	Truncation string         `json:"truncation"`
}

type responsesResult struct {
	ID     string         `json:"id"`
	Output []schemas.Item `json:"output"`
	Error  *gatewayError  `json:"error"`
}

type gatewayError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// CUAClient drives the computer use preview models behind the /responses
// endpoint. The transcript goes up verbatim, the model's new items come
// back; the tool declaration tells the model what screen it is looking at.
type CUAClient struct {
	cfg            config.GatewayConfig
	viewportWidth  int
	viewportHeight int
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *zap.Logger
}

// NewCUAClient initializes the client.
func NewCUAClient(cfg config.GatewayConfig, viewportWidth, viewportHeight int, logger *zap.Logger) (*CUAClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultCUAModel
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &CUAClient{
		cfg:            cfg,
		viewportWidth:  viewportWidth,
		viewportHeight: viewportHeight,
		httpClient: &http.Client{
			Transport: newGatewayTransport(cfg, logger),
		},
		limiter: limiter,
		logger:  logger.Named("gateway.cua"),
	}, nil
}

// Propose sends the transcript and returns the items the model appended.
func (c *CUAClient) Propose(ctx context.Context, transcript []schemas.Item) ([]schemas.Item, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	payload := responsesRequest{
		Model: c.cfg.Model,
		Input: transcript,
		Tools: []computerTool{{
			Type:          "computer-preview",
			DisplayWidth:  c.viewportWidth,
			DisplayHeight: c.viewportHeight,
			Environment:   c.cfg.Environment,
		}},
		Truncation: "auto",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/responses"
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		// Our own deadline firing is a gateway timeout; the caller going
		// away is not.
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrGatewayTimeout, c.cfg.RequestTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrGateway, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Gateway returned error status.",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(respBody)),
		)
		return nil, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}

	var result responsesResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: decoding response payload: %v", ErrGateway, err)
	}
	if result.Error != nil && result.Error.Message != "" {
		return nil, fmt.Errorf("%w: %s (code %s)", ErrGateway, result.Error.Message, result.Error.Code)
	}
	if len(result.Output) == 0 {
		return nil, fmt.Errorf("%w: no output from model", ErrGateway)
	}

	c.logger.Debug("Gateway round trip complete.",
		zap.Duration("duration", duration),
		zap.Int("input_items", len(transcript)),
		zap.Int("output_items", len(result.Output)),
		zap.String("response_id", result.ID),
	)

	return result.Output, nil
}

// Close releases idle connections.
func (c *CUAClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
