// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

const (
	defaultGeminiModel = "gemini-3-pro"
	geminiTemperature  = 0.2
)

const geminiPromptFormat = `You control a web browser for the user. Each turn you receive the
conversation so far: the task, the actions already taken, and for every
action an observation with the page URL and a screenshot. The screen is
%d x %d pixels and all coordinates are in that space.

Reply with a single JSON object and nothing else.

To act, reply {"action": {"type": "<type>", ...}} with one of:
  {"type": "click", "x": <int>, "y": <int>, "button": "left"|"right"|"wheel"|"back"|"forward"}
  {"type": "double_click", "x": <int>, "y": <int>}
  {"type": "drag", "path": [{"x": <int>, "y": <int>}, ...]}
  {"type": "keypress", "keys": ["<key>", ...]}
  {"type": "move", "x": <int>, "y": <int>}
  {"type": "screenshot"}
  {"type": "scroll", "x": <int>, "y": <int>, "scroll_x": <int>, "scroll_y": <int>}
  {"type": "type", "text": "<text>"}
  {"type": "wait"}
  {"type": "navigate", "url": "<url>"}
  {"type": "back"}
  {"type": "forward"}

When the task is complete or cannot proceed, reply
{"done": true, "message": "<what you accomplished or found>"}.`

// geminiPlan is the JSON protocol the model is instructed to answer with.
type geminiPlan struct {
	Action  *schemas.Action `json:"action,omitempty"`
	Message string          `json:"message,omitempty"`
	Done    bool            `json:"done,omitempty"`
}

// GeminiClient plans browser actions through the Google GenAI API. Gemini
// has no native computer use tool contract, so the transcript is rendered
// into a multimodal conversation and the reply is parsed back out of a
// constrained JSON protocol.
type GeminiClient struct {
	cfg          config.GatewayConfig
	client       *genai.Client
	httpClient   *http.Client
	limiter      *rate.Limiter
	logger       *zap.Logger
	systemPrompt string
}

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.GatewayConfig, viewportWidth, viewportHeight int, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	httpClient := &http.Client{
		Transport: newGatewayTransport(cfg, logger),
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &GeminiClient{
		cfg:          cfg,
		client:       client,
		httpClient:   httpClient,
		limiter:      limiter,
		logger:       logger.Named("gateway.gemini"),
		systemPrompt: fmt.Sprintf(geminiPromptFormat, viewportWidth, viewportHeight),
	}, nil
}

// Propose sends the transcript and returns the items the model appended.
func (c *GeminiClient) Propose(ctx context.Context, transcript []schemas.Item) ([]schemas.Item, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	contents, err := buildGeminiContents(transcript)
	if err != nil {
		return nil, fmt.Errorf("failed to render transcript: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: c.systemPrompt}},
		},
		Temperature:      genai.Ptr[float32](geminiTemperature),
		ResponseMIMEType: "application/json",
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(reqCtx, c.cfg.Model, contents, genCfg)
	duration := time.Since(start)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrGatewayTimeout, c.cfg.RequestTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: gemini returned no candidates", ErrGateway)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: gemini returned empty content (finish reason %s)", ErrGateway, candidate.FinishReason)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}

	items := parseGeminiPlan(text.String())
	c.logger.Debug("Gateway round trip complete.",
		zap.Duration("duration", duration),
		zap.Int("input_items", len(transcript)),
		zap.Int("output_items", len(items)),
	)
	return items, nil
}

// Close releases idle connections.
func (c *GeminiClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// buildGeminiContents renders transcript items into the GenAI conversation
// shape. The model's own past computer calls are replayed as model turns in
// the same JSON protocol it answers with, so the conversation stays
// symmetric. Reasoning items are provider private and dropped.
func buildGeminiContents(transcript []schemas.Item) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(transcript))

	for _, item := range transcript {
		switch item.Type {
		case schemas.ItemMessage:
			text := item.MessageText()
			if text == "" {
				continue
			}
			role := "user"
			if item.Role == schemas.RoleAssistant {
				role = "model"
			}
			contents = append(contents, &genai.Content{
				Role:  role,
				Parts: []*genai.Part{{Text: text}},
			})

		case schemas.ItemComputerCall:
			planJSON, err := json.Marshal(geminiPlan{Action: item.Action})
			if err != nil {
				return nil, fmt.Errorf("failed to marshal action for call %s: %w", item.CallID, err)
			}
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: string(planJSON)}},
			})

		case schemas.ItemComputerCallOutput:
			if item.Output == nil {
				continue
			}
			parts := []*genai.Part{
				{Text: fmt.Sprintf("Observation after the last action. Current URL: %s", item.Output.CurrentURL)},
			}
			if item.Output.ImageURL != "" {
				mime, data, err := decodeDataURL(item.Output.ImageURL)
				if err != nil {
					return nil, fmt.Errorf("failed to decode screenshot for call %s: %w", item.CallID, err)
				}
				parts = append(parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: mime, Data: data},
				})
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})

		case schemas.ItemReasoning:
			continue
		}
	}

	return contents, nil
}

// parseGeminiPlan converts the model's JSON reply into transcript items. A
// reply that does not follow the protocol is treated as a final assistant
// message, which ends the session with the text visible to the user.
func parseGeminiPlan(text string) []schemas.Item {
	raw := stripCodeFence(text)

	var plan geminiPlan
	if err := json.Unmarshal([]byte(raw), &plan); err == nil && plan.Action != nil {
		return []schemas.Item{{
			Type:   schemas.ItemComputerCall,
			CallID: fmt.Sprintf("call_%s", uuid.NewString()),
			Action: plan.Action,
		}}
	} else if err == nil && (plan.Done || plan.Message != "") {
		return []schemas.Item{{
			Type: schemas.ItemMessage,
			Role: schemas.RoleAssistant,
			Content: []schemas.ContentPart{
				{Type: schemas.ContentOutputText, Text: plan.Message},
			},
		}}
	}

	return []schemas.Item{{
		Type: schemas.ItemMessage,
		Role: schemas.RoleAssistant,
		Content: []schemas.ContentPart{
			{Type: schemas.ContentOutputText, Text: strings.TrimSpace(text)},
		},
	}}
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeDataURL splits a base64 data URL into its media type and payload.
func decodeDataURL(u string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	mime, encoded, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return mime, data, nil
}
