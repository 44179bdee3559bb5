package classifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/MLeys/hotdog-classifier/internal/logging"
)

const classifyPrompt = "Does this image contain a hotdog? Please respond with only 'Hotdog' or 'Not Hotdog'."

const maxAnswerTokens = 50

// OpenRouterConfig carries the settings needed to reach the model API.
type OpenRouterConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Referrer string
}

// OpenRouter classifies images through an OpenAI-compatible vision model.
type OpenRouter struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

// NewOpenRouter builds the model client. The referrer header is what
// OpenRouter uses to attribute traffic.
func NewOpenRouter(cfg OpenRouterConfig, logger *zap.Logger) *OpenRouter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Referrer != "" {
		h := http.Header{}
		h.Set("HTTP-Referer", cfg.Referrer)
		clientCfg.HTTPClient = &http.Client{Transport: headerTransport{rt: http.DefaultTransport, headers: h}}
	}
	return &OpenRouter{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger.Named("classifier"),
	}
}

// Classify asks the vision model whether the image contains a hotdog.
func (c *OpenRouter) Classify(ctx context.Context, image []byte) (*Verdict, error) {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxAnswerTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: classifyPrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
						},
					},
				},
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, logging.NewOperationError("classifier.chat_completion", "", err)
	}
	if len(resp.Choices) == 0 {
		return nil, logging.NewOperationError("classifier.chat_completion", "", fmt.Errorf("model returned no choices"))
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	answer := strings.ToLower(raw)
	isHotdog := strings.Contains(answer, "hotdog") && !strings.Contains(answer, "not")

	c.logger.Debug("classification answer", zap.String("answer", raw), zap.Bool("is_hotdog", isHotdog))

	verdict := &Verdict{Label: LabelNotHotdog, IsHotdog: isHotdog}
	if isHotdog {
		verdict.Label = LabelHotdog
	}
	// Anything beyond the bare yes/no answer is worth showing to the user.
	if len(strings.Fields(raw)) > 2 {
		verdict.Description = raw
	}
	return verdict, nil
}

// Ping verifies API connectivity by listing available models.
func (c *OpenRouter) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return logging.NewOperationError("classifier.ping", "", err)
	}
	return nil
}
