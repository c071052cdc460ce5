package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/pipeline"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	VideoModel string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is the concrete Remote Generation Gateway over the Gemini REST
// API: generateContent for pose planning, image synthesis and description
// writing, predictLongRunning plus operation polling for video synthesis.
type Client struct {
	mu         sync.RWMutex
	apiKey     string
	baseURL    string
	model      string
	videoModel string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a Gemini client with sane defaults. Callers may
// provide a nil HTTP client; a reusable one with a timeout is created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	videoModel := opts.VideoModel
	if videoModel == "" {
		videoModel = "veo-3.0-generate-001"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		videoModel: videoModel,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// SetAPIKey replaces the credential without rebuilding the client, so a
// rotated key takes effect without a process restart. Safe to call while
// requests are in flight.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = strings.TrimSpace(key)
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount   int    `json:"candidateCount,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

type posePlanPayload struct {
	Poses []string `json:"poses"`
}

// PlanPoses asks the text model for count distinct pose descriptions.
func (c *Client) PlanPoses(ctx context.Context, description string, product *domain.Media, count int) ([]string, error) {
	parts := []geminiPart{{Text: buildPosePlanPrompt(description, count)}}
	if product != nil && !product.IsZero() {
		parts = append(parts, inlinePart(*product))
	}
	payload := geminiGenerateContentRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{ResponseMimeType: "application/json"},
	}

	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, c.generatePath(c.model), payload, &response); err != nil {
		return nil, err
	}

	raw := firstText(response)
	plan, err := parseModelPayload[posePlanPayload](raw)
	if err != nil {
		return nil, fmt.Errorf("malformed model response: %w", err)
	}
	poses := make([]string, 0, len(plan.Poses))
	for _, pose := range plan.Poses {
		if pose = strings.TrimSpace(pose); pose != "" {
			poses = append(poses, pose)
		}
	}
	if len(poses) == 0 {
		return nil, fmt.Errorf("model returned no poses")
	}
	if len(poses) > count {
		poses = poses[:count]
	}
	c.logger.Debug().Int("poses", len(poses)).Str("model", c.model).Msg("genai: pose plan ready")
	return poses, nil
}

// SynthesizeImage renders one image for the prompt, conditioning on the
// optional product and model reference images.
func (c *Client) SynthesizeImage(ctx context.Context, prompt string, product, model *domain.Media) (domain.Media, error) {
	parts := []geminiPart{{Text: prompt}}
	if product != nil && !product.IsZero() {
		parts = append(parts, inlinePart(*product))
	}
	if model != nil && !model.IsZero() {
		parts = append(parts, inlinePart(*model))
	}
	payload := geminiGenerateContentRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{CandidateCount: 1},
	}

	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, c.generatePath(c.model), payload, &response); err != nil {
		return domain.Media{}, err
	}

	for _, candidate := range response.Candidates {
		if reason := blockedFinishReason(candidate.FinishReason); reason != "" {
			return domain.Media{}, fmt.Errorf("blocked by safety policy: %s", reason)
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return domain.Media{}, fmt.Errorf("malformed model response: %v", err)
			}
			mime := part.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			return domain.Media{Data: data, MIME: mime}, nil
		}
	}
	return domain.Media{}, fmt.Errorf("model returned no image")
}

// SynthesizeDescription writes marketing copy for the product image.
func (c *Client) SynthesizeDescription(ctx context.Context, product domain.Media) (string, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: describePrompt}, inlinePart(product)},
		}},
	}
	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, c.generatePath(c.model), payload, &response); err != nil {
		return "", err
	}
	text := strings.TrimSpace(firstText(response))
	if text == "" {
		return "", fmt.Errorf("model returned no description")
	}
	return text, nil
}

func (c *Client) generatePath(model string) string {
	return fmt.Sprintf("/models/%s:generateContent", url.PathEscape(model))
}

// invoke posts a JSON payload and decodes the JSON response, surfacing
// API error bodies in the returned error.
func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	key := c.key()
	if key == "" {
		return domain.ErrCredentialMissing
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	authorize(req, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed model response: %v", err)
	}
	return nil
}

func authorize(req *http.Request, key string) {
	q := req.URL.Query()
	q.Set("key", key)
	req.URL.RawQuery = q.Encode()
}

func (c *Client) decodeError(resp *http.Response) error {
	var apiErr geminiErrorResponse
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		if credentialRejected(resp.StatusCode, apiErr.Error.Status, apiErr.Error.Message) {
			return fmt.Errorf("%w: %s", domain.ErrCredentialMissing, apiErr.Error.Message)
		}
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	if credentialRejected(resp.StatusCode, "", "") {
		return fmt.Errorf("%w: gemini status %d", domain.ErrCredentialMissing, resp.StatusCode)
	}
	if len(data) > 0 {
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return fmt.Errorf("gemini status %d", resp.StatusCode)
}

func credentialRejected(status int, apiStatus, message string) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if status == http.StatusForbidden && (apiStatus == "PERMISSION_DENIED" || apiStatus == "") {
		return true
	}
	return strings.Contains(message, "API_KEY_INVALID") || strings.Contains(apiStatus, "UNAUTHENTICATED")
}

func blockedFinishReason(reason string) string {
	switch strings.ToUpper(strings.TrimSpace(reason)) {
	case "", "STOP", "MAX_TOKENS":
		return ""
	default:
		return reason
	}
}

func inlinePart(m domain.Media) geminiPart {
	mime := m.MIME
	if mime == "" {
		mime = "image/png"
	}
	return geminiPart{InlineData: &geminiInlineData{
		MimeType: mime,
		Data:     base64.StdEncoding.EncodeToString(m.Data),
	}}
}

func firstText(resp geminiGenerateContentResponse) string {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}

const describePrompt = "Write a concise, persuasive product description for the item in this photo, suitable for a commercial listing. Two or three sentences, no headings, plain text."

func buildPosePlanPrompt(description string, count int) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Plan %d distinct model poses for a commercial product photo shoot. ", count)
	sb.WriteString(`Respond strictly with JSON matching this schema: {"poses":string[]}. `)
	sb.WriteString("Each pose is one short sentence describing posture, action and framing. Make the poses noticeably different from each other.")
	if description = strings.TrimSpace(description); description != "" {
		fmt.Fprintf(sb, " The product: %s.", description)
	}
	return sb.String()
}

var _ pipeline.Gateway = (*Client)(nil)
