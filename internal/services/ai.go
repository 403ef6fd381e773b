package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"google.golang.org/genai"

	"github.com/dealforge/dealforge-backend/internal/platform/envutil"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// AIService wraps the Gemini API for the three model-backed operations in the
// pipeline: financial extraction from uploaded documents, supplemental
// questionnaire question proposals, and artifact content generation.
type AIService interface {
	ExtractFinancials(ctx context.Context, fileName, mimeType string, data []byte) (*ExtractionResult, error)
	ProposeQuestions(ctx context.Context, companyContext string) ([]ProposedQuestion, error)
	GenerateArtifactContent(ctx context.Context, artifactType types.ArtifactType, bundle json.RawMessage) (*ArtifactContent, error)
}

type ExtractionResult struct {
	Fields     types.FinancialFields `json:"fields"`
	Confidence float64               `json:"confidence"`
}

type ProposedQuestion struct {
	Key      string `json:"key"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

type ArtifactContent struct {
	Title    string          `json:"title"`
	Sections json.RawMessage `json:"sections"`
}

type geminiService struct {
	log            *logger.Logger
	client         *genai.Client
	model          string
	maxRetries     int
	baseDelay      time.Duration
	maxDelay       time.Duration
	requestTimeout time.Duration
}

func NewAIService(ctx context.Context, log *logger.Logger) (AIService, error) {
	apiKey := envutil.String("GEMINI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &geminiService{
		log:            log.With("service", "AIService"),
		client:         client,
		model:          envutil.String("GEMINI_MODEL", "gemini-2.5-flash"),
		maxRetries:     envutil.Int("GEMINI_MAX_RETRIES", 3),
		baseDelay:      time.Second,
		maxDelay:       60 * time.Second,
		requestTimeout: envutil.DurationSeconds("GEMINI_TIMEOUT_SECONDS", 120*time.Second),
	}, nil
}

const extractionPrompt = `You are a financial analyst. Extract the figures below from the attached
financial document. Return STRICTLY a single JSON object with this shape:
{
  "fields": {
    "revenue": <number or null>,
    "net_profit": <number or null>,
    "ebitda": <number or null>,
    "total_assets": <number or null>,
    "total_liabilities": <number or null>,
    "cash": <number or null>,
    "equity": <number or null>,
    "operating_expenses": <number or null>,
    "gross_margin": <number or null>,
    "currency": "<ISO currency code or empty>",
    "fiscal_year": <number or 0>
  },
  "confidence": <number between 0 and 1>
}
Use null for any figure the document does not state. Do not guess. Report
confidence honestly: how sure you are the extracted figures are correct.`

func (s *geminiService) ExtractFinancials(ctx context.Context, fileName, mimeType string, data []byte) (*ExtractionResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document %q", fileName)
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(extractionPrompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}

	text, err := s.generate(ctx, contents, genai.Ptr(float32(0.1)))
	if err != nil {
		return nil, fmt.Errorf("extract financials from %q: %w", fileName, err)
	}

	body := jsonBody(text)
	var result ExtractionResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("extract financials from %q: malformed model output: %w", fileName, err)
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return &result, nil
}

const questionsPrompt = `You are preparing an M&A seller questionnaire. Given the company context
below, propose up to 5 company-specific questions that a buyer's advisor
would want answered and that the public data does not cover. Return STRICTLY
a JSON array:
[{"key": "<snake_case_key>", "text": "<question>", "category": "<one of: business, financials, operations, market, legal>"}]

Company context:
%s`

func (s *geminiService) ProposeQuestions(ctx context.Context, companyContext string) ([]ProposedQuestion, error) {
	text, err := s.generate(ctx, genai.Text(fmt.Sprintf(questionsPrompt, companyContext)), genai.Ptr(float32(0.4)))
	if err != nil {
		return nil, fmt.Errorf("propose questions: %w", err)
	}

	var proposals []ProposedQuestion
	if err := json.Unmarshal([]byte(jsonBody(text)), &proposals); err != nil {
		return nil, fmt.Errorf("propose questions: malformed model output: %w", err)
	}

	out := proposals[:0]
	for _, p := range proposals {
		p.Key = strings.TrimSpace(p.Key)
		p.Text = strings.TrimSpace(p.Text)
		if p.Key == "" || p.Text == "" {
			continue
		}
		if p.Category == "" {
			p.Category = "business"
		}
		out = append(out, p)
	}
	return out, nil
}

var artifactPrompts = map[types.ArtifactType]string{
	types.ArtifactTeaser: `Write an anonymous one-page M&A teaser. Do not name the company. Sections:
"headline", "investment_highlights" (array of 4-6 bullets), "business_overview",
"market_opportunity", "transaction_rationale".`,
	types.ArtifactIM: `Write a confidential information memorandum. Sections: "executive_summary",
"company_overview", "products_and_services", "market_analysis",
"financial_overview" (narrative grounded in the extracted figures),
"growth_opportunities", "transaction_overview".`,
	types.ArtifactPitchDeck: `Write pitch deck content as an array of slides. Each slide:
{"title": "...", "bullets": ["..."]}. Cover: opportunity, company, products,
market, financial highlights (grounded in the extracted figures), growth plan,
transaction. 8-12 slides.`,
}

func (s *geminiService) GenerateArtifactContent(ctx context.Context, artifactType types.ArtifactType, bundle json.RawMessage) (*ArtifactContent, error) {
	instructions, ok := artifactPrompts[artifactType]
	if !ok {
		return nil, fmt.Errorf("no prompt for artifact type %q", artifactType)
	}

	prompt := fmt.Sprintf(`You are an M&A advisor drafting marketing materials.
%s

Return STRICTLY a JSON object: {"title": "<document title>", "sections": <the content structure described above>}.
Ground every claim in the consolidated data below; do not invent figures.

Consolidated company data:
%s`, instructions, string(bundle))

	text, err := s.generate(ctx, genai.Text(prompt), genai.Ptr(float32(0.7)))
	if err != nil {
		return nil, fmt.Errorf("generate %s content: %w", artifactType, err)
	}

	body := jsonBody(text)
	title := gjson.Get(body, "title").String()
	sections := gjson.Get(body, "sections")
	if !sections.Exists() {
		return nil, fmt.Errorf("generate %s content: model output missing sections", artifactType)
	}
	return &ArtifactContent{
		Title:    title,
		Sections: json.RawMessage(sections.Raw),
	}, nil
}

func (s *geminiService) generate(ctx context.Context, contents []*genai.Content, temperature *float32) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature:      temperature,
		ResponseMIMEType: "application/json",
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.backoff(attempt)
			s.log.Warn("Gemini request retrying", "attempt", attempt, "max_retries", s.maxRetries, "delay", delay.String())
			select {
			case <-time.After(delay):
			case <-timeoutCtx.Done():
				return "", timeoutCtx.Err()
			}
		}

		result, err := s.client.Models.GenerateContent(timeoutCtx, s.model, contents, cfg)
		if err == nil {
			text := result.Text()
			if strings.TrimSpace(text) == "" {
				return "", fmt.Errorf("empty model response")
			}
			return text, nil
		}
		lastErr = err
		if !isRetryableModelError(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("max retries (%d) exceeded: %w", s.maxRetries, lastErr)
}

func (s *geminiService) backoff(attempt int) time.Duration {
	delay := s.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > s.maxDelay {
		delay = s.maxDelay
	}
	return delay
}

func isRetryableModelError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "context canceled") || strings.Contains(msg, "context deadline exceeded") {
		return false
	}
	if apiErr, ok := err.(genai.APIError); ok {
		return retryableAPICode(apiErr.Code)
	}
	if apiErr, ok := err.(*genai.APIError); ok {
		return retryableAPICode(apiErr.Code)
	}
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF")
}

func retryableAPICode(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// jsonBody strips markdown code fences the model sometimes wraps around its
// JSON despite the response MIME type.
func jsonBody(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	}
	return strings.TrimSpace(t)
}
