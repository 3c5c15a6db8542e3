// Package generator asks a hosted language model for exam questions and turns the
// reply into catalog rows. Nothing here touches the database.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gateprep/exam-service/internal/config"
)

const (
	MixedTypes   = "mixed"
	defaultCount = 5
	maxCount     = 50
)

// Generator produces a batch of questions for a subject.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]GeneratedQuestion, error)
}

type Request struct {
	SubjectName  string
	Count        int
	Type         string // MCQ, MSQ, NAT or mixed
	Instructions string
}

// APIError is an error body returned by the model endpoint.
type APIError struct {
	StatusCode int    `json:"code"`
	Message    string `json:"message"`
	Status     string `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error %d (%s): %s", e.StatusCode, e.Status, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

var (
	ErrNotConfigured = errors.New("question generator is not configured")
	ErrEmptyResponse = errors.New("model returned no content")
)

type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewGeminiClient(cfg config.AIConfig, logger *slog.Logger) *GeminiClient {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &GeminiClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: maxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *APIError `json:"error,omitempty"`
}

// Generate calls the model up to maxRetries times with a fixed delay between attempts.
// Only transport failures and retryable API errors are retried.
func (c *GeminiClient) Generate(ctx context.Context, req Request) ([]GeneratedQuestion, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: BuildPrompt(req)}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		text, err := c.call(ctx, body)
		if err == nil {
			questions, parseErr := ParseQuestions(text)
			if parseErr != nil {
				return nil, parseErr
			}
			c.logger.Info("Generated questions",
				"subject", req.SubjectName,
				"count", len(questions),
				"attempt", attempt)
			return questions, nil
		}

		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}

		c.logger.Warn("Question generation failed, retrying",
			"attempt", attempt,
			"max_retries", c.maxRetries,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}

	return nil, fmt.Errorf("question generation failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *GeminiClient) call(ctx context.Context, body []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return "", fmt.Errorf("DNS lookup failed for %s, check network or DNS settings: %w", dnsErr.Name, err)
		}
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read generation response: %w", err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw)), Status: resp.Status}
		}
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}
	if decoded.Error != nil {
		if decoded.Error.StatusCode == 0 {
			decoded.Error.StatusCode = resp.StatusCode
		}
		return "", decoded.Error
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Message: "unexpected status"}
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

// BuildPrompt renders the instruction sent to the model.
func BuildPrompt(req Request) string {
	count := req.Count
	if count <= 0 {
		count = defaultCount
	}
	if count > maxCount {
		count = maxCount
	}
	qType := req.Type
	if qType == "" {
		qType = MixedTypes
	}
	instructions := strings.TrimSpace(req.Instructions)
	if instructions == "" {
		instructions = "Standard GATE level"
	}

	var b strings.Builder
	b.WriteString("You are a specialized GATE Exam Question Generator.\n")
	fmt.Fprintf(&b, "Generate exactly %d questions for the subject %q.\n", count, req.SubjectName)
	fmt.Fprintf(&b, "Type: %s (MCQ, MSQ, NAT).\n", qType)
	fmt.Fprintf(&b, "Difficulty/Instructions: %s.\n\n", instructions)
	b.WriteString("Output MUST be ONLY a valid raw JSON array of objects.\n")
	b.WriteString("Do not include markdown code blocks, backticks or any text before or after the JSON.\n\n")
	b.WriteString("Schema:\n")
	b.WriteString(`- MCQ: { "type": "MCQ", "question", "option1", "option2", "option3", "option4", "correctAns": "option1"|"option2"|"option3"|"option4", "marks", "negativeMarks", "explanation" }` + "\n")
	b.WriteString(`- MSQ: { "type": "MSQ", "question", "option1", "option2", "option3", "option4", "correctAnswers": ["option1", ...], "marks", "explanation" }` + "\n")
	b.WriteString(`- NAT: { "type": "NAT", "question", "correctAnsMin", "correctAnsMax", "marks", "explanation" }` + "\n")
	return b.String()
}

// ParseQuestions decodes the model's text, tolerating a surrounding code fence.
func ParseQuestions(text string) ([]GeneratedQuestion, error) {
	cleaned := stripCodeFence(text)
	if cleaned == "" {
		return nil, ErrEmptyResponse
	}

	var questions []GeneratedQuestion
	if err := json.Unmarshal([]byte(cleaned), &questions); err != nil {
		return nil, fmt.Errorf("model output is not a JSON array of questions: %w", err)
	}
	return questions, nil
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the language tag line, e.g. ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
