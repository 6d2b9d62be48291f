package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/logsmith/backend/internal/metrics"
	"github.com/logsmith/backend/pkg/circuitbreaker"
	"github.com/logsmith/backend/pkg/logger"
	"github.com/logsmith/backend/pkg/retry"
	"github.com/logsmith/backend/pkg/utils"
)

const systemPrompt = `You are a log parsing expert. Given sample log lines from one log source, produce a single Go RE2 regular expression with named capture groups that extracts the structured fields of the line.

Rules:
- Use (?P<name>...) named groups only; every group must be named.
- The expression must match complete lines from this source.
- Prefer generic sub-expressions (\S+, \d+, [^]]+) over literal values that vary between lines.
- Return ONLY the regular expression, no explanation, no code fences.`

// PatternCache is the optional candidate cache in front of the model.
type PatternCache interface {
	GetPattern(ctx context.Context, sampleHash string) (string, bool, error)
	SetPattern(ctx context.Context, sampleHash, pattern string, ttl time.Duration) error
}

type OpenAIOracle struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cache       PatternCache
	cacheTTL    time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewOpenAIOracle(apiKey, model string, temperature float32, maxTokens, timeoutSec int, cache PatternCache, cacheTTL time.Duration) *OpenAIOracle {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.New("oracle", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("OpenAI pattern oracle initialized", zap.String("model", model))

	return &OpenAIOracle{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cache:       cache,
		cacheTTL:    cacheTTL,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (o *OpenAIOracle) ProposePattern(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	// Retries carry failure context, so only first attempts are cacheable.
	cacheKey := ""
	if o.cache != nil && req.Failure == nil {
		cacheKey = fmt.Sprintf("%s:%s", req.Group, utils.HashLines(req.Group, req.Samples))
		if cached, ok, err := o.cache.GetPattern(ctx, cacheKey); err == nil && ok {
			metrics.CacheHits.WithLabelValues("pattern").Inc()
			return cached, nil
		} else if err != nil {
			logger.Warn("Pattern cache lookup failed", zap.Error(err))
		} else {
			metrics.CacheMisses.WithLabelValues("pattern").Inc()
		}
	}

	var content string

	err := o.cb.Execute(ctx, func() error {
		return retry.Do(ctx, o.retryConfig, func() error {
			resp, err := o.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model: o.model,
					Messages: []openai.ChatCompletionMessage{
						{
							Role:    openai.ChatMessageRoleSystem,
							Content: systemPrompt,
						},
						{
							Role:    openai.ChatMessageRoleUser,
							Content: buildUserPrompt(req),
						},
					},
					Temperature: o.temperature,
					MaxTokens:   o.maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return retry.Permanent(fmt.Errorf("empty completion response"))
			}

			logger.Debug("Oracle completion generated",
				zap.String("group", req.Group),
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		metrics.OracleCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	pattern := ExtractPattern(content)
	if pattern == "" {
		metrics.OracleCalls.WithLabelValues("malformed").Inc()
		return "", fmt.Errorf("%w: malformed response", ErrUnavailable)
	}

	metrics.OracleCalls.WithLabelValues("ok").Inc()

	if o.cache != nil && cacheKey != "" {
		if err := o.cache.SetPattern(ctx, cacheKey, pattern, o.cacheTTL); err != nil {
			logger.Warn("Failed to cache pattern", zap.Error(err))
		}
	}

	return pattern, nil
}

func buildUserPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Log source: %s\n\nSample lines:\n", req.Group)
	for _, line := range req.Samples {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if req.Failure != nil {
		b.WriteString("\nA previous attempt was rejected.\n")
		if req.Failure.Pattern != "" {
			fmt.Fprintf(&b, "Rejected pattern: %s\n", req.Failure.Pattern)
		}
		if req.Failure.SyntaxError != "" {
			fmt.Fprintf(&b, "It failed to compile: %s\nProduce a syntactically valid expression.\n", req.Failure.SyntaxError)
		} else {
			fmt.Fprintf(&b, "It matched only %.0f%% of a validation sample. Produce a more general expression.\n", req.Failure.Score*100)
		}
	}

	b.WriteString("\nRegular expression:")
	return b.String()
}

// ExtractPattern pulls the regex out of a model response, tolerating code
// fences and surrounding prose.
func ExtractPattern(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		if nl := strings.Index(rest, "\n"); nl >= 0 && !strings.Contains(rest[:nl], "`") {
			// Language tag line, e.g. ```regex
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		content = rest
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "`")
		if line != "" {
			return line
		}
	}

	return ""
}
