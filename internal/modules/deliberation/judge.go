package deliberation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/avellar/conviction/internal/domain"
	"github.com/rs/zerolog"
)

const (
	// maxAttempts bounds retries against one judge model
	maxAttempts = 3
	// defaultBaseDelay is the first backoff delay; it doubles per attempt
	defaultBaseDelay = 1 * time.Second
)

var (
	finalVerdictPattern = regexp.MustCompile(`FINAL\s+VERDICT\s*[:\-]?\s*\**\s*(BUY|WATCH|AVOID)`)
	verdictPattern      = regexp.MustCompile(`\b(BUY|WATCH|AVOID)\b`)
)

// JudgeCaller wraps the external judge with retry, backoff, and model
// fallback semantics.
//
// Transient "overloaded/unavailable" failures are retried up to maxAttempts
// with exponential backoff. Any other failure, or retry exhaustion, moves to
// the fallback model. Exhaustion on the fallback is an error scoped to the
// candidate being deliberated, never to the run.
type JudgeCaller struct {
	judge         domain.Judge
	primaryModel  string
	fallbackModel string
	baseDelay     time.Duration
	log           zerolog.Logger
}

// NewJudgeCaller creates a judge caller with the production backoff schedule.
func NewJudgeCaller(judge domain.Judge, primaryModel, fallbackModel string, log zerolog.Logger) *JudgeCaller {
	return &JudgeCaller{
		judge:         judge,
		primaryModel:  primaryModel,
		fallbackModel: fallbackModel,
		baseDelay:     defaultBaseDelay,
		log:           log.With().Str("component", "judge_caller").Logger(),
	}
}

// Deliberate sends the prompt to the primary model, falling back to the
// secondary on any primary failure. Returns the response text and the model
// that produced it.
func (j *JudgeCaller) Deliberate(ctx context.Context, prompt string) (text string, modelUsed string, err error) {
	text, err = j.tryModel(ctx, j.primaryModel, prompt)
	if err == nil {
		return text, j.primaryModel, nil
	}

	j.log.Warn().Err(err).
		Str("primary", j.primaryModel).
		Str("fallback", j.fallbackModel).
		Msg("Primary judge model failed, falling back")

	text, err = j.tryModel(ctx, j.fallbackModel, prompt)
	if err != nil {
		return "", "", fmt.Errorf("judge failed on primary and fallback models: %w", err)
	}

	return text, j.fallbackModel, nil
}

// tryModel calls one model, retrying with exponential backoff on overloaded
// errors only. Any other error returns immediately so the caller can fall
// back without burning the backoff budget.
func (j *JudgeCaller) tryModel(ctx context.Context, model, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		text, err := j.judge.Generate(ctx, model, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrJudgeOverloaded) {
			return "", err
		}

		if attempt < maxAttempts-1 {
			wait := j.baseDelay * time.Duration(1<<uint(attempt)) // exponential backoff
			j.log.Warn().Err(err).
				Str("model", model).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("Judge overloaded, retrying")

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	return "", fmt.Errorf("judge model %s overloaded after %d attempts: %w", model, maxAttempts, lastErr)
}

// ParseVerdict extracts a verdict token from free-text judge output. It
// prefers an explicit "FINAL VERDICT: X" marker, then the first bare token.
// Text with no recognizable token defaults to WATCH - the safe non-action.
func ParseVerdict(text string) domain.Verdict {
	upper := strings.ToUpper(text)

	if m := finalVerdictPattern.FindStringSubmatch(upper); m != nil {
		return domain.Verdict(m[1])
	}
	if m := verdictPattern.FindStringSubmatch(upper); m != nil {
		return domain.Verdict(m[1])
	}

	return domain.VerdictWatch
}
