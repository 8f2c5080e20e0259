// Package cascade tries an ordered list of models for a number of rounds until one answers.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go"

	"github.com/at-ishikawa/wordbroker/internal/inference"
)

const DefaultRounds = 3

// DefaultBackoffs are the sleeps after the first and the second failed round
var DefaultBackoffs = []time.Duration{2 * time.Second, 4 * time.Second}

type Config struct {
	Models []string
	// Rounds is the total number of passes over Models, the first one included
	Rounds   int
	Backoffs []time.Duration
}

// Attempt is one failed call to one model
type Attempt struct {
	Model string
	Round int
	Err   error
}

// ExhaustedError is returned when every model failed in every round.
// It unwraps to the last provider error.
type ExhaustedError struct {
	Rounds   int
	Attempts []Attempt
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all models failed after %d rounds and %d attempts: %v", e.Rounds, len(e.Attempts), e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Any reports whether match holds for the error of any attempt
func (e *ExhaustedError) Any(match func(error) bool) bool {
	for _, attempt := range e.Attempts {
		if match(attempt.Err) {
			return true
		}
	}
	return e.Last != nil && match(e.Last)
}

type Cascade struct {
	client   inference.Client
	models   []string
	rounds   int
	backoffs []time.Duration
}

func New(client inference.Client, cfg Config) *Cascade {
	rounds := cfg.Rounds
	if rounds <= 0 {
		rounds = DefaultRounds
	}
	backoffs := cfg.Backoffs
	if backoffs == nil {
		backoffs = DefaultBackoffs
	}
	return &Cascade{
		client:   client,
		models:   cfg.Models,
		rounds:   rounds,
		backoffs: backoffs,
	}
}

// Backoff returns the sleep after the given failed round, counted from 0.
// Rounds beyond the schedule reuse its last entry.
func (c *Cascade) Backoff(round int) time.Duration {
	if len(c.backoffs) == 0 {
		return 0
	}
	if round >= len(c.backoffs) {
		return c.backoffs[len(c.backoffs)-1]
	}
	return c.backoffs[round]
}

// Run returns the first non-empty text. Models are called sequentially, in order.
func (c *Cascade) Run(ctx context.Context, apiKey string, prompt inference.Prompt) (string, error) {
	if len(c.models) == 0 {
		return "", errors.New("no models configured")
	}
	logger := slog.Default()

	var (
		text     string
		last     error
		attempts []Attempt
		round    int
	)
	err := retry.Do(
		func() error {
			round++
			for _, model := range c.models {
				if err := ctx.Err(); err != nil {
					return retry.Unrecoverable(err)
				}

				result, err := c.client.Generate(ctx, inference.Request{
					Model:  model,
					APIKey: apiKey,
					Prompt: prompt,
				})
				if err == nil && strings.TrimSpace(result) == "" {
					err = fmt.Errorf("empty response from %s", model)
				}
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return retry.Unrecoverable(ctxErr)
					}
					last = err
					attempts = append(attempts, Attempt{Model: model, Round: round, Err: err})
					logger.DebugContext(ctx, "model attempt failed", "model", model, "round", round, "error", err)
					continue
				}

				text = strings.TrimSpace(result)
				logger.DebugContext(ctx, "model answered", "model", model, "round", round)
				return nil
			}
			return last
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.rounds)),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return c.Backoff(int(n))
		}),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 < c.rounds {
				logger.InfoContext(ctx, "cascade round failed, backing off",
					"round", n+1,
					"backoff", c.Backoff(int(n)),
					"error", err,
				)
			}
		}),
	)
	if err == nil {
		return text, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("cascade aborted after %d rounds > %w", round, ctxErr)
	}
	return "", &ExhaustedError{
		Rounds:   round,
		Attempts: attempts,
		Last:     last,
	}
}
