// Package recognition extracts text from images, failing over to a backup key when the primary one runs out of quota.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/at-ishikawa/wordbroker/internal/cascade"
	"github.com/at-ishikawa/wordbroker/internal/inference"
	"github.com/at-ishikawa/wordbroker/internal/sidetask"
)

const (
	DefaultDailyLimit = 4000
	// BackupTag is appended to texts produced with the backup key
	BackupTag = " [Backup Key]"

	incrementTaskName = "usage.increment"
	prompt            = `Extract all of the text in this image exactly as written.
Keep the original line breaks and reading order.
Reply with the extracted text only, without any commentary or formatting.
If the image contains no text, reply with [No text found].`
)

var (
	ErrInvalidImage  = errors.New("missing image or mimeType")
	ErrQuotaExceeded = errors.New("daily quota exceeded and no backup key is configured")
)

type Cascade interface {
	Run(ctx context.Context, apiKey string, prompt inference.Prompt) (string, error)
}

type Counter interface {
	Today(ctx context.Context) (int64, error)
	Increment(ctx context.Context) error
}

type SideTasks interface {
	Go(name string, fn sidetask.Task) bool
}

type Config struct {
	PrimaryAPIKey string
	BackupAPIKey  string
	DailyLimit    int64
	Temperature   float32
}

type Image struct {
	Data     []byte
	MIMEType string
}

type Result struct {
	Text   string
	Backup bool
}

// Tagged is the text sent to callers
func (r Result) Tagged() string {
	if r.Backup {
		return r.Text + BackupTag
	}
	return r.Text
}

type Broker struct {
	config    Config
	cascade   Cascade
	counter   Counter
	sideTasks SideTasks
}

func NewBroker(config Config, cascade Cascade, counter Counter, sideTasks SideTasks) *Broker {
	if config.DailyLimit <= 0 {
		config.DailyLimit = DefaultDailyLimit
	}
	return &Broker{
		config:    config,
		cascade:   cascade,
		counter:   counter,
		sideTasks: sideTasks,
	}
}

func (b *Broker) Recognize(ctx context.Context, image Image) (Result, error) {
	if len(image.Data) == 0 || image.MIMEType == "" {
		return Result{}, ErrInvalidImage
	}
	logger := slog.Default()
	p := inference.Prompt{
		Text:        prompt,
		Image:       &inference.Image{Data: image.Data, MIMEType: image.MIMEType},
		Temperature: b.config.Temperature,
	}

	count, err := b.counter.Today(ctx)
	if err != nil {
		logger.WarnContext(ctx, "usage counter read failed", "error", err)
		count = 0
	}
	if count >= b.config.DailyLimit {
		logger.WarnContext(ctx, "daily usage ceiling reached, skipping the primary key",
			"count", count,
			"limit", b.config.DailyLimit,
		)
		if b.config.BackupAPIKey == "" {
			return Result{}, fmt.Errorf("%w: %d of %d used", ErrQuotaExceeded, count, b.config.DailyLimit)
		}
		return b.recognizeWithBackup(ctx, p)
	}

	text, err := b.cascade.Run(ctx, b.config.PrimaryAPIKey, p)
	if err == nil {
		b.sideTasks.Go(incrementTaskName, b.counter.Increment)
		return Result{Text: text}, nil
	}
	if isQuotaFailure(err) && b.config.BackupAPIKey != "" {
		logger.WarnContext(ctx, "primary key hit its quota, retrying with the backup key", "error", err)
		return b.recognizeWithBackup(ctx, p)
	}
	return Result{}, fmt.Errorf("cascade.Run(primary) > %w", err)
}

// isQuotaFailure looks at every model attempt, not only the last one
func isQuotaFailure(err error) bool {
	var exhausted *cascade.ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Any(inference.IsQuotaError)
	}
	return inference.IsQuotaError(err)
}

func (b *Broker) recognizeWithBackup(ctx context.Context, p inference.Prompt) (Result, error) {
	text, err := b.cascade.Run(ctx, b.config.BackupAPIKey, p)
	if err != nil {
		return Result{}, fmt.Errorf("cascade.Run(backup) > %w", err)
	}
	return Result{Text: text, Backup: true}, nil
}
