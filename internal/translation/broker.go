// Package translation answers single-word translation requests.
package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/at-ishikawa/wordbroker/internal/cache"
	"github.com/at-ishikawa/wordbroker/internal/cascade"
	"github.com/at-ishikawa/wordbroker/internal/inference"
)

// ErrorPrefix starts every tagged error string sent to callers
const ErrorPrefix = "["

type Cascade interface {
	Run(ctx context.Context, apiKey string, prompt inference.Prompt) (string, error)
}

type Cache interface {
	Get(ctx context.Context, word string) (cache.Entry, bool, error)
	Put(ctx context.Context, word, translated string) error
}

type Fallback interface {
	Translate(ctx context.Context, word string) (string, error)
}

type Config struct {
	APIKey         string
	SourceLanguage string
	TargetLanguage string
	Temperature    float32
}

// Result is what a translation request resolved to.
// Translated carries a tagged error string when Failed is set.
type Result struct {
	Translated string
	Failed     bool
	CacheHit   bool
}

type Broker struct {
	config   Config
	cascade  Cascade
	cache    Cache
	fallback Fallback
}

func NewBroker(config Config, cascade Cascade, cache Cache, fallback Fallback) *Broker {
	return &Broker{
		config:   config,
		cascade:  cascade,
		cache:    cache,
		fallback: fallback,
	}
}

// IsTagged reports whether text is an in-band error string
func IsTagged(text string) bool {
	return strings.HasPrefix(text, ErrorPrefix)
}

func (b *Broker) Translate(ctx context.Context, word string) Result {
	word = strings.TrimSpace(word)
	if word == "" {
		return Result{}
	}
	logger := slog.Default()

	entry, found, err := b.cache.Get(ctx, word)
	if err != nil {
		logger.WarnContext(ctx, "cache lookup failed", "word", word, "error", err)
	} else if found {
		logger.DebugContext(ctx, "cache hit", "word", word)
		return Result{Translated: entry.Translated, CacheHit: true}
	}

	translated, err := b.cascade.Run(ctx, b.config.APIKey, b.prompt(word))
	if err != nil {
		// the fallback only runs for an exhausted cascade on a live request
		var exhausted *cascade.ExhaustedError
		if ctxErr := ctx.Err(); ctxErr != nil || !errors.As(err, &exhausted) {
			logger.WarnContext(ctx, "translation aborted before the fallback", "word", word, "error", err)
			return Result{
				Translated: fmt.Sprintf("[Error: Translation aborted - %s]", err.Error()),
				Failed:     true,
			}
		}
		logger.WarnContext(ctx, "all models failed, calling the fallback", "word", word, "error", err)
		translated, err = b.fallbackTranslate(ctx, word, err)
		if err != nil {
			logger.ErrorContext(ctx, "translation failed", "word", word, "error", err)
			return Result{
				Translated: fmt.Sprintf("[Error: All models & Fallback failed. Last: %s]", err.Error()),
				Failed:     true,
			}
		}
	}

	if IsTagged(translated) {
		return Result{Translated: translated, Failed: true}
	}
	if err := b.cache.Put(ctx, word, translated); err != nil {
		logger.WarnContext(ctx, "cache store failed", "word", word, "error", err)
	}
	return Result{Translated: translated}
}

func (b *Broker) fallbackTranslate(ctx context.Context, word string, cascadeErr error) (string, error) {
	last := cascadeErr
	var exhausted *cascade.ExhaustedError
	if errors.As(cascadeErr, &exhausted) && exhausted.Last != nil {
		last = exhausted.Last
	}

	translated, err := b.fallback.Translate(ctx, word)
	if err != nil {
		return "", fmt.Errorf("%s | %w", last.Error(), err)
	}
	return translated, nil
}

var languageNames = map[string]string{
	"de":    "German",
	"en":    "English",
	"es":    "Spanish",
	"fr":    "French",
	"it":    "Italian",
	"ja":    "Japanese",
	"ko":    "Korean",
	"pt":    "Portuguese",
	"ru":    "Russian",
	"zh":    "Simplified Chinese",
	"zh-TW": "Traditional Chinese",
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

func (b *Broker) prompt(word string) inference.Prompt {
	return inference.Prompt{
		Text: fmt.Sprintf(`You are a %[1]s-%[2]s dictionary.
Translate the %[1]s word or phrase below into %[2]s.
Reply with the translation only, without explanations, quotes or pronunciation.
Prefer the most common sense of the word.
Do not transliterate when a native %[2]s term exists.

%[3]s`, languageName(b.config.SourceLanguage), languageName(b.config.TargetLanguage), word),
		Temperature: b.config.Temperature,
	}
}
