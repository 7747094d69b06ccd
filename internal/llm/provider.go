package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lnkbike/crashes/internal/model"
)

// ErrNoSuggestion is returned when the model's answer names no category
var ErrNoSuggestion = errors.New("no category in model response")

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Suggest proposes a curation category for one report. The answer is
	// only ever offered as a default to the human reviewer.
	Suggest(ctx context.Context, req SuggestRequest) (*SuggestResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SuggestRequest contains the input for a category suggestion
type SuggestRequest struct {
	// Report is the crash record to classify
	Report model.Report

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SuggestResponse contains the model's answer
type SuggestResponse struct {
	// Category is the suggested category, always assignable
	Category model.Category

	// Raw is the unprocessed answer text
	Raw string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30 * time.Second,
		MaxTokens: 20,
	}
}

const systemPrompt = "You classify police crash reports involving bicycles. Answer with a single category name and nothing else."

// narrativeLimit keeps prompts small; report narratives rarely exceed it
const narrativeLimit = 4000

// BuildPrompt constructs the default classification prompt
func BuildPrompt(report model.Report) string {
	var sb strings.Builder
	sb.WriteString("Classify where the cyclist was when this crash happened.\n\nCategories:\n")
	for _, c := range model.Categories {
		fmt.Fprintf(&sb, "- %s: %s\n", c, c.Description())
	}

	sb.WriteString("\nReport:\n")
	if report.Location != nil {
		fmt.Fprintf(&sb, "Location: %s\n", *report.Location)
	}
	text := report.ReportText
	if len(text) > narrativeLimit {
		text = text[:narrativeLimit]
	}
	fmt.Fprintf(&sb, "Narrative: %s\n", text)

	sb.WriteString("\nRespond with exactly one of: ")
	names := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		names[i] = string(c)
	}
	sb.WriteString(strings.Join(names, ", "))
	return sb.String()
}

var categoryWordPattern = regexp.MustCompile(`(?i)\b(crosswalk|sidewalk|road|intersection|elsewhere|not[_ ]involved)\b`)

// ParseAnswer extracts the first category named in a model answer
func ParseAnswer(answer string) (model.Category, error) {
	m := categoryWordPattern.FindStringSubmatch(answer)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrNoSuggestion, truncate(answer, 80))
	}
	name := strings.ToLower(strings.ReplaceAll(m[1], " ", "_"))
	return model.ParseCategory(name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return fallback
}

func (c Config) maxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 20
}
