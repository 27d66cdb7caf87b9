package common

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/pagespeed-ai/models"
)

var (
	markdownLinkPattern = regexp.MustCompile(`^\[.*?\]\((https?://[^\)]+)\)$`)
	// Must start with http:// or https:// and have a plain host; path, query and
	// fragment are free-form.
	urlPattern = regexp.MustCompile(`^https?://[a-zA-Z0-9][-a-zA-Z0-9.]*[a-zA-Z0-9](:[0-9]+)?(/[^\s]*)?$`)
)

// ErrNoURL is returned when a command is invoked without its URL argument.
var ErrNoURL = errors.New("URL required")

// NewLogger builds the JSON logger every command writes to stderr.
// quiet wins over verbose.
func NewLogger(quiet, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	switch {
	case quiet:
		logLevel = slog.LevelError
	case verbose:
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// Logger builds the logger from the global --quiet and --verbose flags.
func Logger(c *cli.Context) *slog.Logger {
	return NewLogger(c.Bool("quiet"), c.Bool("verbose"))
}

// LoadConfig reads --config (or pagespeed.yaml when present) and applies the
// global flag overrides on top of it.
func LoadConfig(c *cli.Context) (*models.Config, error) {
	path := c.String("config")
	if path == "" {
		path = models.DefaultConfigFile
	}
	cfg, err := models.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if c.IsSet("output-dir") {
		cfg.OutputDir = c.String("output-dir")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// URLArg returns the sanitized, validated first positional argument.
func URLArg(c *cli.Context) (string, error) {
	if c.NArg() == 0 {
		return "", fmt.Errorf("%w\nUsage: pagespeed-ai %s <url>", ErrNoURL, c.Command.Name)
	}
	return ValidateURL(c.Args().First())
}

// ValidateURL sanitizes rawURL and rejects it when it is still not a usable
// http(s) URL.
func ValidateURL(rawURL string) (string, error) {
	valid, invalid := SanitizeAndValidateURLs([]string{rawURL})
	if len(invalid) > 0 || len(valid) == 0 {
		return "", fmt.Errorf("invalid URL: %q", rawURL)
	}
	return valid[0], nil
}

// SanitizeURL performs basic cleanup on URLs to handle common copy-paste issues.
// Removes whitespace, trailing punctuation and markdown artifacts.
func SanitizeURL(rawURL string) string {
	cleaned := strings.TrimSpace(rawURL)

	// [text](url) -> url
	if matches := markdownLinkPattern.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = matches[1]
	}

	// "https://example.com," -> "https://example.com"
	// "(https://example.com)" -> "https://example.com"
	// Repeat until stable so mixed runs like `";` are fully removed.
	trailingChars := []string{",", ".", ")", "}", "]", "\"", "'", ">", ";"}
	leadingChars := []string{"(", "[", "<", "\"", "'"}
	for {
		before := cleaned
		for _, char := range trailingChars {
			cleaned = strings.TrimSuffix(cleaned, char)
		}
		for _, char := range leadingChars {
			cleaned = strings.TrimPrefix(cleaned, char)
		}
		cleaned = strings.TrimSpace(cleaned)
		if cleaned == before {
			return cleaned
		}
	}
}

// SanitizeAndValidateURLs sanitizes all URLs and returns (sanitized URLs, invalid URLs).
// Invalid URLs are those that fail validation even after sanitization.
func SanitizeAndValidateURLs(urls []string) ([]string, []string) {
	sanitized := make([]string, 0, len(urls))
	var invalidURLs []string

	for _, rawURL := range urls {
		cleaned := SanitizeURL(rawURL)

		// Literal spaces must be pre-encoded as %20
		if cleaned == "" || strings.Contains(cleaned, " ") || !urlPattern.MatchString(cleaned) {
			invalidURLs = append(invalidURLs, rawURL)
			continue
		}

		parsed, err := url.Parse(cleaned)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			invalidURLs = append(invalidURLs, rawURL)
			continue
		}

		// "https://example.com{}" should fail
		if strings.ContainsAny(parsed.Host, "{}[]<>\"'") {
			invalidURLs = append(invalidURLs, rawURL)
			continue
		}

		sanitized = append(sanitized, cleaned)
	}

	return sanitized, invalidURLs
}
