package detector

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/pemistahl/lingua-go"
)

// MinLanguageWords is the shortest text language detection is attempted on.
const MinLanguageWords = 20

// Profile describes what a page is, independent of how fast it loads.
type Profile struct {
	Title              string  `json:"title" yaml:"title"`
	SiteName           string  `json:"site_name,omitempty" yaml:"site_name,omitempty"`
	Author             string  `json:"author,omitempty" yaml:"author,omitempty"`
	Excerpt            string  `json:"excerpt,omitempty" yaml:"excerpt,omitempty"`
	PublishedTime      string  `json:"published_time,omitempty" yaml:"published_time,omitempty"`
	Image              string  `json:"image,omitempty" yaml:"image,omitempty"`
	Favicon            string  `json:"favicon,omitempty" yaml:"favicon,omitempty"`
	Language           string  `json:"language,omitempty" yaml:"language,omitempty"`
	LanguageConfidence float64 `json:"language_confidence,omitempty" yaml:"language_confidence,omitempty"`
	WordCount          int     `json:"word_count" yaml:"word_count"`
}

var (
	languageDetector     lingua.LanguageDetector
	languageDetectorOnce sync.Once
)

// detector builds the language detector once; loading models is expensive.
func detector() lingua.LanguageDetector {
	languageDetectorOnce.Do(func() {
		languageDetector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(
				lingua.English, lingua.French, lingua.German, lingua.Spanish,
				lingua.Italian, lingua.Portuguese, lingua.Dutch, lingua.Russian,
				lingua.Japanese, lingua.Chinese,
			).
			Build()
	})
	return languageDetector
}

// Analyze extracts the main article of a page and profiles it.
func Analyze(rawURL string, html []byte) (*Profile, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	readabilityParser := readability.NewParser()
	article, err := readabilityParser.Parse(bytes.NewReader(html), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract article: %w", err)
	}

	p := &Profile{
		Title:    strings.TrimSpace(article.Title),
		SiteName: article.SiteName,
		Author:   article.Byline,
		Excerpt:  article.Excerpt,
		Image:    article.Image,
		Favicon:  article.Favicon,
	}
	if article.PublishedTime != nil {
		p.PublishedTime = article.PublishedTime.Format("2006-01-02")
	}

	text := articleText(article.Content)
	p.WordCount = len(strings.Fields(text))
	p.Language, p.LanguageConfidence = DetectLanguage(text)

	return p, nil
}

func articleText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	return doc.Text()
}

// DetectLanguage returns the lowercase ISO 639-1 code and confidence for
// text, or "" when the text is too short or unrecognized.
func DetectLanguage(text string) (string, float64) {
	if len(strings.Fields(text)) < MinLanguageWords {
		return "", 0
	}
	d := detector()
	lang, ok := d.DetectLanguageOf(text)
	if !ok {
		return "", 0
	}
	return strings.ToLower(lang.IsoCode639_1().String()), d.ComputeLanguageConfidence(text, lang)
}
