package artifact_manager

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	DefaultBaseDir    = "implementation-tests"
	DefaultReportsDir = "reports"
	fallbackDomain    = "example-com"
)

// SiteSubdirs are the asset directories created under every site directory.
var SiteSubdirs = []string{"css", "js", "images", "fonts"}

// Manager lays out per-site output directories.
// Example: implementation-tests/www-example-com/css/critical.css
type Manager struct {
	baseDir string
}

func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	return &Manager{baseDir: baseDir}
}

// BaseDir returns the root all site directories live under.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Domain returns a filesystem-safe name for the URL's host, with dots
// replaced by dashes. URLs without a host map to example-com.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return fallbackDomain
	}
	host := strings.ToLower(u.Hostname())
	return strings.ReplaceAll(host, ".", "-")
}

// SiteDir returns the directory holding every artifact for rawURL's site.
func (m *Manager) SiteDir(rawURL string) string {
	return filepath.Join(m.baseDir, Domain(rawURL))
}

// Path returns the location of a named artifact inside the site directory.
func (m *Manager) Path(rawURL, name string) string {
	return filepath.Join(m.SiteDir(rawURL), name)
}

// EnsureSiteDirs creates the site directory and its asset subdirectories.
func (m *Manager) EnsureSiteDirs(rawURL string) (string, error) {
	dir := m.SiteDir(rawURL)
	for _, sub := range SiteSubdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return "", fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}
	return dir, nil
}

// ArtifactName builds a readable, collision-resistant filename for rawURL.
// Example: example_com_blog-1a2b3c4d5e6f.json
func (m *Manager) ArtifactName(rawURL, ext string) (string, error) {
	normalized, err := normalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s%s", sanitizeSlug(rawURL), ShortHash(normalized), ext), nil
}

// normalizeURL creates a canonical representation of a URL for consistent hashing.
func normalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Host = strings.ToLower(u.Host)

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sorted := url.Values{}
		for _, k := range keys {
			for _, v := range params[k] {
				sorted.Add(k, v)
			}
		}
		u.RawQuery = sorted.Encode()
	}

	u.Fragment = ""
	return u.String(), nil
}

// ShortHash returns a 12-char hex digest of s.
func ShortHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", hash[:6])
}

var invalidFilenameChar = regexp.MustCompile(`[^a-zA-Z0-9\-_]+`)

// sanitizeSlug creates a filesystem-safe slug from a URL path.
func sanitizeSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		safe := invalidFilenameChar.ReplaceAllString(rawURL, "_")
		return strings.Trim(safe, "_")
	}

	hostPart := strings.ReplaceAll(u.Host, ".", "_")
	pathPart := strings.TrimPrefix(u.Path, "/")
	pathPart = invalidFilenameChar.ReplaceAllString(pathPart, "_")
	pathPart = strings.Trim(pathPart, "_")

	if pathPart == "" {
		return hostPart
	}
	return fmt.Sprintf("%s_%s", hostPart, pathPart)
}
