package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Auditor produces a performance report for a URL.
type Auditor interface {
	Audit(ctx context.Context, url string) (*Result, error)
}

// ErrNoBrowser is returned when no Brave or Chrome installation is found.
var ErrNoBrowser = errors.New("no compatible browser found")

// Browser is a located Chromium-based browser.
type Browser struct {
	Name string
	Path string
}

// browserCandidates lists install locations in preference order for goos.
// env looks up environment variables (Windows program file roots).
func browserCandidates(goos string, useBrave bool, env func(string) string) []Browser {
	programFiles := env("PROGRAMFILES")
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}
	programFilesX86 := env("PROGRAMFILES(X86)")
	if programFilesX86 == "" {
		programFilesX86 = `C:\Program Files (x86)`
	}
	winJoin := func(parts ...string) string { return strings.Join(parts, `\`) }

	var out []Browser
	if useBrave {
		switch goos {
		case "darwin":
			out = append(out, Browser{"brave", "/Applications/Brave Browser.app/Contents/MacOS/Brave Browser"})
		case "linux":
			out = append(out, Browser{"brave", "/usr/bin/brave-browser"})
		case "windows":
			out = append(out,
				Browser{"brave", winJoin(programFiles, "BraveSoftware", "Brave-Browser", "Application", "brave.exe")},
				Browser{"brave", winJoin(programFilesX86, "BraveSoftware", "Brave-Browser", "Application", "brave.exe")})
		}
	}
	switch goos {
	case "darwin":
		out = append(out, Browser{"chrome", "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"})
	case "linux":
		out = append(out,
			Browser{"chrome", "/usr/bin/google-chrome"},
			Browser{"chrome", "/usr/bin/chromium-browser"},
			Browser{"chrome", "/usr/bin/chromium"})
	case "windows":
		out = append(out,
			Browser{"chrome", winJoin(programFiles, "Google", "Chrome", "Application", "chrome.exe")},
			Browser{"chrome", winJoin(programFilesX86, "Google", "Chrome", "Application", "chrome.exe")})
	}
	return out
}

// FindBrowser returns the first installed candidate for the running OS.
func FindBrowser(useBrave bool) (Browser, bool) {
	for _, b := range browserCandidates(runtime.GOOS, useBrave, os.Getenv) {
		if _, err := os.Stat(b.Path); err == nil {
			return b, true
		}
	}
	return Browser{}, false
}

// Lighthouse runs the lighthouse CLI against a local browser.
type Lighthouse struct {
	Binary        string // defaults to "lighthouse"
	UseBrave      bool
	ChromePath    string // skips discovery when set
	MockOnFailure bool
	Logger        *slog.Logger
}

func (l *Lighthouse) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.Logger
}

// Args builds the lighthouse command line.
func Args(url, outputPath, chromePath string) []string {
	return []string{
		url,
		"--output=json",
		"--output-path=" + outputPath,
		"--chrome-flags=--headless --no-sandbox --disable-gpu",
		"--only-categories=performance",
		"--chrome-path=" + chromePath,
	}
}

// Audit runs lighthouse for url. With MockOnFailure set, any failure yields
// Mock() instead of an error.
func (l *Lighthouse) Audit(ctx context.Context, url string) (*Result, error) {
	res, err := l.run(ctx, url)
	if err == nil {
		return res, nil
	}
	if l.MockOnFailure && ctx.Err() == nil {
		l.logger().Warn("Lighthouse failed, using mock results", "url", url, "error", err)
		return Mock(), nil
	}
	return nil, err
}

func (l *Lighthouse) run(ctx context.Context, url string) (*Result, error) {
	browser := Browser{Name: "custom", Path: l.ChromePath}
	if browser.Path == "" {
		found, ok := FindBrowser(l.UseBrave)
		if !ok {
			return nil, ErrNoBrowser
		}
		browser = found
	}

	tmp, err := os.CreateTemp("", "lighthouse-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	outputPath := tmp.Name()
	tmp.Close()
	defer os.Remove(outputPath)

	binary := l.Binary
	if binary == "" {
		binary = "lighthouse"
	}

	l.logger().Info("Running Lighthouse audit", "url", url, "browser", browser.Name, "path", browser.Path)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, Args(url, outputPath, browser.Path)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to run lighthouse: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return ReadResult(outputPath)
}

// ReadResult parses a Lighthouse JSON report from disk.
func ReadResult(path string) (*Result, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read lighthouse output: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("lighthouse produced no output")
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse lighthouse output: %w", err)
	}
	return &res, nil
}

// Static always returns the same result; useful for dry runs.
type Static struct {
	Result *Result
}

func (s Static) Audit(ctx context.Context, url string) (*Result, error) {
	if s.Result == nil {
		return Mock(), nil
	}
	return s.Result, nil
}
