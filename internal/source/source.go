package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	appLog "danceimport/internal/log"
)

// Source retrieves one raw listing payload (HTML or JSON). Retrieval is the
// slow, failure-prone edge of a refresh; everything after it works on the
// returned bytes.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	// Describe names the source for logs without leaking secrets.
	Describe() string
}

// Kind selects a Source implementation.
type Kind string

const (
	KindFile    Kind = "file"
	KindHTTP    Kind = "http"
	KindBrowser Kind = "browser"
)

// Options carries the settings New needs for every kind.
type Options struct {
	Kind         Kind
	Path         string
	URL          string
	CacheDir     string
	WaitSelector string
	Timeout      time.Duration
}

// New builds the Source for opts.Kind.
func New(opts Options) (Source, error) {
	switch opts.Kind {
	case KindFile, "":
		if opts.Path == "" {
			return nil, errors.New("source: file path is required")
		}
		return &FileSource{Path: opts.Path}, nil
	case KindHTTP:
		if opts.URL == "" {
			return nil, errors.New("source: url is required")
		}
		return NewHTTPSource(opts.URL, opts.CacheDir, opts.Timeout), nil
	case KindBrowser:
		if opts.URL == "" {
			return nil, errors.New("source: url is required")
		}
		return &BrowserSource{URL: opts.URL, WaitSelector: opts.WaitSelector, Timeout: opts.Timeout}, nil
	default:
		return nil, fmt.Errorf("source: unknown kind %q", opts.Kind)
	}
}

// FileSource reads a payload saved on disk.
type FileSource struct {
	Path string
}

func (f *FileSource) Fetch(_ context.Context) ([]byte, error) {
	body, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", f.Path, err)
	}
	appLog.Info("source file loaded", "path", f.Path, "bytes", len(body))
	return body, nil
}

func (f *FileSource) Describe() string {
	return "file:" + f.Path
}
