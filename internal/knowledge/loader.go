// Package knowledge loads the static guide document embedded verbatim into
// the system prompt. HTTP sources are fetched once at init; file sources can
// additionally be watched and reloaded on change.
package knowledge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Loader holds the current knowledge document content.
type Loader struct {
	source string
	watch  bool
	logger zerolog.Logger
	client *http.Client

	mu      sync.RWMutex
	content string

	watcher *fsnotify.Watcher
}

// NewLoader creates a loader for the given source (HTTP(S) URL or file path).
func NewLoader(logger zerolog.Logger, source string, watch bool) *Loader {
	return &Loader{
		source: source,
		watch:  watch,
		logger: logger.With().Str("component", "knowledge").Logger(),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Load fetches the document. A missing or failing source is non-fatal: the
// guide runs with an empty knowledge section, matching kiosk behavior.
func (l *Loader) Load(ctx context.Context) error {
	content, err := l.fetch(ctx)
	if err != nil {
		l.logger.Error().Err(err).Str("source", l.source).Msg("Failed to load knowledge document")
		l.setContent("")
		return err
	}

	l.setContent(content)
	l.logger.Info().Str("source", l.source).Int("bytes", len(content)).Msg("Knowledge document loaded")

	if l.watch && !isURL(l.source) {
		if err := l.startWatch(); err != nil {
			l.logger.Warn().Err(err).Msg("Document watch unavailable")
		}
	}
	return nil
}

func (l *Loader) fetch(ctx context.Context) (string, error) {
	if isURL(l.source) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.source, nil)
		if err != nil {
			return "", err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("fetch document: status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	data, err := os.ReadFile(l.source)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *Loader) startWatch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(l.source); err != nil {
		watcher.Close()
		return err
	}
	l.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				data, err := os.ReadFile(l.source)
				if err != nil {
					l.logger.Warn().Err(err).Msg("Document reload failed")
					continue
				}
				l.setContent(string(data))
				l.logger.Info().Int("bytes", len(data)).Msg("Knowledge document reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn().Err(err).Msg("Document watcher error")
			}
		}
	}()
	return nil
}

// Content returns the current document text.
func (l *Loader) Content() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.content
}

func (l *Loader) setContent(content string) {
	l.mu.Lock()
	l.content = content
	l.mu.Unlock()
}

// Close stops the file watcher, if any.
func (l *Loader) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
