// Package audit writes the receiver's append-only JSON-lines logs. Three
// files live under the configured data directory: one line per intake, one
// per result callback, one per rejected or failed request. The running
// process never reads them back.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	migrationFile = "migrations.jsonl"
	resultFile    = "results.jsonl"
	errorFile     = "errors.jsonl"

	// MaxBodySnippet caps the raw request body copied into error records.
	MaxBodySnippet = 1000
)

type MigrationRecord struct {
	Time             time.Time `json:"time"`
	Instance         string    `json:"instance"`
	SessionID        string    `json:"sessionId"`
	Name             string    `json:"name"`
	Action           string    `json:"action"`
	CustomProperties []string  `json:"customProperties,omitempty"`
}

type ResultRecord struct {
	Time      time.Time `json:"time"`
	Instance  string    `json:"instance"`
	SessionID string    `json:"sessionId"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
}

type ErrorRecord struct {
	Time       time.Time `json:"time"`
	RequestID  string    `json:"requestId"`
	Instance   string    `json:"instance,omitempty"`
	Reason     string    `json:"reason"`
	RemoteAddr string    `json:"remoteAddr"`
	Path       string    `json:"path"`
	SessionID  string    `json:"sessionId,omitempty"`
	Body       string    `json:"body,omitempty"`
}

type fileWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func (w *fileWriter) append(record interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(record)
}

// Logger owns the three append-only files. One writer per file with its own
// mutex keeps concurrent appends from interleaving mid-line.
type Logger struct {
	migrations *fileWriter
	results    *fileWriter
	errors     *fileWriter
}

func NewLogger(dataDir string) (*Logger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	l := &Logger{}
	for _, entry := range []struct {
		name string
		dst  **fileWriter
	}{
		{migrationFile, &l.migrations},
		{resultFile, &l.results},
		{errorFile, &l.errors},
	} {
		f, err := os.OpenFile(filepath.Join(dataDir, entry.name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open %s: %w", entry.name, err)
		}
		*entry.dst = &fileWriter{file: f, enc: json.NewEncoder(f)}
	}
	return l, nil
}

func (l *Logger) Close() {
	for _, w := range []*fileWriter{l.migrations, l.results, l.errors} {
		if w != nil {
			w.file.Close()
		}
	}
}

func (l *Logger) Migration(r MigrationRecord) error {
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
	return l.migrations.append(r)
}

func (l *Logger) Result(r ResultRecord) error {
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
	return l.results.append(r)
}

func (l *Logger) Error(r ErrorRecord) error {
	if r.Time.IsZero() {
		r.Time = time.Now().UTC()
	}
	r.Body = TruncateBody(r.Body)
	return l.errors.append(r)
}

// TruncateBody trims a raw request body to the snippet limit.
func TruncateBody(body string) string {
	if len(body) > MaxBodySnippet {
		return body[:MaxBodySnippet]
	}
	return body
}
