// internal/agent/journal.go
package agent

import (
	"io"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ClickRecord is one line of the click journal.
type ClickRecord struct {
	Time        time.Time `json:"timestamp"`
	MessageID   string    `json:"message_id"`
	CustomID    string    `json:"custom_id"`
	Label       string    `json:"label"`
	Reason      string    `json:"reason,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Attempts    int       `json:"attempts"`
	Fallback    bool      `json:"fallback,omitempty"`
}

// Journal records delivered clicks.
type Journal interface {
	Append(rec ClickRecord) error
	Close() error
}

// ClickJournal appends JSON lines to a size-rotated file.
type ClickJournal struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// OpenJournal opens the journal at path. An empty path returns a journal that writes
// nothing.
func OpenJournal(path string) (Journal, error) {
	if path == "" {
		return nopJournal{}, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	return NewClickJournal(&lumberjack.Logger{
		Filename:   expanded,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     30,
	}), nil
}

// NewClickJournal writes to w.
func NewClickJournal(w io.WriteCloser) *ClickJournal {
	return &ClickJournal{w: w}
}

func (j *ClickJournal) Append(rec ClickRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.w.Write(line)
	return err
}

func (j *ClickJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Close()
}

type nopJournal struct{}

func (nopJournal) Append(ClickRecord) error { return nil }
func (nopJournal) Close() error             { return nil }
