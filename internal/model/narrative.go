package model

import (
	"fmt"

	"go.uber.org/zap"
)

// Level classifies a narrative message.
type Level string

const (
	LevelInfo Level = "info"
	LevelWarn Level = "warn"
)

// Message is one entry of the status narrative shown to the caller.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Narrative collects the human-readable account of every fallback and
// exclusion decision made during a run. Each message is also logged.
type Narrative struct {
	Messages []Message `json:"messages"`
	log      *zap.Logger
}

// NewNarrative returns a narrative that mirrors messages to log.
// A nil logger falls back to the global zap logger.
func NewNarrative(log *zap.Logger) *Narrative {
	if log == nil {
		log = zap.L()
	}
	return &Narrative{log: log}
}

// Infof appends an informational message.
func (n *Narrative) Infof(format string, args ...any) {
	n.add(LevelInfo, fmt.Sprintf(format, args...))
}

// Warnf appends a warning.
func (n *Narrative) Warnf(format string, args ...any) {
	n.add(LevelWarn, fmt.Sprintf(format, args...))
}

// Warnings returns only the warning texts, in order.
func (n *Narrative) Warnings() []string {
	var out []string
	for _, m := range n.Messages {
		if m.Level == LevelWarn {
			out = append(out, m.Text)
		}
	}
	return out
}

func (n *Narrative) add(level Level, text string) {
	if n == nil {
		return
	}
	n.Messages = append(n.Messages, Message{Level: level, Text: text})
	if n.log == nil {
		n.log = zap.L()
	}
	switch level {
	case LevelWarn:
		n.log.Warn(text)
	default:
		n.log.Info(text)
	}
}
