package logger

// In-memory capture of log messages, used by tests to assert on logged facts.

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type MemoryMessage struct {
	Message string
	Level   logrus.Level
}

type MemoryHook struct {
	mu       sync.Mutex
	messages []MemoryMessage
}

// Capture attaches a new MemoryHook to Log. Call the returned function to detach it.
func Capture() (*MemoryHook, func()) {
	h := &MemoryHook{}
	Log.AddHook(h)
	return h, func() {
		hooks := make(logrus.LevelHooks)
		for level, list := range Log.Hooks {
			for _, hook := range list {
				if hook != h {
					hooks[level] = append(hooks[level], hook)
				}
			}
		}
		Log.ReplaceHooks(hooks)
	}
}

func (h *MemoryHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *MemoryHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, MemoryMessage{Message: entry.Message, Level: entry.Level})
	return nil
}

// Messages returns a copy of everything captured so far.
func (h *MemoryHook) Messages() []MemoryMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]MemoryMessage(nil), h.messages...)
}

// Contains reports whether any captured message contains substr.
func (h *MemoryHook) Contains(substr string) bool {
	for _, m := range h.Messages() {
		if strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}
