package memory

import (
	"math"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Soul is the static personality document loaded for one agent.
type Soul struct {
	AgentID    string
	Content    string
	TokenCount int
	LoadedFrom string
	LoadedAt   time.Time
	fileMtime  time.Time
}

// estimateTokens approximates token count as ceil(len(text)/4).
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / 4.0))
}

// SoulLoader loads and hot-reloads soul documents, one per agent.
type SoulLoader struct {
	mu      sync.Mutex
	souls   map[string]*Soul
	watcher *fsnotify.Watcher
	dirty   map[string]bool
}

// NewSoulLoader builds a SoulLoader. A best-effort fsnotify watcher is
// started to mark souls dirty proactively; its absence (e.g. inotify limits
// exhausted) never affects correctness since Get always re-stats the file
// before deciding whether to reload.
func NewSoulLoader() *SoulLoader {
	l := &SoulLoader{souls: make(map[string]*Soul), dirty: make(map[string]bool)}
	if w, err := fsnotify.NewWatcher(); err == nil {
		l.watcher = w
		go l.watchLoop()
	}
	return l
}

func (l *SoulLoader) watchLoop() {
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.mu.Lock()
			for agentID, s := range l.souls {
				if s.LoadedFrom == ev.Name {
					l.dirty[agentID] = true
				}
			}
			l.mu.Unlock()
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Load reads path as the soul document for agentID.
func (l *SoulLoader) Load(agentID, path string) error {
	soul, err := l.readSoul(agentID, path)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.souls[agentID] = soul
	delete(l.dirty, agentID)
	l.mu.Unlock()
	if l.watcher != nil {
		_ = l.watcher.Add(path)
	}
	return nil
}

func (l *SoulLoader) readSoul(agentID, path string) (*Soul, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	content := string(data)
	return &Soul{
		AgentID:    agentID,
		Content:    content,
		TokenCount: estimateTokens(content),
		LoadedFrom: path,
		LoadedAt:   time.Now(),
		fileMtime:  info.ModTime(),
	}, nil
}

// Get returns the current soul for agentID, reloading it first if the
// backing file's mtime has advanced since it was last loaded. A failed
// reload is ignored and the previously loaded version is kept.
func (l *SoulLoader) Get(agentID string) (*Soul, bool) {
	l.mu.Lock()
	soul, ok := l.souls[agentID]
	if !ok {
		l.mu.Unlock()
		return nil, false
	}
	path := soul.LoadedFrom
	l.mu.Unlock()

	info, err := os.Stat(path)
	if err == nil && info.ModTime().After(soul.fileMtime) {
		if reloaded, err := l.readSoul(agentID, path); err == nil {
			l.mu.Lock()
			l.souls[agentID] = reloaded
			delete(l.dirty, agentID)
			soul = reloaded
			l.mu.Unlock()
		}
	}
	return soul, true
}

// GetContent is a convenience wrapper returning just the soul's text.
func (l *SoulLoader) GetContent(agentID string) (string, bool) {
	s, ok := l.Get(agentID)
	if !ok {
		return "", false
	}
	return s.Content, true
}

// Close stops the background filesystem watcher, if one was started.
func (l *SoulLoader) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}
