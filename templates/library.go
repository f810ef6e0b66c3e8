package templates

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Library indexes the templates found under a set of root directories.
// Lookups are lock-free; Process serializes rescans.
type Library struct {
	mu     sync.Mutex
	roots  []string
	files  map[string]FileInfo // keyed by absolute path
	logger *zap.Logger

	byLanguage   sync.Map // map[string][]*Template
	lastScanTime time.Time
}

func NewLibrary(logger *zap.Logger, roots ...string) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Library{
		files:  make(map[string]FileInfo),
		logger: logger,
	}
	for _, r := range roots {
		l.AddRoot(r)
	}
	return l
}

// AddRoot registers a directory. It is picked up by the next Process.
func (l *Library) AddRoot(root string) {
	if root == "" {
		return
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !slices.Contains(l.roots, root) {
		l.roots = append(l.roots, root)
	}
}

func (l *Library) Roots() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.roots)
}

func (l *Library) LastScanTime() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastScanTime
}

// Contains reports whether path lies under one of the roots.
func (l *Library) Contains(path string) bool {
	for _, root := range l.Roots() {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Templates returns the templates for a language, including those that
// apply to every language.
func (l *Library) Templates(language string) []*Template {
	var out []*Template
	if v, ok := l.byLanguage.Load(language); ok && language != AnyLanguage {
		out = append(out, v.([]*Template)...)
	}
	if v, ok := l.byLanguage.Load(AnyLanguage); ok {
		out = append(out, v.([]*Template)...)
	}
	return out
}

// Process performs an incremental scan of every root: new and modified
// files are parsed concurrently, vanished files are dropped, and the
// language index is rebuilt.
func (l *Library) Process() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	messages, err := l.scanUnlocked()
	if err != nil || len(messages) == 0 {
		l.logger.Debug("No template changes detected")
		l.lastScanTime = time.Now()
		return err
	}

	for _, msg := range messages {
		if msg.Action == ShouldDelete {
			delete(l.files, filepath.Join(msg.Info.Root, msg.Info.Path))
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex // Protects files
	for _, msg := range messages {
		if msg.Action != ShouldParse {
			continue
		}
		wg.Add(1)
		go func(m FileMessage) {
			defer wg.Done()

			key := filepath.Join(m.Info.Root, m.Info.Path)
			parsed, err := ParseFile(m.Info.Path, m.Info.Root)
			if err != nil {
				l.logger.Error("Failed to parse template file", zap.String("path", key), zap.Error(err))
				// Remember the mod time so a broken file is not reparsed on every scan.
				parsed = &FileInfo{Path: m.Info.Path, Root: m.Info.Root, ModTime: m.Info.ModTime}
			}

			mu.Lock()
			defer mu.Unlock()
			l.files[key] = *parsed
		}(msg)
	}
	wg.Wait()

	l.rebuildIndexUnlocked()
	l.lastScanTime = time.Now()

	l.logger.Info("Template scan complete",
		zap.Int("messages_processed", len(messages)),
		zap.Int("files_total", len(l.files)))
	return nil
}

// scanUnlocked compares the files on disk with the indexed ones.
func (l *Library) scanUnlocked() ([]FileMessage, error) {
	var messages []FileMessage
	seen := make(map[string]bool)

	for _, root := range l.roots {
		if _, err := os.Stat(root); err != nil {
			l.logger.Debug("Skipping missing template root", zap.String("root", root))
			continue
		}
		found, err := Scan(root, l.logger)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			key := filepath.Join(f.Root, f.Path)
			seen[key] = true
			if old, ok := l.files[key]; ok && old.ModTime.Equal(f.ModTime) {
				continue
			}
			messages = append(messages, FileMessage{Action: ShouldParse, Info: f})
		}
	}

	for key, f := range l.files {
		if !seen[key] {
			messages = append(messages, FileMessage{Action: ShouldDelete, Info: f})
		}
	}
	return messages, nil
}

func (l *Library) rebuildIndexUnlocked() {
	index := make(map[string][]*Template)
	keys := make([]string, 0, len(l.files))
	for k := range l.files {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		for _, t := range l.files[k].Templates {
			if len(t.Languages) == 0 {
				index[AnyLanguage] = append(index[AnyLanguage], t)
				continue
			}
			for _, lang := range t.Languages {
				index[lang] = append(index[lang], t)
			}
		}
	}

	l.byLanguage.Range(func(k, _ any) bool {
		if _, ok := index[k.(string)]; !ok {
			l.byLanguage.Delete(k)
		}
		return true
	})
	for lang, ts := range index {
		l.byLanguage.Store(lang, ts)
	}
}
