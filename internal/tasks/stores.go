// Package tasks turns longitudinal findings into actionable suggestions
// (ghost tabs to settle, projects to revive, bankruptcy to declare) and
// executes the durable effects of acting on them.
package tasks

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"memento/internal/errors"
)

// jsonFile is the shared tmp-and-rename persistence for the small
// user-scoped state files.
type jsonFile struct {
	path string
	mu   sync.Mutex
}

func (f *jsonFile) read(v any) error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.IOf(err, "read %s", f.path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.IOf(err, "parse %s", f.path)
	}
	return nil
}

func (f *jsonFile) write(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.IOf(err, "encode %s", f.path)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.IOf(err, "create dir for %s", f.path)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.IOf(err, "write %s", f.path)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.IOf(err, "commit %s", f.path)
	}
	return nil
}

// Blocklist holds URLs the user released; they never resurface as tasks.
type Blocklist struct {
	file jsonFile
}

type blocklistEntry struct {
	URL        string `json:"url"`
	ReleasedAt string `json:"releasedAt"`
	Reason     string `json:"reason,omitempty"`
}

func NewBlocklist(path string) *Blocklist {
	return &Blocklist{file: jsonFile{path: path}}
}

func (b *Blocklist) Add(url, reason string) error {
	if url == "" {
		return errors.InvalidArgumentf("url is required")
	}
	b.file.mu.Lock()
	defer b.file.mu.Unlock()
	var entries []blocklistEntry
	if err := b.file.read(&entries); err != nil {
		return err
	}
	for _, e := range entries {
		if e.URL == url {
			return nil
		}
	}
	entries = append(entries, blocklistEntry{
		URL:        url,
		ReleasedAt: time.Now().UTC().Format(time.RFC3339),
		Reason:     reason,
	})
	return b.file.write(entries)
}

func (b *Blocklist) Contains(url string) (bool, error) {
	b.file.mu.Lock()
	defer b.file.mu.Unlock()
	var entries []blocklistEntry
	if err := b.file.read(&entries); err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.URL == url {
			return true, nil
		}
	}
	return false, nil
}

func (b *Blocklist) All() (map[string]bool, error) {
	b.file.mu.Lock()
	defer b.file.mu.Unlock()
	var entries []blocklistEntry
	if err := b.file.read(&entries); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.URL] = true
	}
	return out, nil
}

// DeferredList holds keys (URLs or task ids) hidden until a deadline.
type DeferredList struct {
	file jsonFile
}

type deferredEntry struct {
	Key   string `json:"key"`
	Until string `json:"until"`
}

func NewDeferredList(path string) *DeferredList {
	return &DeferredList{file: jsonFile{path: path}}
}

// Defer hides a key for the given duration, replacing any earlier deadline.
func (d *DeferredList) Defer(key string, dur time.Duration) error {
	if key == "" {
		return errors.InvalidArgumentf("defer key is required")
	}
	d.file.mu.Lock()
	defer d.file.mu.Unlock()
	var entries []deferredEntry
	if err := d.file.read(&entries); err != nil {
		return err
	}
	until := time.Now().Add(dur).UTC().Format(time.RFC3339)
	for i := range entries {
		if entries[i].Key == key {
			entries[i].Until = until
			return d.file.write(entries)
		}
	}
	entries = append(entries, deferredEntry{Key: key, Until: until})
	return d.file.write(entries)
}

// ActiveKeys returns the still-deferred keys, pruning expired entries.
func (d *DeferredList) ActiveKeys() (map[string]bool, error) {
	d.file.mu.Lock()
	defer d.file.mu.Unlock()
	var entries []deferredEntry
	if err := d.file.read(&entries); err != nil {
		return nil, err
	}
	now := time.Now()
	active := map[string]bool{}
	kept := entries[:0]
	for _, e := range entries {
		until, err := time.Parse(time.RFC3339, e.Until)
		if err != nil || !until.After(now) {
			continue
		}
		active[e.Key] = true
		kept = append(kept, e)
	}
	if len(kept) != len(entries) {
		if err := d.file.write(kept); err != nil {
			return nil, err
		}
	}
	return active, nil
}

// PausedProjects hides a project's revival tasks until a deadline.
type PausedProjects struct {
	file jsonFile
}

type pausedEntry struct {
	Project string `json:"project"`
	Until   string `json:"until"`
}

func NewPausedProjects(path string) *PausedProjects {
	return &PausedProjects{file: jsonFile{path: path}}
}

func (p *PausedProjects) Pause(project string, dur time.Duration) error {
	if project == "" {
		return errors.InvalidArgumentf("project is required")
	}
	p.file.mu.Lock()
	defer p.file.mu.Unlock()
	var entries []pausedEntry
	if err := p.file.read(&entries); err != nil {
		return err
	}
	until := time.Now().Add(dur).UTC().Format(time.RFC3339)
	for i := range entries {
		if entries[i].Project == project {
			entries[i].Until = until
			return p.file.write(entries)
		}
	}
	entries = append(entries, pausedEntry{Project: project, Until: until})
	return p.file.write(entries)
}

func (p *PausedProjects) Active() (map[string]bool, error) {
	p.file.mu.Lock()
	defer p.file.mu.Unlock()
	var entries []pausedEntry
	if err := p.file.read(&entries); err != nil {
		return nil, err
	}
	now := time.Now()
	active := map[string]bool{}
	for _, e := range entries {
		if until, err := time.Parse(time.RFC3339, e.Until); err == nil && until.After(now) {
			active[e.Project] = true
		}
	}
	return active, nil
}

// LogEntry is one appended record of a task action.
type LogEntry struct {
	TaskID   string `json:"taskId"`
	TaskType string `json:"taskType"`
	Action   string `json:"action"`
	At       string `json:"at"`
	Task     *Task  `json:"task,omitempty"`
	Outcome  string `json:"outcome"`
}

// TaskLog is the append-only record of every task action taken.
type TaskLog struct {
	file jsonFile
}

func NewTaskLog(path string) *TaskLog {
	return &TaskLog{file: jsonFile{path: path}}
}

func (l *TaskLog) Append(entry LogEntry) error {
	l.file.mu.Lock()
	defer l.file.mu.Unlock()
	var entries []LogEntry
	if err := l.file.read(&entries); err != nil {
		return err
	}
	entry.At = time.Now().UTC().Format(time.RFC3339)
	entries = append(entries, entry)
	return l.file.write(entries)
}

func (l *TaskLog) All() ([]LogEntry, error) {
	l.file.mu.Lock()
	defer l.file.mu.Unlock()
	var entries []LogEntry
	if err := l.file.read(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}
