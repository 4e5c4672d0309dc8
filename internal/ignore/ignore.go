// Package ignore provides the supplier ignore list: a persistent, reloadable set
// of names that must never appear in deduplicated results.
//
// The backing file is line oriented. Blank lines and lines starting with "#"
// are skipped; every other line is one supplier name.
//
//	# platforms, not suppliers
//	Amazon Web Services
//	SAP
package ignore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrEmptyName is returned when adding or removing a name that is blank after
// trimming.
var ErrEmptyName = errors.New("supplier name cannot be empty")

// nameSet holds lower-cased names.
type nameSet map[string]struct{}

// Policy is the ignore list backed by a text file.
//
// IsIgnored reads an immutable snapshot and never blocks. Add, Remove, Reload
// and List are serialized by a mutex because they read-modify-write the file.
type Policy struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	entries atomic.Pointer[nameSet]
}

// NewPolicy creates a policy for the file at path and loads it.
//
// A missing or unreadable file yields an empty ignore list; the problem is
// logged and construction still succeeds.
func NewPolicy(path string, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Policy{
		path:   path,
		logger: logger,
	}
	empty := nameSet{}
	p.entries.Store(&empty)
	p.Reload()
	return p
}

// Path returns the backing file path.
func (p *Policy) Path() string {
	return p.path
}

// IsIgnored reports whether name equals a loaded entry, ignoring case.
// Matching is exact after lower-casing, never fuzzy.
func (p *Policy) IsIgnored(name string) bool {
	_, ok := (*p.entries.Load())[foldName(name)]
	return ok
}

// Len returns the number of distinct ignored names.
func (p *Policy) Len() int {
	return len(*p.entries.Load())
}

// Add appends name as a new line of the backing file and to the in-memory set.
//
// Duplicate lines may accumulate in the file; membership is unaffected.
// An error means the file could not be written and the set is unchanged.
func (p *Policy) Add(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.appendLine(name); err != nil {
		p.logger.Error("failed to add to ignore list",
			zap.String("path", p.path),
			zap.String("supplier", name),
			zap.Error(err))
		return fmt.Errorf("append to ignore list: %w", err)
	}

	current := *p.entries.Load()
	next := make(nameSet, len(current)+1)
	for k := range current {
		next[k] = struct{}{}
	}
	next[foldName(name)] = struct{}{}
	p.entries.Store(&next)

	p.logger.Info("supplier added to ignore list", zap.String("supplier", name))
	return nil
}

// Remove deletes every line whose trimmed text is exactly name.
//
// Unlike IsIgnored, the comparison is case-sensitive: removing "acme" leaves
// a stored "ACME" line in place. Returns false when no line matched.
// The in-memory set is rebuilt from the remaining lines. A blank name is
// ErrEmptyName and leaves the file untouched.
func (p *Policy) Remove(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrEmptyName
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	content, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		p.logger.Error("failed to read ignore list", zap.String("path", p.path), zap.Error(err))
		return false, fmt.Errorf("read ignore list: %w", err)
	}

	var kept bytes.Buffer
	removed := false
	for _, line := range splitLines(content) {
		if sameLine(line, name) {
			removed = true
			continue
		}
		kept.WriteString(line)
		kept.WriteByte('\n')
	}
	if !removed {
		return false, nil
	}

	if err := writeFileAtomic(p.path, kept.Bytes()); err != nil {
		p.logger.Error("failed to rewrite ignore list", zap.String("path", p.path), zap.Error(err))
		return false, fmt.Errorf("rewrite ignore list: %w", err)
	}

	next := buildSet(kept.Bytes())
	p.entries.Store(&next)

	p.logger.Info("supplier removed from ignore list", zap.String("supplier", name))
	return true, nil
}

// Reload discards the in-memory set and re-reads the backing file.
// It never fails: a missing or unreadable file leaves the list empty.
func (p *Policy) Reload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloadLocked()
}

func (p *Policy) reloadLocked() {
	content, err := os.ReadFile(p.path)
	if err != nil {
		empty := nameSet{}
		p.entries.Store(&empty)
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("ignore list file not found", zap.String("path", p.path))
		} else {
			p.logger.Error("failed to load ignore list", zap.String("path", p.path), zap.Error(err))
		}
		return
	}

	next := buildSet(content)
	p.entries.Store(&next)
	p.logger.Info("ignore list loaded",
		zap.String("path", p.path),
		zap.Int("count", len(next)))
}

// List returns the entries of the backing file in file order, with comments
// and blank lines excluded. Read failures are logged and yield an empty list.
func (p *Policy) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, err := os.ReadFile(p.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Error("failed to read ignore list", zap.String("path", p.path), zap.Error(err))
		}
		return []string{}
	}

	names := []string{}
	for _, line := range splitLines(content) {
		if name := parseLine(line); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// appendLine appends one line, starting a new line first if the file does not
// end with a newline. Caller must hold p.mu.
func (p *Policy) appendLine(name string) error {
	if dir := filepath.Dir(p.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	prefix := ""
	if info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err != nil {
			return err
		}
		if last[0] != '\n' {
			prefix = "\n"
		}
	}

	_, err = f.WriteString(prefix + name + "\n")
	return err
}

// parseLine returns the supplier name on a line, or "" for comments and blank lines.
func parseLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}

// foldName is the case-insensitive key used for membership.
func foldName(name string) string {
	return strings.ToLower(name)
}

// sameLine is the case-sensitive comparison used for removal.
func sameLine(line, name string) bool {
	return strings.TrimSpace(line) == name
}

// buildSet parses file content into a membership set.
func buildSet(content []byte) nameSet {
	set := nameSet{}
	for _, line := range splitLines(content) {
		if name := parseLine(line); name != "" {
			set[foldName(name)] = struct{}{}
		}
	}
	return set
}

// splitLines splits content into lines without their "\n" or "\r\n"
// terminators. Lines have no length limit, so a rewrite never loses the tail
// of the file.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	raw := bytes.Split(bytes.TrimSuffix(content, []byte("\n")), []byte("\n"))
	lines := make([]string, len(raw))
	for i, line := range raw {
		lines[i] = string(bytes.TrimSuffix(line, []byte("\r")))
	}
	return lines
}

// writeFileAtomic replaces path with data via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	perm := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
