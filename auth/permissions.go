package auth

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/qsargate/observe"
)

//go:embed default_permissions.json
var defaultPermissions []byte

// ErrPermissionsMalformed is returned when a permission source cannot be parsed.
var ErrPermissionsMalformed = errors.New("auth: malformed permission table")

// PermissionTable maps roles to the set of tools they may invoke.
// It is immutable once built.
type PermissionTable struct {
	roles map[string][]string // sorted, deduplicated
}

// NewPermissionTable builds a table from a role to tool-list mapping.
// Tool lists are deduplicated and sorted.
func NewPermissionTable(m map[string][]string) *PermissionTable {
	t := &PermissionTable{roles: make(map[string][]string, len(m))}
	for role, tools := range m {
		seen := make(map[string]struct{}, len(tools))
		list := make([]string, 0, len(tools))
		for _, tool := range tools {
			if _, dup := seen[tool]; dup {
				continue
			}
			seen[tool] = struct{}{}
			list = append(list, tool)
		}
		sort.Strings(list)
		t.roles[role] = list
	}
	return t
}

// EmptyPermissionTable returns a table that denies everything.
func EmptyPermissionTable() *PermissionTable {
	return &PermissionTable{roles: map[string][]string{}}
}

// DefaultPermissionTable returns the table built into the binary.
func DefaultPermissionTable() *PermissionTable {
	t, err := ParsePermissions(defaultPermissions)
	if err != nil {
		panic(fmt.Sprintf("auth: embedded permission table: %v", err))
	}
	return t
}

// Permits reports whether role grants tool.
func (t *PermissionTable) Permits(role, tool string) bool {
	if t == nil {
		return false
	}
	tools := t.roles[role]
	i := sort.SearchStrings(tools, tool)
	return i < len(tools) && tools[i] == tool
}

// Tools returns the sorted tools granted to role. Unknown roles get nil.
func (t *PermissionTable) Tools(role string) []string {
	if t == nil {
		return nil
	}
	tools, ok := t.roles[role]
	if !ok {
		return nil
	}
	return append([]string(nil), tools...)
}

// Roles returns the sorted roles in the table.
func (t *PermissionTable) Roles() []string {
	if t == nil {
		return nil
	}
	roles := make([]string, 0, len(t.roles))
	for r := range t.roles {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// Len returns the number of roles in the table.
func (t *PermissionTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.roles)
}

// ParsePermissions decodes a role to tool-list document. JSON objects are
// decoded strictly; anything else is read as YAML.
func ParsePermissions(data []byte) (*PermissionTable, error) {
	raw := map[string][]string{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrPermissionsMalformed)
	}

	var err error
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		err = dec.Decode(&raw)
	} else {
		err = yaml.Unmarshal(trimmed, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionsMalformed, err)
	}

	for role, tools := range raw {
		if role == "" {
			return nil, fmt.Errorf("%w: empty role name", ErrPermissionsMalformed)
		}
		for _, tool := range tools {
			if tool == "" {
				return nil, fmt.Errorf("%w: empty tool name for role %q", ErrPermissionsMalformed, role)
			}
		}
	}
	return NewPermissionTable(raw), nil
}

// LoadPermissionFile reads a permission table from path. An empty path
// loads the embedded default table.
func LoadPermissionFile(path string) (*PermissionTable, error) {
	if path == "" {
		return ParsePermissions(defaultPermissions)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permission file: %w", err)
	}
	t, err := ParsePermissions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// PermissionSource provides the current permission table.
type PermissionSource interface {
	Table() *PermissionTable
}

// PermissionStore owns the active permission table. Reads are lock free;
// a reload replaces the whole table at once, so a reader never sees a
// partially updated mapping.
type PermissionStore struct {
	path    string
	logger  observe.Logger
	current atomic.Pointer[PermissionTable]

	mu      sync.Mutex
	loadErr error
}

// Ensure PermissionStore implements PermissionSource
var _ PermissionSource = (*PermissionStore)(nil)

// NewPermissionStore loads the table from path (or the embedded default
// when path is empty). A load failure is logged and leaves an empty table
// in place, which denies every call until the source is fixed.
func NewPermissionStore(ctx context.Context, path string, logger observe.Logger) *PermissionStore {
	if logger == nil {
		logger = observe.NopLogger()
	}
	s := &PermissionStore{
		path:   path,
		logger: logger.With(observe.Field{Key: "component", Value: "permissions"}),
	}
	s.current.Store(EmptyPermissionTable())
	if err := s.Reload(ctx); err != nil {
		s.logger.Error(ctx, "failed to load tool permissions; all tool calls will be denied",
			observe.Field{Key: "path", Value: path},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
	return s
}

// NewStaticPermissionStore wraps a fixed table. Reload is a no-op.
func NewStaticPermissionStore(t *PermissionTable) *PermissionStore {
	s := &PermissionStore{logger: observe.NopLogger(), path: ""}
	if t == nil {
		t = EmptyPermissionTable()
	}
	s.current.Store(t)
	return s
}

// Table returns the active table.
func (s *PermissionStore) Table() *PermissionTable {
	return s.current.Load()
}

// Path returns the file the store loads from, or "" for the embedded default.
func (s *PermissionStore) Path() string {
	return s.path
}

// LoadError returns the error from the most recent load, or nil.
func (s *PermissionStore) LoadError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Reload re-reads the source. On failure the previous table stays active.
func (s *PermissionStore) Reload(ctx context.Context) error {
	t, err := LoadPermissionFile(s.path)

	s.mu.Lock()
	s.loadErr = err
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.current.Store(t)
	s.logger.Info(ctx, "tool permissions loaded",
		observe.Field{Key: "path", Value: s.displayPath()},
		observe.Field{Key: "roles", Value: t.Len()},
	)
	return nil
}

func (s *PermissionStore) displayPath() string {
	if s.path == "" {
		return "embedded default"
	}
	return s.path
}

// Watch reloads the table whenever the backing file changes, until ctx is
// done. The parent directory is watched so that editors which replace the
// file by rename are picked up.
func (s *PermissionStore) Watch(ctx context.Context) error {
	if s.path == "" {
		return errors.New("auth: no permission file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Reload(ctx); err != nil {
				s.logger.Error(ctx, "permission reload failed; keeping previous table",
					observe.Field{Key: "path", Value: s.path},
					observe.Field{Key: "error", Value: err.Error()},
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn(ctx, "permission watcher error",
				observe.Field{Key: "error", Value: err.Error()})
		}
	}
}
