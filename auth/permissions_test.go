package auth

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/qsargate/observe"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"json", `{"GUEST": ["view_tool", "view_tool"], "RESEARCHER": ["view_tool", "edit_tool"]}`},
		{"yaml", "GUEST:\n  - view_tool\n  - view_tool\nRESEARCHER: [view_tool, edit_tool]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ParsePermissions([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParsePermissions() error = %v", err)
			}
			if got := tbl.Tools("GUEST"); !reflect.DeepEqual(got, []string{"view_tool"}) {
				t.Errorf("Tools(GUEST) = %v, want [view_tool]", got)
			}
			if got := tbl.Tools("RESEARCHER"); !reflect.DeepEqual(got, []string{"edit_tool", "view_tool"}) {
				t.Errorf("Tools(RESEARCHER) = %v, want sorted [edit_tool view_tool]", got)
			}
		})
	}
}

func TestParsePermissions_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"invalid json", "{invalid"},
		{"tools not a list", `{"GUEST": "view_tool"}`},
		{"top level list", `["GUEST"]`},
		{"empty tool name", `{"GUEST": [""]}`},
		{"empty role name", `{"": ["view_tool"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePermissions([]byte(tt.data))
			if !errors.Is(err, ErrPermissionsMalformed) {
				t.Errorf("ParsePermissions() error = %v, want ErrPermissionsMalformed", err)
			}
		})
	}
}

func TestPermissionTable_Permits(t *testing.T) {
	tbl := NewPermissionTable(map[string][]string{
		"GUEST":      {"view_tool"},
		"RESEARCHER": {"view_tool", "edit_tool"},
	})

	tests := []struct {
		role, tool string
		want       bool
	}{
		{"GUEST", "view_tool", true},
		{"GUEST", "edit_tool", false},
		{"RESEARCHER", "edit_tool", true},
		{"UNKNOWN", "view_tool", false},
		{"RESEARCHER", "nonexistent_tool", false},
	}
	for _, tt := range tests {
		if got := tbl.Permits(tt.role, tt.tool); got != tt.want {
			t.Errorf("Permits(%q, %q) = %v, want %v", tt.role, tt.tool, got, tt.want)
		}
	}
}

func TestDefaultPermissionTable(t *testing.T) {
	tbl := DefaultPermissionTable()
	if !tbl.Permits("GUEST", "search_chemicals") {
		t.Error("GUEST should be able to search chemicals")
	}
	if tbl.Permits("GUEST", "run_qsar_prediction") {
		t.Error("GUEST should not run predictions")
	}
	if !tbl.Permits("RESEARCHER", "run_qsar_prediction") {
		t.Error("RESEARCHER should run predictions")
	}
	if !reflect.DeepEqual(tbl.Tools("LAB_ADMIN"), tbl.Tools(BypassRole)) {
		t.Error("bypass role should match LAB_ADMIN")
	}
}

func TestNewPermissionStore_EmbeddedDefault(t *testing.T) {
	s := NewPermissionStore(context.Background(), "", nil)
	if s.LoadError() != nil {
		t.Fatalf("LoadError() = %v", s.LoadError())
	}
	if s.Table().Len() == 0 {
		t.Error("embedded default table should not be empty")
	}
}

func TestNewPermissionStore_MalformedFailsClosed(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, path, "{invalid")

	s := NewPermissionStore(context.Background(), path, observe.NewLoggerWithWriter("error", &buf))
	if s.LoadError() == nil {
		t.Error("LoadError() = nil, want error")
	}
	if s.Table().Len() != 0 {
		t.Errorf("Table().Len() = %d, want 0", s.Table().Len())
	}
	if !strings.Contains(buf.String(), "failed to load tool permissions") {
		t.Errorf("expected load failure to be logged, got %q", buf.String())
	}
}

func TestNewPermissionStore_MissingFile(t *testing.T) {
	s := NewPermissionStore(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil)
	if !errors.Is(s.LoadError(), os.ErrNotExist) {
		t.Errorf("LoadError() = %v, want os.ErrNotExist", s.LoadError())
	}
	if s.Table().Permits("GUEST", "search_chemicals") {
		t.Error("missing file must deny everything")
	}
}

func TestPermissionStore_ReloadKeepsPreviousOnFailure(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "perms.json")
	writeFile(t, path, `{"GUEST": ["view_tool"]}`)

	s := NewPermissionStore(ctx, path, nil)
	before := s.Table()

	writeFile(t, path, "{broken")
	if err := s.Reload(ctx); err == nil {
		t.Fatal("Reload() error = nil, want error")
	}
	if s.Table() != before {
		t.Error("failed reload must keep the previous table")
	}

	writeFile(t, path, `{"GUEST": ["view_tool", "edit_tool"]}`)
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if !s.Table().Permits("GUEST", "edit_tool") {
		t.Error("reload should install the new table")
	}
	if s.LoadError() != nil {
		t.Errorf("LoadError() = %v after successful reload", s.LoadError())
	}
}

func TestPermissionStore_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "perms.yaml")
	writeFile(t, path, "GUEST: [view_tool]\n")
	s := NewPermissionStore(ctx, path, nil)

	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !s.Table().Permits("GUEST", "edit_tool") {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not pick up the change")
		}
		writeFile(t, path, "GUEST: [view_tool, edit_tool]\n")
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch() did not return after cancel")
	}
}

func TestPermissionStore_WatchWithoutFile(t *testing.T) {
	s := NewPermissionStore(context.Background(), "", nil)
	if err := s.Watch(context.Background()); err == nil {
		t.Error("Watch() error = nil, want error for embedded table")
	}
}
