package secret

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// ErrSecretNotFound is returned when a reference names nothing.
var ErrSecretNotFound = errors.New("secret: not found")

// EnvProvider resolves secretref:env:NAME from the process environment.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment-backed provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the value of the environment variable ref.
func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("%w: environment variable %s", ErrSecretNotFound, ref)
	}
	return v, nil
}

func (p *EnvProvider) Close() error { return nil }

// maxSecretFile caps the size of a secret file.
const maxSecretFile = 64 << 10

// FileProvider resolves secretref:file:/path by reading the file. Trailing
// newlines are trimmed. When Root is set, paths must resolve inside it.
type FileProvider struct {
	Root string
}

// NewFileProvider creates a file-backed provider restricted to root. An
// empty root allows any absolute path.
func NewFileProvider(root string) *FileProvider {
	return &FileProvider{Root: root}
}

func (p *FileProvider) Name() string { return "file" }

// Resolve reads the file at ref.
func (p *FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	path := filepath.Clean(ref)
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("secret file path must be absolute: %q", ref)
	}
	if p.Root != "" {
		rel, err := filepath.Rel(filepath.Clean(p.Root), path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("secret file %q is outside %q", ref, p.Root)
		}
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: file %s", ErrSecretNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("open secret file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSecretFile+1))
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	if len(data) > maxSecretFile {
		return "", fmt.Errorf("secret file %s exceeds %d bytes", path, maxSecretFile)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (p *FileProvider) Close() error { return nil }

var (
	_ Provider = (*EnvProvider)(nil)
	_ Provider = (*FileProvider)(nil)
)
