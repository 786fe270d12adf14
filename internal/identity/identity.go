// Package identity keeps the anonymous per-device user id sent with every
// chat request.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// FileProvider implements ports.IdentityProvider. The id is created on first
// use and persisted at path so it survives restarts. If the file cannot be
// written the id is still stable for the life of the process.
type FileProvider struct {
	path   string
	logger *log.Logger

	mu sync.Mutex
	id string
}

func NewFileProvider(path string, logger *log.Logger) *FileProvider {
	if logger == nil {
		logger = log.Default()
	}
	return &FileProvider{
		path:   strings.TrimSpace(path),
		logger: logger.With("component", "identity"),
	}
}

func (p *FileProvider) GetOrCreate() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id
	}

	if id, err := p.read(); err == nil {
		p.id = id
		return p.id
	} else if !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("stored identity unusable, creating a new one", "path", p.path, "error", err)
	}

	p.id = uuid.NewString()
	if err := p.write(p.id); err != nil {
		p.logger.Warn("could not persist identity", "path", p.path, "error", err)
	}
	return p.id
}

func (p *FileProvider) read() (string, error) {
	if p.path == "" {
		return "", os.ErrNotExist
	}
	contents, err := os.ReadFile(p.path)
	if err != nil {
		return "", err
	}
	id, err := uuid.Parse(strings.TrimSpace(string(contents)))
	if err != nil {
		return "", fmt.Errorf("parse identity: %w", err)
	}
	return id.String(), nil
}

func (p *FileProvider) write(id string) error {
	if p.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(id+"\n"), 0o600)
}
