package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freightflow/extractd/internal/common"
)

// FS stores documents under a root directory, sharded by submission
// date. Refs are root-relative paths, so a ledger row stays valid when
// the root moves.
type FS struct {
	root string
	log  *slog.Logger
}

func NewFS(root string, logger *slog.Logger) (*FS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create docstore root: %w", err)
	}
	return &FS{root: root, log: logger}, nil
}

func (s *FS) Put(_ context.Context, name string, data []byte, mimeHint string) (string, error) {
	day := time.Now().UTC().Format("2006/01/02")
	base := uuid.New().String()
	if ext := filepath.Ext(name); ext != "" {
		base += strings.ToLower(ext)
	}
	rel := filepath.Join(day, base)

	dir := filepath.Join(s.root, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}
	path := filepath.Join(s.root, rel)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	if mimeHint != "" {
		if err := os.WriteFile(path+".mime", []byte(mimeHint), 0o644); err != nil {
			return "", fmt.Errorf("write mime hint: %w", err)
		}
	}

	s.log.Debug("docstore.put", "ref", rel, "bytes", len(data), "mime", mimeHint)
	return rel, nil
}

func (s *FS) Get(_ context.Context, ref string) ([]byte, string, error) {
	// refs are relative by construction; reject escapes
	clean := filepath.Clean(ref)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, "", common.ErrInvalidInput
	}

	path := filepath.Join(s.root, clean)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, "", common.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read document: %w", err)
	}

	mime := ""
	if hint, err := os.ReadFile(path + ".mime"); err == nil {
		mime = strings.TrimSpace(string(hint))
	}
	return data, mime, nil
}
