package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/park285/cheese-arena/internal/domain"
)

// FileFallback writes records the repository could not take.
type FileFallback struct {
	Dir string
}

func NewFileFallback(dir string) *FileFallback {
	return &FileFallback{Dir: strings.TrimSpace(dir)}
}

// Write stores rec as indented JSON, one file per game, and returns its path.
func (f *FileFallback) Write(rec *domain.GameRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("nil game record")
	}
	dir := f.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create fallback dir: %w", err)
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal game record: %w", err)
	}
	path := filepath.Join(dir, fallbackName(rec))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write fallback file: %w", err)
	}
	return path, nil
}

// Read loads a record previously written by Write.
func (f *FileFallback) Read(path string) (*domain.GameRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec domain.GameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

func fallbackName(rec *domain.GameRecord) string {
	name := "game_" + strings.TrimSpace(rec.ID)
	if u := strings.ReplaceAll(rec.SessionUUID, "-", ""); len(u) >= 8 {
		name += "_" + u[:8]
	}
	return name + ".json"
}
