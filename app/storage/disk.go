// Package storage keeps uploaded and generated resume documents.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidRef = errors.New("storage: invalid artifact reference")

// Disk writes each document to its own uuid-named file under Dir.
type Disk struct {
	Dir string
}

func NewDisk(dir string) (*Disk, error) {
	if dir == "" {
		dir = "./uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Disk{Dir: dir}, nil
}

func (d *Disk) Store(_ context.Context, name string, data []byte) (string, error) {
	ref := uuid.New().String() + safeExt(name)
	if err := os.WriteFile(filepath.Join(d.Dir, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return ref, nil
}

func (d *Disk) Retrieve(_ context.Context, ref string) ([]byte, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return nil, ErrInvalidRef
	}
	data, err := os.ReadFile(filepath.Join(d.Dir, ref))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

// safeExt keeps a short alphanumeric extension from the client's file name.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
