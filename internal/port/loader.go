package port

import (
	"context"

	"localrag/internal/domain"
)

type DocumentLoader interface {
	Load(ctx context.Context) ([]domain.Document, error)
}

type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}
