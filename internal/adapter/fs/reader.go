package fs

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"localrag/internal/domain"
	"localrag/internal/port"
)

// DirectoryReader loads every selected file in a directory as a Document.
// With splitMarkdown set, each heading section of a markdown file becomes
// its own Document.
type DirectoryReader struct {
	dir           string
	walker        port.FileWalker
	splitMarkdown bool
}

func NewDirectoryReader(dir string, walker port.FileWalker, splitMarkdown bool) *DirectoryReader {
	return &DirectoryReader{dir: dir, walker: walker, splitMarkdown: splitMarkdown}
}

// Load reads the files in path order. It fails if the directory is missing
// or yields no documents.
func (r *DirectoryReader) Load(ctx context.Context) ([]domain.Document, error) {
	info, err := os.Stat(r.dir)
	if err != nil {
		return nil, fmt.Errorf("input directory %s: %w", r.dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path is not a directory: %s", r.dir)
	}

	files, err := r.walker.Walk(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	docs := make([]domain.Document, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := ReadFile(file.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file.Path, err)
		}

		// Invalid bytes are dropped, not replaced.
		content = strings.ToValidUTF8(content, "")

		if r.splitMarkdown && isMarkdown(file.Path) {
			for i, section := range markdownSections([]byte(content)) {
				doc := newDocument(file, section)
				doc.ID = generateDocID(file.Path + "#" + strconv.Itoa(i))
				docs = append(docs, doc)
			}
			continue
		}

		docs = append(docs, newDocument(file, content))
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s", domain.ErrNoDocuments, r.dir)
	}

	log.Debug().Str("dir", r.dir).Int("documents", len(docs)).Msg("documents loaded")
	return docs, nil
}

func newDocument(file port.FileInfo, content string) domain.Document {
	modTime := time.Unix(file.ModTime, 0)
	name := filepath.Base(file.Path)

	fileType := mime.TypeByExtension(filepath.Ext(name))
	if i := strings.IndexByte(fileType, ';'); i >= 0 {
		fileType = fileType[:i]
	}

	return domain.Document{
		ID:      generateDocID(file.Path),
		Path:    file.Path,
		Text:    content,
		ModTime: modTime,
		Size:    file.Size,
		Metadata: map[string]string{
			"file_path":          file.Path,
			"file_name":          name,
			"file_type":          fileType,
			"file_size":          strconv.FormatInt(file.Size, 10),
			"last_modified_date": modTime.Format("2006-01-02"),
		},
	}
}

// generateDocID derives a stable ID from the absolute path.
func generateDocID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
}
