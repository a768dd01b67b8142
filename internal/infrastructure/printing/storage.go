package printing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/generation"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	pdfExt         = ".pdf"
	tempFilePrefix = ".render-"
	tempFileExt    = ".tmp"
	maxNameLength  = 48
)

// ArtifactStorage manages generated PDFs under a single output directory.
type ArtifactStorage interface {
	// Resolve maps a storage-relative path to an absolute path inside the
	// output directory, rejecting anything that would escape it
	Resolve(path string) (string, error)
	// Open returns a reader for a stored PDF and its size
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)
	// Delete removes a stored PDF; a missing file is not an error
	Delete(ctx context.Context, path string) error
	// CleanupOlderThan removes PDFs and stale temp files older than age
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// FileSystemStorageConfig contains configuration for file system storage
type FileSystemStorageConfig struct {
	// BasePath is the root directory for generated PDFs
	// Default: ./data/sheets
	BasePath string
	// Logger for operations
	Logger *zap.Logger
	// Now overrides the clock used by CleanupOlderThan
	Now func() time.Time
}

// FileSystemStorage stores PDFs on the local file system
type FileSystemStorage struct {
	basePath string
	logger   *zap.Logger
	now      func() time.Time
}

// NewFileSystemStorage creates a new file system based PDF storage
func NewFileSystemStorage(config *FileSystemStorageConfig) (*FileSystemStorage, error) {
	if config == nil {
		config = &FileSystemStorageConfig{}
	}
	basePath := config.BasePath
	if basePath == "" {
		basePath = "./data/sheets"
	}

	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed, "failed to resolve base path", err)
	}
	if err := os.MkdirAll(absBase, 0o755); err != nil {
		return nil, NewRenderError(ErrCodeStorageFailed,
			fmt.Sprintf("failed to create storage directory: %s", absBase), err)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &FileSystemStorage{
		basePath: absBase,
		logger:   logger,
		now:      now,
	}, nil
}

// BasePath returns the absolute output directory
func (s *FileSystemStorage) BasePath() string {
	return s.basePath
}

// Resolve maps a relative artifact path into the output directory
func (s *FileSystemStorage) Resolve(path string) (string, error) {
	if path == "" {
		return "", NewRenderError(ErrCodeInvalidOutputPath, "path is empty", nil)
	}
	cleanPath := filepath.Clean(path)
	if filepath.IsAbs(cleanPath) || containsDotDot(path) {
		s.logger.Warn("blocked potentially malicious path", zap.String("path", path))
		return "", NewRenderError(ErrCodeInvalidOutputPath, "invalid path", nil)
	}

	absPath := filepath.Join(s.basePath, cleanPath)
	if !strings.HasPrefix(absPath, s.basePath+string(filepath.Separator)) {
		s.logger.Warn("path escape attempt blocked",
			zap.String("path", path),
			zap.String("absPath", absPath))
		return "", NewRenderError(ErrCodeInvalidOutputPath, "invalid path", nil)
	}
	return absPath, nil
}

// Open retrieves a PDF file by its relative path
func (s *FileSystemStorage) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, NewRenderError(ErrCodeStorageFailed, "operation cancelled", err)
	}

	fullPath, err := s.Resolve(path)
	if err != nil {
		return nil, 0, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, NewRenderError(ErrCodeArtifactNotFound, "PDF not found", err)
		}
		return nil, 0, NewRenderError(ErrCodeStorageFailed, "failed to open PDF file", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, NewRenderError(ErrCodeStorageFailed, "failed to stat PDF file", err)
	}

	return file, info.Size(), nil
}

// Delete removes a PDF file
func (s *FileSystemStorage) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return NewRenderError(ErrCodeStorageFailed, "operation cancelled", err)
	}
	if path == "" {
		return nil
	}

	fullPath, err := s.Resolve(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return NewRenderError(ErrCodeStorageFailed, "failed to delete PDF file", err)
	}

	s.logger.Debug("PDF deleted", zap.String("path", path))
	return nil
}

// CleanupOlderThan removes PDFs and abandoned temp files whose modification
// time is older than age.
func (s *FileSystemStorage) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := s.now().Add(-age)
	deletedCount := 0

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isManagedFile(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				deletedCount++
				s.logger.Debug("deleted stale artifact", zap.String("path", path))
			}
		}
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return deletedCount, NewRenderError(ErrCodeStorageFailed, "cleanup walk failed", err)
	}

	return deletedCount, nil
}

func isManagedFile(name string) bool {
	if filepath.Ext(name) == pdfExt {
		return true
	}
	return strings.HasPrefix(name, tempFilePrefix) && strings.HasSuffix(name, tempFileExt)
}

// containsDotDot checks if a path contains ".." components
func containsDotDot(path string) bool {
	parts := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	return slices.Contains(parts, "..")
}

// ArtifactPath builds the storage-relative path for a job's PDF:
// {owner}/{yyyy}/{mm}/{name}_{doc-type}_{yyyymmddhhmmss}_{short-id}.pdf.
// The job id suffix keeps concurrent jobs for one character apart.
func ArtifactPath(ownerID uuid.UUID, characterName string, docType generation.DocumentType, createdAt time.Time, jobID uuid.UUID) string {
	createdAt = createdAt.UTC()
	fileName := fmt.Sprintf("%s_%s_%s_%s%s",
		SanitizeFileName(characterName),
		docType.Slug(),
		createdAt.Format("20060102150405"),
		strings.ReplaceAll(jobID.String(), "-", "")[:8],
		pdfExt,
	)
	return filepath.Join(
		ownerID.String(),
		fmt.Sprintf("%04d", createdAt.Year()),
		fmt.Sprintf("%02d", createdAt.Month()),
		fileName,
	)
}

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// SanitizeFileName reduces a display name to a short ASCII slug
func SanitizeFileName(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, stripMarks, norm.NFC), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
		if b.Len() >= maxNameLength {
			break
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "character"
	}
	return slug
}

// Ensure FileSystemStorage implements ArtifactStorage
var _ ArtifactStorage = (*FileSystemStorage)(nil)
