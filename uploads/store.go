// Package uploads stores chat attachments on local disk.
package uploads

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"campusmart/apperr"
	"campusmart/models"
)

// AllowedExtensions lists the attachment types users may upload
var AllowedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".pdf", ".doc", ".docx"}

const sniffLen = 3072

// Store writes attachments under dir and serves them from urlPrefix
type Store struct {
	dir       string
	urlPrefix string
	maxBytes  int64
	log       *slog.Logger
}

// NewStore creates dir if needed
func NewStore(dir, urlPrefix string, maxBytes int64, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		dir:       dir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		maxBytes:  maxBytes,
		log:       log,
	}, nil
}

// Save checks the name and size of an attachment and writes it to disk.
// size is the declared size, or a negative value when unknown.
func (s *Store) Save(r io.Reader, originalName string, size int64) (*models.StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !lo.Contains(AllowedExtensions, ext) {
		return nil, apperr.Validation("Only images, PDFs and Word documents are allowed")
	}
	if size > s.maxBytes {
		return nil, apperr.Validation(fmt.Sprintf("File exceeds the %d byte limit", s.maxBytes))
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, apperr.Internal(fmt.Errorf("read upload: %w", err))
	}
	head = head[:n]
	if n == 0 {
		return nil, apperr.Validation("File is empty")
	}
	mime := mimetype.Detect(head)

	name := "chat-" + uuid.NewString() + ext
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("create upload: %w", err))
	}

	// one byte over the limit is enough to know the file is too large
	written, err := io.Copy(f, io.LimitReader(io.MultiReader(bytes.NewReader(head), r), s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, apperr.Internal(fmt.Errorf("write upload: %w", err))
	}
	if written > s.maxBytes {
		os.Remove(path)
		return nil, apperr.Validation(fmt.Sprintf("File exceeds the %d byte limit", s.maxBytes))
	}

	s.log.Debug("Stored upload", "name", name, "mime", mime.String(), "size", written)
	return &models.StoredFile{
		URL:      s.urlPrefix + "/" + name,
		MimeType: mime.String(),
		Name:     originalName,
		Path:     path,
		Size:     written,
	}, nil
}

// Remove deletes a stored file, used when the message referencing it could not be saved
func (s *Store) Remove(file *models.StoredFile) error {
	if file == nil || file.Path == "" {
		return nil
	}
	if err := os.Remove(file.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Handler serves stored attachments at their URLs. Directories are reported
// as missing so the attachment names cannot be listed.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(s.urlPrefix+"/", http.FileServer(filesOnly{http.Dir(s.dir)}))
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
