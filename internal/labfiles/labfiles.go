// Package labfiles manages labs and the single document each lab may hold.
package labfiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"lab-booking-backend/internal/model"
	"lab-booking-backend/internal/store"
)

// Kind classifies a lab or document failure.
type Kind int

const (
	KindInvalid Kind = iota + 1
	KindNotFound
	KindConflict
	KindTooLarge
)

// Error is a failure whose message is shown to the caller.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrLabNameRequired = &Error{Kind: KindInvalid, Message: "Lab name is required"}
	ErrInvalidLabName  = &Error{Kind: KindInvalid, Message: "Invalid lab name"}
	ErrLabExists       = &Error{Kind: KindConflict, Message: "Lab already exists"}
	ErrLabNotFound     = &Error{Kind: KindNotFound, Message: "Lab not found"}
	ErrFileRequired    = &Error{Kind: KindInvalid, Message: "Lab name and file are required"}
	ErrInvalidType     = &Error{Kind: KindInvalid, Message: "Invalid file type. Only PDF, DOC, DOCX, and TXT files are allowed."}
	ErrFileExists      = &Error{Kind: KindConflict, Message: "Only one file is allowed at a time."}
	ErrFileNotFound    = &Error{Kind: KindNotFound, Message: "File not found"}
	ErrFileTooLarge    = &Error{Kind: KindTooLarge, Message: "File is too large"}
)

var allowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

// Service stores lab documents under baseDir/<lab name>.
type Service struct {
	labs     store.LabStore
	baseDir  string
	maxBytes int64
	logger   *zap.Logger
}

// NewService creates a lab document service.
func NewService(labs store.LabStore, baseDir string, maxBytes int64, logger *zap.Logger) *Service {
	return &Service{labs: labs, baseDir: baseDir, maxBytes: maxBytes, logger: logger.Named("labfiles")}
}

// ListLabs returns all lab names sorted by name.
func (s *Service) ListLabs(ctx context.Context) ([]string, error) {
	labs, err := s.labs.ListLabs(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(labs))
	for _, l := range labs {
		names = append(names, l.Name)
	}
	return names, nil
}

func validLabName(name string) bool {
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// AddLab creates the lab and its document folder.
func (s *Service) AddLab(ctx context.Context, name, createdBy string) (*model.Lab, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrLabNameRequired
	}
	if !validLabName(name) {
		return nil, ErrInvalidLabName
	}

	lab := &model.Lab{
		Name:       name,
		CreatedBy:  createdBy,
		FolderPath: filepath.Join(s.baseDir, name),
	}
	if err := s.labs.CreateLab(ctx, lab); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrLabExists
		}
		return nil, err
	}
	if err := os.MkdirAll(lab.FolderPath, 0o755); err != nil {
		return nil, fmt.Errorf("create lab folder: %w", err)
	}
	s.logger.Info("lab created", zap.String("lab", name), zap.String("by", createdBy))
	return lab, nil
}

func (s *Service) lab(ctx context.Context, name string) (*model.Lab, error) {
	if name == "" {
		return nil, ErrLabNameRequired
	}
	lab, err := s.labs.GetLab(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrLabNotFound
	}
	return lab, err
}

// cleanName strips any directory part from a client supplied file name.
func cleanName(name string) (string, bool) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == "." || base == ".." {
		return "", false
	}
	return base, true
}

// Upload stores the lab's document. Only one document per lab is allowed.
func (s *Service) Upload(ctx context.Context, labName, fileName string, r io.Reader) error {
	lab, err := s.lab(ctx, labName)
	if err != nil {
		return err
	}
	name, ok := cleanName(fileName)
	if !ok || r == nil {
		return ErrFileRequired
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return ErrFileTooLarge
	}
	mt := mimetype.Detect(data)
	if !allowed(mt) {
		s.logger.Debug("rejected upload", zap.String("lab", labName), zap.String("mime", mt.String()))
		return ErrInvalidType
	}

	if err := os.MkdirAll(lab.FolderPath, 0o755); err != nil {
		return fmt.Errorf("create lab folder: %w", err)
	}
	entries, err := os.ReadDir(lab.FolderPath)
	if err != nil {
		return fmt.Errorf("read lab folder: %w", err)
	}
	if len(entries) > 0 {
		return ErrFileExists
	}

	f, err := os.OpenFile(filepath.Join(lab.FolderPath, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return ErrFileExists
	}
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	s.logger.Info("file uploaded", zap.String("lab", labName), zap.String("file", name), zap.String("mime", mt.String()))
	return nil
}

func allowed(mt *mimetype.MIME) bool {
	for _, t := range allowedTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

// List returns the names of the lab's documents.
func (s *Service) List(ctx context.Context, labName string) ([]string, error) {
	lab, err := s.lab(ctx, labName)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(lab.FolderPath)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read lab folder: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Path returns the location of a lab document for download.
func (s *Service) Path(ctx context.Context, labName, fileName string) (string, error) {
	lab, err := s.lab(ctx, labName)
	if err != nil {
		return "", err
	}
	name, ok := cleanName(fileName)
	if !ok {
		return "", ErrFileNotFound
	}
	path := filepath.Join(lab.FolderPath, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrFileNotFound
	}
	return path, nil
}

// Delete removes a lab document, and the lab folder once it is empty.
func (s *Service) Delete(ctx context.Context, labName, fileName string) error {
	path, err := s.Path(ctx, labName, fileName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	dir := filepath.Dir(path)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if err := os.Remove(dir); err != nil {
			s.logger.Warn("failed to remove empty lab folder", zap.String("dir", dir), zap.Error(err))
		}
	}
	s.logger.Info("file deleted", zap.String("lab", labName), zap.String("file", filepath.Base(path)))
	return nil
}
