package widget

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/northbeam/portal-api/model"
	"go.uber.org/zap"
)

// MaxUploadBytes is the client-side attachment ceiling
const MaxUploadBytes = 20 * 1024 * 1024

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds the 20MB limit")
)

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".md":   true,
	".json": true,
	".csv":  true,
}

// ValidateAttachment applies the widget's type and size rules
func ValidateAttachment(fileName string, size int) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}
	if size > MaxUploadBytes {
		return ErrFileTooLarge
	}
	return nil
}

// UploadFile sends an attachment to the orchestrator and returns its descriptor.
// The caller attaches the descriptor to the next SendMessage; on error nothing
// should be sent.
func (s *Session) UploadFile(ctx context.Context, fileName string, data []byte) (FileDescriptor, error) {
	if err := ValidateAttachment(fileName, len(data)); err != nil {
		return FileDescriptor{}, err
	}

	s.mu.Lock()
	if s.isCompleted || s.closed {
		s.mu.Unlock()
		return FileDescriptor{}, ErrSessionCompleted
	}
	if s.isLoading || s.isUploading {
		s.mu.Unlock()
		return FileDescriptor{}, ErrExchangeInFlight
	}
	s.isUploading = true
	req := s.requestLocked(model.ActionUploadFile)
	s.mu.Unlock()
	s.notify()

	defer func() {
		s.mu.Lock()
		s.isUploading = false
		s.mu.Unlock()
		s.notify()
	}()

	req.FileName = filepath.Base(fileName)
	req.FileType = mimetype.Detect(data).String()
	req.FileData = base64.StdEncoding.EncodeToString(data)

	reply, err := s.orchestrator.Send(ctx, req)
	if err != nil {
		s.opts.logger.Warn("File upload failed", zap.String("session_id", s.form.SessionID), zap.String("file", req.FileName), zap.Error(err))
		return FileDescriptor{}, err
	}
	if reply == nil || reply.FileID == "" {
		return FileDescriptor{}, errors.New("upload response did not include a file id")
	}

	name := reply.FileName
	if name == "" {
		name = req.FileName
	}
	return FileDescriptor{ID: reply.FileID, Name: name}, nil
}
