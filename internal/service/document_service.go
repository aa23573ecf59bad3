package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/umscc/permit-api/internal/models"
	appErrors "github.com/umscc/permit-api/pkg/errors"
)

type documentStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	AddDocument(ctx context.Context, doc *models.DocumentRef) error
	GetDocument(ctx context.Context, id string) (*models.DocumentRef, error)
	ListDocuments(ctx context.Context, applicationID string) ([]models.DocumentRef, error)
}

type documentFileStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type documentSignedURLSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (id, relPath string, expiresAt time.Time, err error)
}

// DocumentUpload carries upload metadata and the stream reader.
type DocumentUpload struct {
	Filename     string
	DocumentType string
	Size         int64
	MimeType     string
	Content      io.Reader
}

// DocumentDownload bundles file reader metadata for streaming.
type DocumentDownload struct {
	File      *os.File
	Filename  string
	MimeType  string
	SizeBytes int64
}

// DocumentServiceConfig holds validation parameters.
type DocumentServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
}

// DocumentService manages attachment metadata and storage IO.
type DocumentService struct {
	repo    documentStore
	storage documentFileStorage
	signer  documentSignedURLSigner
	logger  *zap.Logger
	cfg     DocumentServiceConfig
	mimeSet map[string]struct{}
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(repo documentStore, storage documentFileStorage, signer documentSignedURLSigner, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{
			"application/pdf",
			"image/jpeg",
			"image/png",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		}
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &DocumentService{
		repo:    repo,
		storage: storage,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		mimeSet: mimeSet,
	}
}

// Upload validates and stores an attachment for a non-terminal application.
// Approved and rejected applications keep their document set frozen.
func (s *DocumentService) Upload(ctx context.Context, applicationID string, upload DocumentUpload, actor *models.JWTClaims) (*models.DocumentRef, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if upload.Content == nil || strings.TrimSpace(upload.Filename) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a file is required")
	}
	if strings.TrimSpace(upload.DocumentType) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document type is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxFileSize))
	}
	if _, ok := s.mimeSet[strings.ToLower(upload.MimeType)]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported file type: %s", upload.MimeType))
	}

	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "documents cannot be changed after approval or rejection")
	}

	safeName := filepath.Base(upload.Filename)
	relPath := filepath.Join(app.ApplicationID, fmt.Sprintf("%d_%s", time.Now().UnixNano(), safeName))
	if _, err := s.storage.SaveStream(relPath, upload.Content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}

	doc := &models.DocumentRef{
		ApplicationID: app.ID,
		DocumentType:  strings.TrimSpace(upload.DocumentType),
		Filename:      safeName,
		StoragePath:   relPath,
		SizeBytes:     upload.Size,
		MimeType:      strings.ToLower(upload.MimeType),
		UploadedBy:    actor.UserID,
	}
	if err := s.repo.AddDocument(ctx, doc); err != nil {
		if cleanupErr := s.storage.Delete(relPath); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned document file", zap.String("path", relPath), zap.Error(cleanupErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}
	s.logger.Info("document uploaded",
		zap.String("application_id", app.ApplicationID),
		zap.String("document_id", doc.ID),
		zap.String("type", doc.DocumentType),
	)
	return doc, nil
}

// List returns the attachment references for an application.
func (s *DocumentService) List(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.DocumentRef, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, err := s.repo.GetByID(ctx, applicationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	docs, err := s.repo.ListDocuments(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// SignedURL issues a short-lived download token for a document.
func (s *DocumentService) SignedURL(ctx context.Context, documentID string, actor *models.JWTClaims) (string, time.Time, error) {
	if actor == nil {
		return "", time.Time{}, appErrors.ErrUnauthorized
	}
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, appErrors.ErrNotFound
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.StoragePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return token, expiresAt, nil
}

// Download resolves a signed token into a readable file stream.
func (s *DocumentService) Download(ctx context.Context, token string) (*DocumentDownload, error) {
	documentID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.StoragePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token does not match document")
	}
	file, err := s.storage.Open(doc.StoragePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open document")
	}
	return &DocumentDownload{
		File:      file,
		Filename:  doc.Filename,
		MimeType:  doc.MimeType,
		SizeBytes: doc.SizeBytes,
	}, nil
}
