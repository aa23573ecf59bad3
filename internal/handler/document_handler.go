package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/umscc/permit-api/internal/models"
	"github.com/umscc/permit-api/internal/service"
	appErrors "github.com/umscc/permit-api/pkg/errors"
	"github.com/umscc/permit-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, applicationID string, upload service.DocumentUpload, actor *models.JWTClaims) (*models.DocumentRef, error)
	List(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.DocumentRef, error)
	SignedURL(ctx context.Context, documentID string, actor *models.JWTClaims) (string, time.Time, error)
	Download(ctx context.Context, token string) (*service.DocumentDownload, error)
}

// DocumentHandler exposes attachment endpoints.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Upload godoc
// @Summary Attach a document to an application
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Application ID"
// @Param document_type formData string true "Document type"
// @Param file formData file true "File"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	upload := service.DocumentUpload{
		Filename:     fileHeader.Filename,
		DocumentType: c.PostForm("document_type"),
		Size:         fileHeader.Size,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		Content:      file,
	}
	doc, err := h.service.Upload(c.Request.Context(), c.Param("id"), upload, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// List godoc
// @Summary List an application's documents
// @Tags Documents
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	docs, err := h.service.List(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// SignedURL godoc
// @Summary Issue a signed download link for a document
// @Tags Documents
// @Produce json
// @Param documentId path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{documentId}/signed-url [post]
func (h *DocumentHandler) SignedURL(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	token, expiresAt, err := h.service.SignedURL(c.Request.Context(), c.Param("documentId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	}, nil)
}

// Download godoc
// @Summary Download a document with a signed token
// @Tags Documents
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.DataFromReader(http.StatusOK, download.SizeBytes, download.MimeType, download.File, nil)
}
