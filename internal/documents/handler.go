package documents

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"reviewer-backend/internal/shared/server/middleware"
	"reviewer-backend/internal/shared/server/respond"
)

const maxUploadSize = 10 << 20 // 10MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the user-facing document routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", middleware.RequireUser(), h.upload)
	rg.GET("/documents", middleware.RequireUser(), h.list)
	rg.GET("/documents/:id/text", middleware.RequireUser(), h.text)
	rg.GET("/documents/:id/download", middleware.RequireUser(), h.download)
	rg.DELETE("/documents/:id", middleware.RequireUser(), h.delete)

	rg.GET("/library", h.library)
	rg.GET("/library/:id/download", h.libraryDownload)
}

// RegisterAdminRoutes attaches the admin document routes.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.adminUpload)
	rg.GET("/documents", h.adminList)
	rg.POST("/documents/:id/downloadable", h.adminToggle)
	rg.DELETE("/documents/:id", h.adminDelete)
	rg.GET("/users/:email/documents", h.adminAuditUserDocs)
}

func (h *Handler) upload(c *gin.Context) {
	email := middleware.UserEmailFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unable to read file", nil)
		return
	}
	defer file.Close()

	doc, err := h.Svc.UploadUserDoc(c.Request.Context(), email,
		middleware.ClientIPFromContext(c), fileHeader.Filename, file)
	if err != nil {
		h.writeError(c, err, "failed to upload document")
		return
	}
	respond.JSON(c, http.StatusCreated, toUserDocResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	docs, err := h.Svc.ListUserDocs(c.Request.Context(), middleware.UserEmailFromContext(c))
	if err != nil {
		h.writeError(c, err, "failed to list documents")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"documents": toUserDocResponses(docs)})
}

func (h *Handler) text(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	doc, err := h.Svc.UserDocText(c.Request.Context(), middleware.UserEmailFromContext(c), id)
	if err != nil {
		h.writeError(c, err, "failed to load document text")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"docId":    doc.ID,
		"fileName": doc.FileName,
		"text":     doc.ExtractedText,
		"textHash": doc.TextHash,
	})
}

func (h *Handler) download(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	doc, reader, err := h.Svc.OpenUserDoc(c.Request.Context(), middleware.UserEmailFromContext(c), id)
	if err != nil {
		h.writeError(c, err, "failed to open document")
		return
	}
	defer reader.Close()
	streamFile(c, doc.FileName, doc.FileType, reader)
}

func (h *Handler) delete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	err := h.Svc.DeleteUserDoc(c.Request.Context(), middleware.UserEmailFromContext(c), id)
	if err != nil {
		h.writeError(c, err, "failed to delete document")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"docId": id, "deleted": true})
}

func (h *Handler) library(c *gin.Context) {
	docs, err := h.Svc.Library(c.Request.Context(), strings.TrimSpace(c.Query("category")))
	if err != nil {
		h.writeError(c, err, "failed to list library")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"documents": toLibraryResponses(docs)})
}

func (h *Handler) libraryDownload(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	doc, reader, err := h.Svc.OpenLibraryDoc(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "failed to open library document")
		return
	}
	defer reader.Close()
	streamFile(c, doc.FileName, doc.FileType, reader)
}

func (h *Handler) adminUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "file is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unable to read file", nil)
		return
	}
	defer file.Close()

	downloadable := c.PostForm("downloadable") == "true"
	doc, err := h.Svc.UploadAdminDoc(c.Request.Context(), middleware.AdminUserFromContext(c),
		fileHeader.Filename, c.PostForm("category"), downloadable, file)
	if err != nil {
		h.writeError(c, err, "failed to upload document")
		return
	}
	respond.JSON(c, http.StatusCreated, doc)
}

func (h *Handler) adminList(c *gin.Context) {
	includeDeleted := c.Query("includeDeleted") == "true"
	docs, err := h.Svc.ListAdminDocs(c.Request.Context(), strings.TrimSpace(c.Query("category")), includeDeleted)
	if err != nil {
		h.writeError(c, err, "failed to list documents")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"documents": docs})
}

type toggleRequest struct {
	Downloadable *bool `json:"downloadable" binding:"required"`
}

func (h *Handler) adminToggle(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Downloadable == nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "downloadable is required", nil)
		return
	}
	err := h.Svc.SetAdminDocDownloadable(c.Request.Context(), middleware.AdminUserFromContext(c), id, *req.Downloadable)
	if err != nil {
		h.writeError(c, err, "failed to update document")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"adminDocId": id, "isDownloadable": *req.Downloadable})
}

func (h *Handler) adminDelete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	err := h.Svc.DeleteAdminDoc(c.Request.Context(), middleware.AdminUserFromContext(c), id)
	if err != nil {
		h.writeError(c, err, "failed to delete document")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"adminDocId": id, "deleted": true})
}

func (h *Handler) adminAuditUserDocs(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.Param("email")))
	if _, err := mail.ParseAddress(email); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid email address", nil)
		return
	}
	docs, err := h.Svc.AuditUserDocs(c.Request.Context(), middleware.AdminUserFromContext(c), email)
	if err != nil {
		h.writeError(c, err, "failed to list user documents")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"email": email, "documents": toUserDocResponses(docs)})
}

func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "document not found", nil)
	case errors.Is(err, ErrNotDownloadable):
		respond.Error(c, http.StatusForbidden, respond.CodeNotFound, "document not downloadable", nil)
	case errors.Is(err, ErrConstraint):
		respond.Error(c, http.StatusUnprocessableEntity, respond.CodeConstraintViolation, "the store rejected the request", nil)
	case errors.Is(err, ErrStoreUnavailable):
		respond.Error(c, http.StatusServiceUnavailable, respond.CodeStoreUnavailable, "store temporarily unavailable", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, fallback, nil)
	}
}

func streamFile(c *gin.Context, fileName, fileType string, reader io.Reader) {
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	c.Header("Content-Type", fileType)
	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid document id", nil)
		return 0, false
	}
	return id, true
}
