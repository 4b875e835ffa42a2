package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"reviewer-backend/internal/accounting"
	"reviewer-backend/internal/audit"
	"reviewer-backend/internal/extract"
	"reviewer-backend/internal/shared/storage/object"
	"reviewer-backend/internal/shared/telemetry"
	"reviewer-backend/internal/shared/util"
)

const (
	libraryCacheTTL = 5 * time.Minute
	adminOwner      = "admin"
)

// Service contains business logic for user uploads and the shared admin
// document library. Library listings are cached; any admin mutation flushes
// the cache.
type Service struct {
	Repo     Repo
	Store    object.ObjectStore
	Audit    audit.Recorder
	Accounts accounting.Store
	cache    *gocache.Cache
}

// NewService constructs the documents service.
func NewService(repo Repo, store object.ObjectStore, recorder audit.Recorder, accounts accounting.Store) *Service {
	return &Service{
		Repo:     repo,
		Store:    store,
		Audit:    recorder,
		Accounts: accounts,
		cache:    gocache.New(libraryCacheTTL, 10*time.Minute),
	}
}

// UploadUserDoc stores the file, extracts its text synchronously, and records
// the document. The owner's account row is created on first touch, so an
// upload can be a user's very first request. Extraction failure is not fatal:
// the file is kept and the text columns stay empty.
func (s *Service) UploadUserDoc(ctx context.Context, email, ip, fileName string, r io.Reader) (UserDocument, error) {
	fileName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return UserDocument{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if _, err := s.Accounts.GetOrCreateUser(ctx, email, ip); err != nil {
		if errors.Is(err, accounting.ErrStoreUnavailable) {
			return UserDocument{}, ErrStoreUnavailable
		}
		return UserDocument{}, fmt.Errorf("ensure owner account: %w", err)
	}

	storageKey, _, mimeType, err := s.Store.Save(ctx, email, fileName, r)
	if err != nil {
		return UserDocument{}, err
	}

	doc := UserDocument{
		Email:       email,
		FileName:    fileName,
		FileType:    mimeType,
		StoragePath: storageKey,
	}

	text, stageKey, err := extract.ExtractText(ctx, s.Store, storageKey, mimeType, fileName)
	if err != nil {
		telemetry.Warn("document text extraction failed", map[string]any{
			"err":  err.Error(),
			"key":  storageKey,
			"mime": mimeType,
		})
	} else {
		doc.ExtractedText = text
		doc.TextStagePath = stageKey
		doc.TextHash = util.TextHash(text)
	}

	return s.Repo.CreateUserDoc(ctx, doc)
}

// ListUserDocs returns the user's own non-deleted documents.
func (s *Service) ListUserDocs(ctx context.Context, email string) ([]UserDocument, error) {
	return s.Repo.ListUserDocs(ctx, email, false)
}

// UserDocText returns the extracted text of one of the user's documents.
func (s *Service) UserDocText(ctx context.Context, email string, id int64) (UserDocument, error) {
	return s.Repo.GetUserDoc(ctx, email, id, false)
}

// OpenUserDoc streams the original uploaded file back to its owner.
func (s *Service) OpenUserDoc(ctx context.Context, email string, id int64) (UserDocument, io.ReadCloser, error) {
	doc, err := s.Repo.GetUserDoc(ctx, email, id, false)
	if err != nil {
		return UserDocument{}, nil, err
	}
	reader, err := s.Store.Open(ctx, doc.StoragePath)
	if err != nil {
		return UserDocument{}, nil, err
	}
	return doc, reader, nil
}

// DeleteUserDoc soft-deletes; the stored object stays for audit.
func (s *Service) DeleteUserDoc(ctx context.Context, email string, id int64) error {
	return s.Repo.SoftDeleteUserDoc(ctx, email, id)
}

// AuditUserDocs lists a user's documents for admins, deleted rows included,
// and leaves an audit trail of the access.
func (s *Service) AuditUserDocs(ctx context.Context, adminUser, email string) ([]UserDocument, error) {
	docs, err := s.Repo.ListUserDocs(ctx, email, true)
	if err != nil {
		return nil, err
	}
	s.record(ctx, adminUser, audit.ActionUserDocumentAudit, fmt.Sprintf("email=%s docs=%d", email, len(docs)))
	return docs, nil
}

// UploadAdminDoc publishes a document to the shared library.
func (s *Service) UploadAdminDoc(ctx context.Context, adminUser, fileName, category string, downloadable bool, r io.Reader) (AdminDocument, error) {
	fileName, err := util.SanitizeFileName(fileName)
	if err != nil {
		return AdminDocument{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	category = strings.TrimSpace(category)

	raw, err := io.ReadAll(r)
	if err != nil {
		return AdminDocument{}, fmt.Errorf("%w: read upload: %v", ErrInvalidInput, err)
	}

	storageKey, _, mimeType, err := s.Store.Save(ctx, adminOwner, fileName, bytes.NewReader(raw))
	if err != nil {
		return AdminDocument{}, err
	}

	doc := AdminDocument{
		FileName:       fileName,
		FileType:       mimeType,
		StoragePath:    storageKey,
		IsDownloadable: downloadable,
		UploadedBy:     adminUser,
		Category:       category,
	}

	text, stageKey, err := extract.ExtractText(ctx, s.Store, storageKey, mimeType, fileName)
	if err != nil {
		telemetry.Warn("admin document text extraction failed", map[string]any{
			"err":  err.Error(),
			"key":  storageKey,
			"mime": mimeType,
		})
	} else {
		doc.ExtractedText = text
		doc.FileContent = text
		doc.TextStagePath = stageKey
		doc.TextHash = util.TextHash(text)
	}

	created, err := s.Repo.CreateAdminDoc(ctx, doc)
	if err != nil {
		return AdminDocument{}, err
	}
	s.cache.Flush()
	s.record(ctx, adminUser, audit.ActionDocumentUploaded,
		fmt.Sprintf("adminDoc=%d file=%s category=%s", created.ID, created.FileName, created.Category))
	return created, nil
}

// Library returns the downloadable admin documents users may browse. Served
// from cache when warm.
func (s *Service) Library(ctx context.Context, category string) ([]AdminDocument, error) {
	key := "library:" + category
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]AdminDocument), nil
	}

	docs, err := s.Repo.ListAdminDocs(ctx, category, false)
	if err != nil {
		return nil, err
	}
	published := make([]AdminDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.IsDownloadable {
			published = append(published, doc)
		}
	}
	s.cache.Set(key, published, gocache.DefaultExpiration)
	return published, nil
}

// OpenLibraryDoc streams a published admin document to a user.
func (s *Service) OpenLibraryDoc(ctx context.Context, id int64) (AdminDocument, io.ReadCloser, error) {
	doc, err := s.Repo.GetAdminDoc(ctx, id, false)
	if err != nil {
		return AdminDocument{}, nil, err
	}
	if !doc.IsDownloadable {
		return AdminDocument{}, nil, ErrNotDownloadable
	}
	reader, err := s.Store.Open(ctx, doc.StoragePath)
	if err != nil {
		return AdminDocument{}, nil, err
	}
	return doc, reader, nil
}

// ListAdminDocs is the admin view: all categories, optionally deleted rows.
func (s *Service) ListAdminDocs(ctx context.Context, category string, includeDeleted bool) ([]AdminDocument, error) {
	return s.Repo.ListAdminDocs(ctx, category, includeDeleted)
}

// SetAdminDocDownloadable publishes or unpublishes a library document.
func (s *Service) SetAdminDocDownloadable(ctx context.Context, adminUser string, id int64, downloadable bool) error {
	if err := s.Repo.SetAdminDocDownloadable(ctx, id, downloadable); err != nil {
		return err
	}
	s.cache.Flush()
	s.record(ctx, adminUser, audit.ActionDocumentToggled,
		fmt.Sprintf("adminDoc=%d downloadable=%t", id, downloadable))
	return nil
}

// DeleteAdminDoc soft-deletes a library document.
func (s *Service) DeleteAdminDoc(ctx context.Context, adminUser string, id int64) error {
	if err := s.Repo.SoftDeleteAdminDoc(ctx, id); err != nil {
		return err
	}
	s.cache.Flush()
	s.record(ctx, adminUser, audit.ActionDocumentDeleted, fmt.Sprintf("adminDoc=%d", id))
	return nil
}

func (s *Service) record(ctx context.Context, adminUser, actionType, details string) {
	if s.Audit == nil {
		return
	}
	err := s.Audit.Record(ctx, audit.Action{
		AdminUser:  adminUser,
		ActionType: actionType,
		Details:    details,
	})
	if err != nil {
		telemetry.Error("audit record failed", map[string]any{
			"err":        err.Error(),
			"actionType": actionType,
			"adminUser":  adminUser,
		})
	}
}
