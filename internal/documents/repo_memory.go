package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo implements Repo in memory for dev mode and tests.
type MemoryRepo struct {
	mu        sync.Mutex
	userDocs  map[int64]*UserDocument
	adminDocs map[int64]*AdminDocument
	nextID    int64
}

// NewMemoryRepo constructs an empty in-memory documents repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		userDocs:  make(map[int64]*UserDocument),
		adminDocs: make(map[int64]*AdminDocument),
		nextID:    1,
	}
}

func (r *MemoryRepo) CreateUserDoc(ctx context.Context, doc UserDocument) (UserDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc.ID = r.nextID
	r.nextID++
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	stored := doc
	r.userDocs[doc.ID] = &stored
	return doc, nil
}

func (r *MemoryRepo) GetUserDoc(ctx context.Context, email string, id int64, includeDeleted bool) (UserDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.userDocs[id]
	if !ok || doc.Email != email || (doc.IsDeleted && !includeDeleted) {
		return UserDocument{}, ErrNotFound
	}
	return *doc, nil
}

func (r *MemoryRepo) ListUserDocs(ctx context.Context, email string, includeDeleted bool) ([]UserDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []UserDocument
	for _, doc := range r.userDocs {
		if doc.Email != email {
			continue
		}
		if doc.IsDeleted && !includeDeleted {
			continue
		}
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (r *MemoryRepo) SoftDeleteUserDoc(ctx context.Context, email string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.userDocs[id]
	if !ok || doc.Email != email || doc.IsDeleted {
		return ErrNotFound
	}
	doc.IsDeleted = true
	return nil
}

// PurgeOwner drops every document owned by an email. Registered with the
// accounting memory store's delete hook, standing in for the Postgres FK
// cascade on user deletion.
func (r *MemoryRepo) PurgeOwner(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, doc := range r.userDocs {
		if doc.Email == email {
			delete(r.userDocs, id)
		}
	}
}

func (r *MemoryRepo) CreateAdminDoc(ctx context.Context, doc AdminDocument) (AdminDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc.ID = r.nextID
	r.nextID++
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Category == "" {
		doc.Category = DefaultCategory
	}
	stored := doc
	r.adminDocs[doc.ID] = &stored
	return doc, nil
}

func (r *MemoryRepo) GetAdminDoc(ctx context.Context, id int64, includeDeleted bool) (AdminDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.adminDocs[id]
	if !ok || (doc.IsDeleted && !includeDeleted) {
		return AdminDocument{}, ErrNotFound
	}
	return *doc, nil
}

func (r *MemoryRepo) ListAdminDocs(ctx context.Context, category string, includeDeleted bool) ([]AdminDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []AdminDocument
	for _, doc := range r.adminDocs {
		if category != "" && doc.Category != category {
			continue
		}
		if doc.IsDeleted && !includeDeleted {
			continue
		}
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (r *MemoryRepo) SetAdminDocDownloadable(ctx context.Context, id int64, downloadable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.adminDocs[id]
	if !ok || doc.IsDeleted {
		return ErrNotFound
	}
	doc.IsDownloadable = downloadable
	return nil
}

func (r *MemoryRepo) SoftDeleteAdminDoc(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.adminDocs[id]
	if !ok || doc.IsDeleted {
		return ErrNotFound
	}
	doc.IsDeleted = true
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
