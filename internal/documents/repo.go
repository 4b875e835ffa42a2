package documents

import "context"

// Repo defines persistence for user and admin documents. Deletes are soft:
// rows flip is_deleted and drop out of user-facing reads only.
type Repo interface {
	CreateUserDoc(ctx context.Context, doc UserDocument) (UserDocument, error)
	GetUserDoc(ctx context.Context, email string, id int64, includeDeleted bool) (UserDocument, error)
	ListUserDocs(ctx context.Context, email string, includeDeleted bool) ([]UserDocument, error)
	SoftDeleteUserDoc(ctx context.Context, email string, id int64) error

	CreateAdminDoc(ctx context.Context, doc AdminDocument) (AdminDocument, error)
	GetAdminDoc(ctx context.Context, id int64, includeDeleted bool) (AdminDocument, error)
	ListAdminDocs(ctx context.Context, category string, includeDeleted bool) ([]AdminDocument, error)
	SetAdminDocDownloadable(ctx context.Context, id int64, downloadable bool) error
	SoftDeleteAdminDoc(ctx context.Context, id int64) error
}
