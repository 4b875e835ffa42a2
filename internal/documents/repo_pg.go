package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reviewer-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const userDocColumns = `doc_id, email, file_name, file_type, storage_path, text_stage_path, extracted_text, text_hash, is_deleted, uploaded_at`

const adminDocColumns = `admin_doc_id, file_name, file_type, storage_path, text_stage_path, is_downloadable, uploaded_by, category, file_content, extracted_text, text_hash, is_deleted, uploaded_at`

func (r *PGRepo) CreateUserDoc(ctx context.Context, doc UserDocument) (UserDocument, error) {
	row := r.DB.QueryRowContext(ctx, `
INSERT INTO user_documents (email, file_name, file_type, storage_path, text_stage_path, extracted_text, text_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+userDocColumns,
		doc.Email, doc.FileName, nullableString(doc.FileType), doc.StoragePath,
		nullableString(doc.TextStagePath), nullableString(doc.ExtractedText), nullableString(doc.TextHash))
	created, err := scanUserDoc(row)
	if err != nil {
		return UserDocument{}, classify(err)
	}
	return created, nil
}

func (r *PGRepo) GetUserDoc(ctx context.Context, email string, id int64, includeDeleted bool) (UserDocument, error) {
	query := `
SELECT ` + userDocColumns + ` FROM user_documents WHERE email = $1 AND doc_id = $2`
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	doc, err := scanUserDoc(r.DB.QueryRowContext(ctx, query+` LIMIT 1`, email, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserDocument{}, ErrNotFound
		}
		return UserDocument{}, classify(err)
	}
	return doc, nil
}

func (r *PGRepo) ListUserDocs(ctx context.Context, email string, includeDeleted bool) ([]UserDocument, error) {
	query := `
SELECT ` + userDocColumns + ` FROM user_documents WHERE email = $1`
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY uploaded_at DESC`, email)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []UserDocument
	for rows.Next() {
		doc, err := scanUserDoc(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *PGRepo) SoftDeleteUserDoc(ctx context.Context, email string, id int64) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE user_documents SET is_deleted = TRUE
WHERE email = $1 AND doc_id = $2 AND is_deleted = FALSE`, email, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) CreateAdminDoc(ctx context.Context, doc AdminDocument) (AdminDocument, error) {
	category := doc.Category
	if category == "" {
		category = DefaultCategory
	}
	row := r.DB.QueryRowContext(ctx, `
INSERT INTO admin_documents (file_name, file_type, storage_path, text_stage_path, is_downloadable, uploaded_by, category, file_content, extracted_text, text_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+adminDocColumns,
		doc.FileName, nullableString(doc.FileType), doc.StoragePath, nullableString(doc.TextStagePath),
		doc.IsDownloadable, doc.UploadedBy, category,
		nullableString(doc.FileContent), nullableString(doc.ExtractedText), nullableString(doc.TextHash))
	created, err := scanAdminDoc(row)
	if err != nil {
		return AdminDocument{}, classify(err)
	}
	return created, nil
}

func (r *PGRepo) GetAdminDoc(ctx context.Context, id int64, includeDeleted bool) (AdminDocument, error) {
	query := `
SELECT ` + adminDocColumns + ` FROM admin_documents WHERE admin_doc_id = $1`
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	doc, err := scanAdminDoc(r.DB.QueryRowContext(ctx, query+` LIMIT 1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AdminDocument{}, ErrNotFound
		}
		return AdminDocument{}, classify(err)
	}
	return doc, nil
}

func (r *PGRepo) ListAdminDocs(ctx context.Context, category string, includeDeleted bool) ([]AdminDocument, error) {
	query := `
SELECT ` + adminDocColumns + ` FROM admin_documents WHERE 1=1`
	args := []any{}
	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if !includeDeleted {
		query += ` AND is_deleted = FALSE`
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY uploaded_at DESC`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []AdminDocument
	for rows.Next() {
		doc, err := scanAdminDoc(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *PGRepo) SetAdminDocDownloadable(ctx context.Context, id int64, downloadable bool) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE admin_documents SET is_downloadable = $1
WHERE admin_doc_id = $2 AND is_deleted = FALSE`, downloadable, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) SoftDeleteAdminDoc(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE admin_documents SET is_deleted = TRUE
WHERE admin_doc_id = $1 AND is_deleted = FALSE`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserDoc(row rowScanner) (UserDocument, error) {
	var doc UserDocument
	var fileType, stagePath, text, hash sql.NullString
	err := row.Scan(
		&doc.ID,
		&doc.Email,
		&doc.FileName,
		&fileType,
		&doc.StoragePath,
		&stagePath,
		&text,
		&hash,
		&doc.IsDeleted,
		&doc.UploadedAt,
	)
	if err != nil {
		return UserDocument{}, err
	}
	doc.FileType = fileType.String
	doc.TextStagePath = stagePath.String
	doc.ExtractedText = text.String
	doc.TextHash = hash.String
	return doc, nil
}

func scanAdminDoc(row rowScanner) (AdminDocument, error) {
	var doc AdminDocument
	var fileType, stagePath, content, text, hash sql.NullString
	err := row.Scan(
		&doc.ID,
		&doc.FileName,
		&fileType,
		&doc.StoragePath,
		&stagePath,
		&doc.IsDownloadable,
		&doc.UploadedBy,
		&doc.Category,
		&content,
		&text,
		&hash,
		&doc.IsDeleted,
		&doc.UploadedAt,
	)
	if err != nil {
		return AdminDocument{}, err
	}
	doc.FileType = fileType.String
	doc.TextStagePath = stagePath.String
	doc.FileContent = content.String
	doc.ExtractedText = text.String
	doc.TextHash = hash.String
	return doc, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if db.IsConstraintViolation(err) {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	if db.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

var _ Repo = (*PGRepo)(nil)
