package documents

import "time"

// UserDocument is a review file uploaded by a user. Deletion is a soft flag;
// the row and the stored object stay for admin audit.
type UserDocument struct {
	ID            int64     `json:"docId"`
	Email         string    `json:"email"`
	FileName      string    `json:"fileName"`
	FileType      string    `json:"fileType,omitempty"`
	StoragePath   string    `json:"-"`
	TextStagePath string    `json:"-"`
	ExtractedText string    `json:"-"`
	TextHash      string    `json:"textHash,omitempty"`
	IsDeleted     bool      `json:"isDeleted"`
	UploadedAt    time.Time `json:"uploadedAt"`
}

// AdminDocument is shared reference material published by admins. Users only
// ever see downloadable, non-deleted documents.
type AdminDocument struct {
	ID             int64     `json:"adminDocId"`
	FileName       string    `json:"fileName"`
	FileType       string    `json:"fileType,omitempty"`
	StoragePath    string    `json:"-"`
	TextStagePath  string    `json:"-"`
	IsDownloadable bool      `json:"isDownloadable"`
	UploadedBy     string    `json:"uploadedBy"`
	Category       string    `json:"category"`
	FileContent    string    `json:"-"`
	ExtractedText  string    `json:"-"`
	TextHash       string    `json:"textHash,omitempty"`
	IsDeleted      bool      `json:"isDeleted"`
	UploadedAt     time.Time `json:"uploadedAt"`
}

// DefaultCategory is assigned when an admin upload names no category.
const DefaultCategory = "General"
