package documents

import "time"

// UserDocResponse is the outward-facing representation of a user document.
type UserDocResponse struct {
	DocID      int64     `json:"docId"`
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType,omitempty"`
	HasText    bool      `json:"hasText"`
	IsDeleted  bool      `json:"isDeleted"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func toUserDocResponse(doc UserDocument) UserDocResponse {
	return UserDocResponse{
		DocID:      doc.ID,
		FileName:   doc.FileName,
		FileType:   doc.FileType,
		HasText:    doc.ExtractedText != "",
		IsDeleted:  doc.IsDeleted,
		UploadedAt: doc.UploadedAt,
	}
}

func toUserDocResponses(docs []UserDocument) []UserDocResponse {
	out := make([]UserDocResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toUserDocResponse(doc))
	}
	return out
}

// LibraryDocResponse is the user-visible representation of a published admin
// document.
type LibraryDocResponse struct {
	AdminDocID int64     `json:"adminDocId"`
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType,omitempty"`
	Category   string    `json:"category"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func toLibraryResponses(docs []AdminDocument) []LibraryDocResponse {
	out := make([]LibraryDocResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, LibraryDocResponse{
			AdminDocID: doc.ID,
			FileName:   doc.FileName,
			FileType:   doc.FileType,
			Category:   doc.Category,
			UploadedAt: doc.UploadedAt,
		})
	}
	return out
}
