package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"reviewer-backend/internal/accounting"
	"reviewer-backend/internal/audit"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	nextID  int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) Save(ctx context.Context, owner, fileName string, r io.Reader) (string, int64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	key := fmt.Sprintf("%s/%d-%s", owner, s.nextID, fileName)
	s.objects[key] = data
	mime := "application/octet-stream"
	if strings.HasSuffix(fileName, ".txt") {
		mime = "text/plain"
	}
	return key, int64(len(data)), mime, nil
}

func (s *fakeObjectStore) SaveWithKey(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return int64(len(data)), nil
}

func (s *fakeObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestService() (*Service, *audit.MemoryRecorder) {
	recorder := audit.NewMemoryRecorder()
	accounts := accounting.NewMemoryStore(accounting.PlanRules{FreeQuestionLimit: 15})
	return NewService(NewMemoryRepo(), newFakeObjectStore(), recorder, accounts), recorder
}

func TestUploadUserDocExtractsText(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	doc, err := svc.UploadUserDoc(ctx, "a@example.com", "10.0.0.9", "notes.txt", strings.NewReader("remedial law outline"))
	if err != nil {
		t.Fatalf("UploadUserDoc: %v", err)
	}
	if doc.ExtractedText != "remedial law outline" {
		t.Fatalf("ExtractedText = %q", doc.ExtractedText)
	}
	if doc.TextHash == "" || doc.TextStagePath == "" {
		t.Fatalf("doc = %+v", doc)
	}

	loaded, err := svc.UserDocText(ctx, "a@example.com", doc.ID)
	if err != nil {
		t.Fatalf("UserDocText: %v", err)
	}
	if loaded.ExtractedText != doc.ExtractedText {
		t.Fatalf("loaded text = %q", loaded.ExtractedText)
	}
}

func TestUploadUserDocCreatesOwnerAccount(t *testing.T) {
	recorder := audit.NewMemoryRecorder()
	accounts := accounting.NewMemoryStore(accounting.PlanRules{FreeQuestionLimit: 15})
	svc := NewService(NewMemoryRepo(), newFakeObjectStore(), recorder, accounts)
	ctx := context.Background()

	if _, err := accounts.GetUser(ctx, "first-touch@example.com"); err == nil {
		t.Fatal("account exists before upload")
	}

	doc, err := svc.UploadUserDoc(ctx, "first-touch@example.com", "203.0.113.7", "notes.txt",
		strings.NewReader("political law outline"))
	if err != nil {
		t.Fatalf("UploadUserDoc: %v", err)
	}
	if doc.Email != "first-touch@example.com" {
		t.Fatalf("Email = %q", doc.Email)
	}

	user, err := accounts.GetUser(ctx, "first-touch@example.com")
	if err != nil {
		t.Fatalf("GetUser after upload: %v", err)
	}
	if user.PlanStatus != accounting.PlanFree || user.QuestionsRemaining != 15 {
		t.Fatalf("user = %+v, want fresh FREE account", user)
	}

	history, err := accounts.UserIPHistory(ctx, "first-touch@example.com")
	if err != nil {
		t.Fatalf("UserIPHistory: %v", err)
	}
	if len(history) != 1 || history[0].IPAddress != "203.0.113.7" {
		t.Fatalf("history = %+v", history)
	}
}

func TestUploadUserDocRejectsTraversalName(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.UploadUserDoc(context.Background(), "a@example.com", "10.0.0.9", "../../etc/passwd", strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSoftDeleteHidesFromOwnerButNotAudit(t *testing.T) {
	svc, recorder := newTestService()
	ctx := context.Background()

	doc, err := svc.UploadUserDoc(ctx, "a@example.com", "10.0.0.9", "notes.txt", strings.NewReader("civil law"))
	if err != nil {
		t.Fatalf("UploadUserDoc: %v", err)
	}
	if err := svc.DeleteUserDoc(ctx, "a@example.com", doc.ID); err != nil {
		t.Fatalf("DeleteUserDoc: %v", err)
	}

	own, err := svc.ListUserDocs(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("ListUserDocs: %v", err)
	}
	if len(own) != 0 {
		t.Fatalf("deleted doc visible to owner: %+v", own)
	}
	if _, err := svc.UserDocText(ctx, "a@example.com", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	audited, err := svc.AuditUserDocs(ctx, "admin", "a@example.com")
	if err != nil {
		t.Fatalf("AuditUserDocs: %v", err)
	}
	if len(audited) != 1 || !audited[0].IsDeleted {
		t.Fatalf("audit view = %+v", audited)
	}

	actions, _ := recorder.List(ctx, 10)
	if len(actions) != 1 || actions[0].ActionType != audit.ActionUserDocumentAudit {
		t.Fatalf("actions = %+v", actions)
	}
}

func TestDeleteUserDocTwiceReturnsNotFound(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	doc, err := svc.UploadUserDoc(ctx, "a@example.com", "10.0.0.9", "notes.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("UploadUserDoc: %v", err)
	}
	if err := svc.DeleteUserDoc(ctx, "a@example.com", doc.ID); err != nil {
		t.Fatalf("DeleteUserDoc: %v", err)
	}
	if err := svc.DeleteUserDoc(ctx, "a@example.com", doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLibraryShowsOnlyDownloadable(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	published, err := svc.UploadAdminDoc(ctx, "admin", "syllabus.txt", "Remedial", true, strings.NewReader("syllabus"))
	if err != nil {
		t.Fatalf("UploadAdminDoc: %v", err)
	}
	if _, err := svc.UploadAdminDoc(ctx, "admin", "draft.txt", "Remedial", false, strings.NewReader("draft")); err != nil {
		t.Fatalf("UploadAdminDoc: %v", err)
	}

	docs, err := svc.Library(ctx, "")
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != published.ID {
		t.Fatalf("library = %+v", docs)
	}
}

func TestLibraryCacheFlushedOnToggle(t *testing.T) {
	svc, recorder := newTestService()
	ctx := context.Background()

	doc, err := svc.UploadAdminDoc(ctx, "admin", "draft.txt", "", false, strings.NewReader("draft"))
	if err != nil {
		t.Fatalf("UploadAdminDoc: %v", err)
	}
	if docs, _ := svc.Library(ctx, ""); len(docs) != 0 {
		t.Fatalf("library = %+v", docs)
	}

	if err := svc.SetAdminDocDownloadable(ctx, "admin", doc.ID, true); err != nil {
		t.Fatalf("SetAdminDocDownloadable: %v", err)
	}

	// A stale cache would still say empty here.
	docs, err := svc.Library(ctx, "")
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("library after publish = %+v", docs)
	}

	actions, _ := recorder.List(ctx, 10)
	if len(actions) != 2 {
		t.Fatalf("len(actions) = %d, want upload + toggle", len(actions))
	}
}

func TestOpenLibraryDocRequiresPublished(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	doc, err := svc.UploadAdminDoc(ctx, "admin", "draft.txt", "", false, strings.NewReader("draft"))
	if err != nil {
		t.Fatalf("UploadAdminDoc: %v", err)
	}
	if _, _, err := svc.OpenLibraryDoc(ctx, doc.ID); !errors.Is(err, ErrNotDownloadable) {
		t.Fatalf("err = %v, want ErrNotDownloadable", err)
	}

	if err := svc.SetAdminDocDownloadable(ctx, "admin", doc.ID, true); err != nil {
		t.Fatalf("SetAdminDocDownloadable: %v", err)
	}
	_, reader, err := svc.OpenLibraryDoc(ctx, doc.ID)
	if err != nil {
		t.Fatalf("OpenLibraryDoc: %v", err)
	}
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	if string(data) != "draft" {
		t.Fatalf("data = %q", data)
	}
}
