package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"jobportal/pkg/domain"
	"jobportal/pkg/queue"
	"jobportal/pkg/storage"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)
	env.register(t, "Rita", "rita@example.com", domain.RoleRecruiter)

	updated, err := env.app.UpdateProfile(ctx, sam, ProfilePatch{Name: strPtr(" Samuel ")})
	if err != nil {
		t.Fatalf("update name: %v", err)
	}
	if updated.Name != "Samuel" || updated.Email != sam.Email || updated.Role != domain.RoleJobSeeker {
		t.Fatalf("unexpected profile %+v", updated)
	}
	if _, err := env.app.UpdateProfile(ctx, sam, ProfilePatch{Email: strPtr("rita@example.com")}); !errors.Is(err, ErrConflict) {
		t.Fatalf("taken email: expected ErrConflict, got %v", err)
	}
	if _, err := env.app.UpdateProfile(ctx, sam, ProfilePatch{Email: strPtr("nope")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: expected ErrInvalidInput, got %v", err)
	}
	if _, err := env.app.UpdateProfile(ctx, sam, ProfilePatch{Name: strPtr("  ")}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name: expected ErrInvalidInput, got %v", err)
	}
	moved, err := env.app.UpdateProfile(ctx, sam, ProfilePatch{Email: strPtr("samuel@example.com")})
	if err != nil || moved.Email != "samuel@example.com" {
		t.Fatalf("change email: %+v err=%v", moved, err)
	}
	if _, err := env.app.Login(ctx, "samuel@example.com", "secret1"); err != nil {
		t.Fatalf("login with new email: %v", err)
	}
}

func TestSetResumeURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)

	for _, raw := range []string{"", "ftp://files.example.com/cv.pdf", "/relative/cv.pdf", "https://"} {
		if _, err := env.app.SetResumeURL(ctx, sam, raw); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%q: expected ErrInvalidInput, got %v", raw, err)
		}
	}
	user, err := env.app.SetResumeURL(ctx, sam, "https://cdn.example.com/sam.pdf")
	if err != nil {
		t.Fatalf("set resume url: %v", err)
	}
	if user.ResumeURL != "https://cdn.example.com/sam.pdf" {
		t.Fatalf("unexpected resume url %q", user.ResumeURL)
	}
}

func TestUploadResumeReplacesPreviousFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)

	first, err := env.app.UploadResume(ctx, sam, ResumeFile{Filename: "CV.PDF", Body: bytes.NewReader(pdfBytes)})
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	firstKey, ok := strings.CutPrefix(first.ResumeURL, "/uploads/")
	if !ok || !strings.HasPrefix(firstKey, "resumes/") || !strings.HasSuffix(firstKey, ".pdf") {
		t.Fatalf("unexpected resume url %q", first.ResumeURL)
	}

	obj, err := env.app.OpenUpload(ctx, firstKey)
	if err != nil {
		t.Fatalf("open upload: %v", err)
	}
	got, _ := io.ReadAll(obj.Body)
	_ = obj.Body.Close()
	if !bytes.Equal(got, pdfBytes) || obj.ContentType != "application/pdf" {
		t.Fatalf("stored object mismatch: type=%q len=%d", obj.ContentType, len(got))
	}

	second, err := env.app.UploadResume(ctx, sam, ResumeFile{Filename: "cv-2.pdf", Body: bytes.NewReader(pdfBytes)})
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if second.ResumeURL == first.ResumeURL {
		t.Fatalf("expected a fresh key per upload")
	}
	if _, err := env.objects.Get(ctx, firstKey); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("previous upload should be deleted, got %v", err)
	}
	if _, err := env.app.OpenUpload(ctx, firstKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("open deleted upload: expected ErrNotFound, got %v", err)
	}

	// Switching to an external URL also drops the stored file.
	secondKey := strings.TrimPrefix(second.ResumeURL, "/uploads/")
	if _, err := env.app.SetResumeURL(ctx, sam, "https://cdn.example.com/sam.pdf"); err != nil {
		t.Fatalf("set resume url: %v", err)
	}
	if _, err := env.objects.Get(ctx, secondKey); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("uploaded file should be deleted after switching to a url, got %v", err)
	}
}

func TestUploadResumeRejections(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ResumeMaxBytes = 64 })
	ctx := context.Background()
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)

	tests := []struct {
		name string
		file ResumeFile
		want error
	}{
		{"wrong extension", ResumeFile{Filename: "cv.exe", Body: bytes.NewReader(pdfBytes[:32])}, ErrInvalidInput},
		{"no extension", ResumeFile{Filename: "cv", Body: bytes.NewReader(pdfBytes[:32])}, ErrInvalidInput},
		{"empty file", ResumeFile{Filename: "cv.pdf", Body: bytes.NewReader(nil)}, ErrInvalidInput},
		{"content mismatch", ResumeFile{Filename: "cv.pdf", Body: strings.NewReader("just some plain text")}, ErrInvalidInput},
		{"too large", ResumeFile{Filename: "cv.pdf", Body: bytes.NewReader(pdfBytes)}, ErrFileTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.app.UploadResume(ctx, sam, tc.file); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	me, err := env.app.Me(ctx, sam)
	if err != nil || me.ResumeURL != "" {
		t.Fatalf("rejected uploads must not touch the profile: %q err=%v", me.ResumeURL, err)
	}
}

func TestUploadResumeConfiguredExtensions(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ResumeAllowedExtensions = []string{".pdf", "rtf", ".TXT"} })
	ctx := context.Background()
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)

	for _, name := range []string{"cv.rtf", "cv.txt"} {
		body := `{\rtf1\ansi Sam Seeker}`
		if name == "cv.txt" {
			body = "Sam Seeker\nGo developer\n"
		}
		user, err := env.app.UploadResume(ctx, sam, ResumeFile{Filename: name, Body: strings.NewReader(body)})
		if err != nil {
			t.Fatalf("upload %s: %v", name, err)
		}
		if !strings.HasSuffix(user.ResumeURL, filepath.Ext(name)) {
			t.Fatalf("upload %s stored as %q", name, user.ResumeURL)
		}
	}

	_, err := env.app.UploadResume(ctx, sam, ResumeFile{Filename: "cv.rtf", Body: strings.NewReader("plain words, no rtf header")})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("plain text named .rtf: expected ErrInvalidInput, got %v", err)
	}
	if _, err := env.app.UploadResume(ctx, sam, ResumeFile{Filename: "cv.docx", Body: bytes.NewReader(pdfBytes)}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("extension outside the configured list: expected ErrInvalidInput, got %v", err)
	}
}

func TestUploadResumeWithoutObjectStore(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Objects = nil })
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)
	_, err := env.app.UploadResume(context.Background(), sam, ResumeFile{Filename: "cv.pdf", Body: bytes.NewReader(pdfBytes)})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

type recordingQueue struct {
	refs []string
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, ref string) (queue.Task, error) {
	if q.err != nil {
		return queue.Task{}, q.err
	}
	q.refs = append(q.refs, ref)
	return queue.Task{ID: "t-" + ref, Ref: ref, Status: queue.StatusQueued}, nil
}

func TestReplacedResumeGoesThroughCleanupQueue(t *testing.T) {
	cleanup := &recordingQueue{}
	env := newTestEnv(t, func(c *Config) { c.Cleanup = cleanup })
	ctx := context.Background()
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)

	first, err := env.app.UploadResume(ctx, sam, ResumeFile{Filename: "cv.pdf", Body: bytes.NewReader(pdfBytes)})
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	firstKey := strings.TrimPrefix(first.ResumeURL, "/uploads/")
	if _, err := env.app.UploadResume(ctx, sam, ResumeFile{Filename: "cv.pdf", Body: bytes.NewReader(pdfBytes)}); err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if len(cleanup.refs) != 1 || cleanup.refs[0] != firstKey {
		t.Fatalf("expected %q to be queued, got %v", firstKey, cleanup.refs)
	}
	// Still present until the worker runs.
	obj, err := env.objects.Get(ctx, firstKey)
	if err != nil {
		t.Fatalf("queued object removed early: %v", err)
	}
	_ = obj.Body.Close()

	if err := env.app.RemoveUpload(ctx, firstKey); err != nil {
		t.Fatalf("remove upload: %v", err)
	}
	if err := env.app.RemoveUpload(ctx, firstKey); err != nil {
		t.Fatalf("removing a missing upload must succeed, got %v", err)
	}
	if _, err := env.objects.Get(ctx, firstKey); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("expected object gone, got %v", err)
	}
}

func TestCleanupQueueFailureRemovesInline(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Cleanup = &recordingQueue{err: errors.New("redis down")} })
	ctx := context.Background()
	sam := env.register(t, "Sam", "sam@example.com", domain.RoleJobSeeker)

	first, err := env.app.UploadResume(ctx, sam, ResumeFile{Filename: "cv.pdf", Body: bytes.NewReader(pdfBytes)})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := env.app.SetResumeURL(ctx, sam, "https://cdn.example.com/sam.pdf"); err != nil {
		t.Fatalf("set resume url: %v", err)
	}
	if _, err := env.objects.Get(ctx, strings.TrimPrefix(first.ResumeURL, "/uploads/")); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("expected inline removal, got %v", err)
	}
}
