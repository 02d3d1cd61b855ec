package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFileStorePutGetDelete(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()
	const key = "resumes/7/cv.pdf"

	if err := fs.Put(ctx, key, strings.NewReader("%PDF-1.4 body"), 13, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	obj, err := fs.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(obj.Body)
	_ = obj.Body.Close()
	if string(body) != "%PDF-1.4 body" || obj.Size != 13 {
		t.Fatalf("unexpected object: size=%d body=%q", obj.Size, body)
	}
	if obj.ContentType != "application/pdf" {
		t.Fatalf("content type = %q", obj.ContentType)
	}

	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := fs.Get(ctx, key); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound after delete, got %v", err)
	}
	if err := fs.Delete(ctx, key); err != nil {
		t.Fatalf("deleting a missing file should succeed: %v", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	for _, key := range []string{"../escape.pdf", "/etc/passwd", "a/../../b", "a//b", `a\b`, ""} {
		if err := fs.Put(context.Background(), key, strings.NewReader("x"), 1, ""); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
		if _, err := fs.Get(context.Background(), key); !errors.Is(err, ErrObjectNotFound) {
			t.Fatalf("expected get of %q to miss, got %v", key, err)
		}
	}
}
