package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"jobportal/internal/util"
	"jobportal/pkg/auth"
	"jobportal/pkg/domain"
	"jobportal/pkg/storage"
	"jobportal/pkg/store"
)

// Content families accepted per extension. Legacy .doc is an OLE container
// and .docx a zip, so their generic parents are accepted as well. Other
// configured extensions must match the detected type's own extension.
var resumeMIMEs = map[string][]string{
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword", "application/x-ole-storage"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
}

// ProfilePatch is a partial profile update with JobPatch semantics.
type ProfilePatch struct {
	Name  *string
	Email *string
}

// ResumeFile is an uploaded résumé.
type ResumeFile struct {
	Filename string
	Body     io.Reader
}

// Me reloads the caller's profile.
func (a *App) Me(ctx context.Context, caller domain.User) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(ctx, caller.ID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// UpdateProfile changes the caller's name and/or email.
func (a *App) UpdateProfile(ctx context.Context, caller domain.User, patch ProfilePatch) (domain.User, error) {
	user, err := a.Me(ctx, caller)
	if err != nil {
		return domain.User{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.User{}, invalid("name", "name must not be empty")
		}
		user.Name = name
	}
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if !auth.ValidEmail(email) {
			return domain.User{}, invalid("email", "invalid email address")
		}
		user.Email = email
	}
	if err := a.saveUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return a.Me(ctx, caller)
}

// SetResumeURL points the caller's résumé at an external http(s) URL.
func (a *App) SetResumeURL(ctx context.Context, caller domain.User, resumeURL string) (domain.User, error) {
	resumeURL = strings.TrimSpace(resumeURL)
	if !auth.ValidHTTPURL(resumeURL) {
		return domain.User{}, invalid("resumeUrl", "resumeUrl must be an absolute http(s) URL")
	}
	user, err := a.Me(ctx, caller)
	if err != nil {
		return domain.User{}, err
	}
	previous := user.ResumeURL
	user.ResumeURL = resumeURL
	if err := a.saveUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	a.deleteUploaded(ctx, previous)
	return user, nil
}

// UploadResume stores a résumé file and points the caller's profile at it.
// The previously uploaded file, if any, is removed afterwards.
func (a *App) UploadResume(ctx context.Context, caller domain.User, file ResumeFile) (domain.User, error) {
	if a.objects == nil {
		return domain.User{}, ErrUploadsDisabled
	}
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(file.Filename)))
	if _, ok := a.resumeExts[ext]; !ok {
		a.metrics.ResumeUpload("rejected")
		return domain.User{}, invalid("resume", "unsupported file type")
	}
	data, err := io.ReadAll(io.LimitReader(file.Body, a.resumeMax+1))
	if err != nil {
		return domain.User{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > a.resumeMax {
		a.metrics.ResumeUpload("too_large")
		return domain.User{}, ErrFileTooLarge
	}
	if len(data) == 0 {
		a.metrics.ResumeUpload("rejected")
		return domain.User{}, invalid("resume", "file is empty")
	}
	detected := mimetype.Detect(data)
	if !contentMatches(detected, ext) {
		a.metrics.ResumeUpload("rejected")
		return domain.User{}, invalid("resume", "file content does not match its extension")
	}

	user, err := a.Me(ctx, caller)
	if err != nil {
		return domain.User{}, err
	}
	key := "resumes/" + strconv.FormatInt(user.ID, 10) + "/" + uuid.NewString() + ext
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), detected.String()); err != nil {
		return domain.User{}, fmt.Errorf("store resume: %w", err)
	}
	previous := user.ResumeURL
	user.ResumeURL = uploadURLPrefix + key
	if err := a.saveUser(ctx, user); err != nil {
		if delErr := a.objects.Delete(ctx, key); delErr != nil {
			util.LoggerFromContext(ctx).Warn("remove orphaned resume failed", "key", key, "err", delErr)
		}
		return domain.User{}, err
	}
	a.deleteUploaded(ctx, previous)
	a.metrics.ResumeUpload("stored")
	return user, nil
}

// OpenUpload streams a stored file by key. The caller must close Body.
func (a *App) OpenUpload(ctx context.Context, key string) (storage.Object, error) {
	if a.objects == nil {
		return storage.Object{}, ErrFileNotFound
	}
	obj, err := a.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.Object{}, ErrFileNotFound
		}
		return storage.Object{}, fmt.Errorf("open upload: %w", err)
	}
	return obj, nil
}

func (a *App) saveUser(ctx context.Context, user domain.User) error {
	if err := a.store.UpdateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return ErrEmailTaken
		case errors.Is(err, store.ErrNotFound):
			return ErrUnauthorized
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// deleteUploaded removes a file previously uploaded through UploadResume,
// through the cleanup queue when one is configured. External URLs are left
// alone; failures are only logged.
func (a *App) deleteUploaded(ctx context.Context, resumeURL string) {
	key, ok := strings.CutPrefix(resumeURL, uploadURLPrefix)
	if !ok || key == "" || a.objects == nil {
		return
	}
	logger := util.LoggerFromContext(ctx)
	if a.cleanup != nil {
		_, err := a.cleanup.Enqueue(ctx, key)
		if err == nil {
			return
		}
		logger.Warn("enqueue resume cleanup failed, removing inline", "key", key, "err", err)
	}
	if err := a.RemoveUpload(ctx, key); err != nil {
		logger.Warn("remove previous resume failed", "key", key, "err", err)
	}
}

// RemoveUpload deletes a stored file. A missing object counts as removed.
func (a *App) RemoveUpload(ctx context.Context, key string) error {
	if a.objects == nil {
		return ErrUploadsDisabled
	}
	if err := a.objects.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete upload %s: %w", key, err)
	}
	return nil
}

func contentMatches(detected *mimetype.MIME, ext string) bool {
	accepted, known := resumeMIMEs[ext]
	for m := detected; m != nil; m = m.Parent() {
		if !known {
			if m.Extension() == ext {
				return true
			}
			continue
		}
		for _, want := range accepted {
			if m.Is(want) {
				return true
			}
		}
	}
	return false
}
