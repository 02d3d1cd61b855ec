package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jobportal/internal/googleid"
	"jobportal/internal/util"
	"jobportal/pkg/auth"
	"jobportal/pkg/domain"
	"jobportal/pkg/store"
)

// AuthResult is returned by every successful sign-in.
type AuthResult struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// RegisterInput is the local sign-up payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Register creates a local account and signs it in.
func (a *App) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return AuthResult{}, invalid("", "name, email and password are required")
	}
	if !auth.ValidEmail(email) {
		return AuthResult{}, invalid("email", "invalid email address")
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return AuthResult{}, invalid("password", err.Error())
	}
	role, ok := domain.ParseUserRole(in.Role)
	if !ok {
		return AuthResult{}, invalid("role", "role must be JOB_SEEKER or RECRUITER")
	}

	if _, exists, err := a.store.GetUserByEmail(ctx, email); err != nil {
		return AuthResult{}, fmt.Errorf("check email: %w", err)
	} else if exists {
		return AuthResult{}, ErrEmailTaken
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}
	user := domain.User{Name: name, Email: email, PasswordHash: hash, Role: role}
	if err := a.createUser(ctx, &user); err != nil {
		return AuthResult{}, err
	}
	return a.issue(user)
}

// Login verifies local credentials. Every failure is ErrInvalidCredentials.
func (a *App) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return AuthResult{}, invalid("", "email and password are required")
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		// Same bcrypt cost as a real comparison.
		auth.CheckPassword(password, "")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	return a.issue(user)
}

// FederatedSignIn signs in with a Google ID token. A first-time user must
// supply a role; without one a *RoleRequiredError is returned.
func (a *App) FederatedSignIn(ctx context.Context, credential, role string) (AuthResult, error) {
	if a.identity == nil {
		return AuthResult{}, ErrGoogleDisabled
	}
	if strings.TrimSpace(credential) == "" {
		return AuthResult{}, invalid("credential", "credential is required")
	}
	id, err := a.identity.Verify(ctx, credential)
	if err != nil {
		if errors.Is(err, googleid.ErrInvalidCredential) {
			return AuthResult{}, ErrInvalidGoogleCredential
		}
		return AuthResult{}, fmt.Errorf("verify google credential: %w", err)
	}

	// The Google subject is stable across profile email changes; email only
	// links accounts that were never signed in with Google.
	user, exists, err := a.store.GetUserByGoogleID(ctx, id.Subject)
	if err != nil {
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}
	if !exists {
		user, exists, err = a.store.GetUserByEmail(ctx, id.Email)
		if err != nil {
			return AuthResult{}, fmt.Errorf("load user: %w", err)
		}
	}
	if exists {
		if user.GoogleID == "" {
			user.GoogleID = id.Subject
			if err := a.store.UpdateUser(ctx, user); err != nil {
				// Sign-in still succeeds; the link is retried next time.
				util.LoggerFromContext(ctx).Warn("link google account failed", "user_id", user.ID, "err", err)
				user.GoogleID = ""
			}
		}
		return a.issue(user)
	}

	if strings.TrimSpace(role) == "" {
		return AuthResult{}, &RoleRequiredError{Email: id.Email, Name: id.Name}
	}
	parsed, ok := domain.ParseUserRole(role)
	if !ok {
		return AuthResult{}, invalid("role", "role must be JOB_SEEKER or RECRUITER")
	}
	user = domain.User{Name: id.Name, Email: id.Email, GoogleID: id.Subject, Role: parsed}
	if err := a.createUser(ctx, &user); err != nil {
		return AuthResult{}, err
	}
	return a.issue(user)
}

// Logout revokes the token until it would have expired.
func (a *App) Logout(token string) error {
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// CallerFromToken resolves a bearer token to the stored user.
func (a *App) CallerFromToken(ctx context.Context, token string) (domain.User, error) {
	session, err := a.sessions.ResolveSession(token)
	if err != nil {
		if errors.Is(err, store.ErrInvalidToken) || errors.Is(err, store.ErrTokenRevoked) {
			return domain.User{}, ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("resolve session: %w", err)
	}
	user, ok, err := a.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// JWKS returns the session verification keys, if the session store publishes any.
func (a *App) JWKS() []store.JWK {
	if p, ok := a.sessions.(store.JWKSProvider); ok {
		return p.JWKS()
	}
	return []store.JWK{}
}

func (a *App) createUser(ctx context.Context, user *domain.User) error {
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (a *App) issue(user domain.User) (AuthResult, error) {
	token, err := a.sessions.NewSession(user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue session: %w", err)
	}
	return AuthResult{User: user, Token: token}, nil
}
