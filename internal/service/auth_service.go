package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loopio/feedback-tracker/internal/auth"
	"github.com/loopio/feedback-tracker/internal/config"
	"github.com/loopio/feedback-tracker/internal/domain"
	"github.com/loopio/feedback-tracker/internal/lifecycle"
	"github.com/loopio/feedback-tracker/internal/mail"
	"github.com/loopio/feedback-tracker/internal/notify"
	"github.com/loopio/feedback-tracker/internal/repository"
	"github.com/loopio/feedback-tracker/internal/storage"
	apperrors "github.com/loopio/feedback-tracker/pkg/util/errorutil"
)

// AuthService coordinates registration, login and profile flows.
type AuthService struct {
	users      repository.UserRepository
	resets     repository.PasswordResetRepository
	avatars    storage.AvatarStore
	mailer     mail.Mailer
	notifier   Notifier
	logger     *zap.Logger
	tokenMgr   *auth.TokenManager
	bcryptCost int
	resetTTL   time.Duration
	resetURL   string
	maxUpload  int64
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	PasswordResetRepo repository.PasswordResetRepository
	Avatars           storage.AvatarStore
	Mailer            mail.Mailer
	Notifier          Notifier
	Logger            *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		resets:     deps.PasswordResetRepo,
		avatars:    deps.Avatars,
		mailer:     deps.Mailer,
		notifier:   deps.Notifier,
		logger:     logger,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
		resetTTL:   time.Duration(cfg.Auth.PasswordResetTTLMinutes) * time.Minute,
		resetURL:   cfg.Mail.PasswordResetURL,
		maxUpload:  cfg.Storage.MaxUploadBytes,
	}
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	Phone    *string
	Address  *string
}

// AuthResult pairs an identity with a freshly issued token.
type AuthResult struct {
	User  *domain.User
	Token domain.Token
}

// Register creates an account. The role defaults to user.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return nil, apperrors.NewValidationError("please add all fields", nil)
	}

	role := domain.RoleUser
	if strings.TrimSpace(in.Role) != "" {
		parsed, err := domain.ParseRole(in.Role)
		if err != nil {
			return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": in.Role})
		}
		role = parsed
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Phone:        nonEmpty(in.Phone),
		Address:      nonEmpty(in.Address),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewConflict("user already exists", map[string]any{"email": email})
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return s.issue(user)
}

// Login authenticates by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issue(user)
}

// GetUser loads one identity.
func (s *AuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, apperrors.NewNotFound("user", nil)
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	return user, nil
}

// ProfileInput carries a profile edit. Empty fields keep their current value.
type ProfileInput struct {
	Name         *string
	Email        *string
	Phone        *string
	Address      *string
	Avatar       *FileUpload
	DeleteAvatar bool
}

// UpdateProfile edits the caller's profile and returns a refreshed token.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*AuthResult, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if v := trimmed(in.Name); v != "" {
		user.Name = v
	}
	if v := normalizeEmail(trimmed(in.Email)); v != "" {
		user.Email = v
	}
	if v := trimmed(in.Phone); v != "" {
		user.Phone = &v
	}
	if v := trimmed(in.Address); v != "" {
		user.Address = &v
	}

	var stale *string
	if in.DeleteAvatar && user.ProfilePictureRef != nil {
		stale = user.ProfilePictureRef
		user.ProfilePictureRef = nil
	}
	if in.Avatar != nil {
		if err := s.checkAvatar(in.Avatar); err != nil {
			return nil, err
		}
		ref, err := s.avatars.Put(ctx, user.ID, in.Avatar.Filename, in.Avatar.ContentType, in.Avatar.Data)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		if user.ProfilePictureRef != nil {
			stale = user.ProfilePictureRef
		}
		user.ProfilePictureRef = &ref
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewConflict("email already in use", map[string]any{"email": user.Email})
		}
		return nil, apperrors.NewInternalError(err)
	}
	if stale != nil {
		s.dropAvatar(ctx, user.ID, *stale)
	}
	return s.issue(user)
}

func (s *AuthService) checkAvatar(f *FileUpload) error {
	if !strings.HasPrefix(f.ContentType, "image/") {
		return apperrors.NewValidationError("profile picture must be an image", map[string]any{"content_type": f.ContentType})
	}
	if s.maxUpload > 0 && f.Size() > s.maxUpload {
		return apperrors.NewValidationError("file too large", map[string]any{"max_bytes": s.maxUpload})
	}
	return nil
}

// Avatar opens the profile picture of userID. The caller closes the reader.
func (s *AuthService) Avatar(ctx context.Context, userID string) (io.ReadCloser, storage.ObjectInfo, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if user.ProfilePictureRef == nil {
		return nil, storage.ObjectInfo{}, apperrors.NewNotFound("profile picture", nil)
	}
	body, info, err := s.avatars.Get(ctx, *user.ProfilePictureRef)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, apperrors.NewNotFound("profile picture", nil)
		}
		return nil, storage.ObjectInfo{}, apperrors.NewInternalError(err)
	}
	return body, info, nil
}

// ChangePassword verifies the current password before replacing it.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return apperrors.NewValidationError("new password is required", nil)
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(user.PasswordHash, oldPassword); err != nil {
		return apperrors.NewUnauthorized("invalid old password")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// ForgotPassword stores a hashed single-use token and mails the raw one. If
// the mail cannot be sent the token is cleared again.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return storeErr(err, "user")
	}

	raw, err := newResetToken()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.resets.Set(ctx, user.ID, hashResetToken(raw), time.Now().Add(s.resetTTL)); err != nil {
		return apperrors.NewInternalError(err)
	}

	link := s.resetURL + raw
	body := fmt.Sprintf(`<p>You are receiving this email because you (or someone else) requested a password reset.</p>`+
		`<p>Please follow this link to choose a new password:</p><p><a href="%s">%s</a></p>`, link, link)
	if err := s.mailer.Send(ctx, user.Email, "Password Reset Token", body); err != nil {
		s.logger.Error("password reset mail failed", zap.String("user_id", user.ID), zap.Error(err))
		if clearErr := s.resets.Clear(ctx, user.ID); clearErr != nil {
			s.logger.Error("clear reset token failed", zap.String("user_id", user.ID), zap.Error(clearErr))
		}
		return &apperrors.DomainError{
			Code:       "EMAIL_FAILED",
			Message:    "email could not be sent",
			HTTPStatus: http.StatusInternalServerError,
			Err:        err,
		}
	}
	return nil
}

// ResetPassword redeems a reset token and logs the user in.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) (*AuthResult, error) {
	if password == "" {
		return nil, apperrors.NewValidationError("password is required", nil)
	}
	user, err := s.resets.FindUser(ctx, hashResetToken(token))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewValidationError("invalid token", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.resets.Clear(ctx, user.ID); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return s.issue(user)
}

// DeleteAccount removes the caller and tells every remaining admin.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return storeErr(err, "user")
	}
	if user.ProfilePictureRef != nil {
		s.dropAvatar(ctx, user.ID, *user.ProfilePictureRef)
	}

	if s.notifier == nil {
		return nil
	}
	admins, err := s.adminIDs(ctx)
	if err != nil {
		s.logger.Error("list admins for account deletion",
			zap.String("actor_id", user.ID),
			zap.String("mutation", string(lifecycle.MutationAccountDeletion)),
			zap.Error(err))
		return nil
	}
	s.notifier.Dispatch(ctx, notify.Batch{
		Mutation: lifecycle.MutationAccountDeletion,
		ActorID:  user.ID,
		Intents:  lifecycle.OnAccountDeleted(user, admins),
	})
	return nil
}

// ListByRole returns every identity holding role.
func (s *AuthService) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	users, err := s.users.ListByRole(ctx, role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return users, nil
}

// ListAll returns every identity, newest first.
func (s *AuthService) ListAll(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return users, nil
}

func (s *AuthService) adminIDs(ctx context.Context) ([]string, error) {
	return adminIDs(ctx, s.users)
}

func (s *AuthService) dropAvatar(ctx context.Context, userID, ref string) {
	if err := s.avatars.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("delete avatar failed", zap.String("user_id", userID), zap.String("ref", ref), zap.Error(err))
	}
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func adminIDs(ctx context.Context, users repository.UserRepository) ([]string, error) {
	admins, err := users.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func newResetToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nonEmpty(s *string) *string {
	v := trimmed(s)
	if v == "" {
		return nil
	}
	return &v
}
