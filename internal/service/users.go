package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/media"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
	appErrors "github.com/htyf-mp-community/Thread-Rest/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserService owns accounts and profiles.
type UserService struct {
	users     repository.UserRepository
	processor *media.Processor
	view      viewer
	logger    *zap.Logger
}

func NewUserService(users repository.UserRepository, processor *media.Processor, resolver *media.Resolver, logger *zap.Logger) *UserService {
	return &UserService{users: users, processor: processor, view: viewer{resolver: resolver}, logger: logger}
}

type SignupInput struct {
	Email    string
	Username string
	Fullname string
	Password string
}

// Signup hashes the password and creates the account.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Upstream("failed to hash password", err)
	}

	u := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Username:     strings.TrimSpace(in.Username),
		Fullname:     strings.TrimSpace(in.Fullname),
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, appErrors.ErrEmailTaken
		}
		return nil, appErrors.ErrStorage(err)
	}
	return u, nil
}

// Login returns the user whose email and password match. Unknown email and
// wrong password fail the same way.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	if u == nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	return u, nil
}

// Profile returns a user with a signed profile picture.
func (s *UserService) Profile(ctx context.Context, userID uuid.UUID) (*UserView, error) {
	if userID == uuid.Nil {
		return nil, appErrors.ErrInvalidUserID
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	if u == nil {
		return nil, appErrors.ErrUserNotFound
	}
	v, err := s.view.user(ctx, u)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	return v, nil
}

// SetAvatar stores a new profile picture and removes the previous one.
func (s *UserService) SetAvatar(ctx context.Context, userID uuid.UUID, up *media.Upload) (*UserView, error) {
	if up == nil {
		return nil, appErrors.ErrMissingAvatar
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	if u == nil {
		return nil, appErrors.ErrUserNotFound
	}

	contentType, err := media.DetectType(*up)
	if err != nil {
		return nil, appErrors.ErrMediaUpload(err)
	}
	if !media.IsImage(contentType) {
		return nil, appErrors.ErrAvatarNotImage
	}

	avatar := *up
	avatar.ContentType = contentType
	item, err := s.processor.Store(ctx, media.AvatarDirs(userID), avatar)
	if err != nil {
		return nil, appErrors.ErrMediaUpload(err)
	}

	if err := s.users.SetProfilePicture(ctx, userID, item.MediaURL); err != nil {
		s.processor.Discard(ctx, []models.MediaItem{item})
		return nil, appErrors.ErrStorage(err)
	}
	if u.ProfilePicture != "" {
		s.processor.Discard(ctx, []models.MediaItem{{MediaURL: u.ProfilePicture}})
	}

	u.ProfilePicture = item.MediaURL
	v, err := s.view.user(ctx, u)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	return v, nil
}
