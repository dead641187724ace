package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stock-trading-sim-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials hides whether the username or the password was
	// wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserExists rejects a registration for a taken username or email.
	ErrUserExists = errors.New("user already exists")

	// ErrValidation rejects malformed registration input.
	ErrValidation = errors.New("validation failed")
)

// session is one logged-in browser; tokens are opaque uuids.
type session struct {
	userID    uint
	expiresAt time.Time
}

// Service handles registration, login and session resolution. The rest of
// the application only ever sees a resolved user ID.
type Service struct {
	db         *gorm.DB
	logger     *zap.Logger
	sessionTTL time.Duration

	mu       sync.Mutex
	sessions map[string]session
}

// NewService creates an auth service over the user table.
func NewService(db *gorm.DB, sessionTTL time.Duration, logger *zap.Logger) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Service{
		db:         db,
		logger:     logger,
		sessionTTL: sessionTTL,
		sessions:   make(map[string]session),
	}
}

// Register creates a new user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if username == "" || email == "" {
		return nil, fmt.Errorf("%w: username and email are required", ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email address", ErrValidation)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing users: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("Registered new user", zap.String("username", username))
	return user, nil
}

// Login verifies credentials and returns a fresh session token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = session{userID: user.ID, expiresAt: time.Now().Add(s.sessionTTL)}
	s.mu.Unlock()

	s.logger.Info("User logged in", zap.String("username", user.Username))
	return token, &user, nil
}

// Authenticate resolves a session token to a user ID. Expired sessions are
// removed on first touch.
func (s *Service) Authenticate(token string) (uint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return 0, false
	}
	if time.Now().After(sess.expiresAt) {
		delete(s.sessions, token)
		return 0, false
	}
	return sess.userID, true
}

// Logout invalidates a session token. Unknown tokens are a no-op.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}
