package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"studyforge/internal/config"
	"studyforge/internal/models"
	"studyforge/pkg/auth"
)

const (
	verifyEmailTTL   = 24 * time.Hour
	resetPasswordTTL = time.Hour
)

// AuthResult is a signed-in user with a fresh token pair
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
	Session      *models.Session
}

// LoginThrottle limits login attempts per email
type LoginThrottle struct {
	perMinute int
	limiters  *sync.Map // map[string]*rate.Limiter
}

// NewLoginThrottle allows perMinute attempts per email, refilled evenly
func NewLoginThrottle(perMinute int) *LoginThrottle {
	if perMinute <= 0 {
		perMinute = 5
	}
	return &LoginThrottle{perMinute: perMinute, limiters: &sync.Map{}}
}

// Allow consumes one attempt for email
func (t *LoginThrottle) Allow(email string) bool {
	if limiter, ok := t.limiters.Load(email); ok {
		return limiter.(*rate.Limiter).Allow()
	}

	newLimiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.perMinute)), t.perMinute)

	// Use the existing limiter if another goroutine created it first
	actual, _ := t.limiters.LoadOrStore(email, newLimiter)
	return actual.(*rate.Limiter).Allow()
}

// UserService implements the account operations
type UserService struct {
	store    UserStore
	jwtAuth  *auth.LocalJWTAuth
	mailer   Mailer
	google   GoogleVerifier
	throttle *LoginThrottle
	cfg      *config.Config
	now      func() time.Time
}

// NewUserService creates a new user service
func NewUserService(store UserStore, jwtAuth *auth.LocalJWTAuth, mailer Mailer, google GoogleVerifier, cfg *config.Config) *UserService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &UserService{
		store:    store,
		jwtAuth:  jwtAuth,
		mailer:   mailer,
		google:   google,
		throttle: NewLoginThrottle(cfg.LoginAttemptsPerMinute),
		cfg:      cfg,
		now:      time.Now,
	}
}

// SessionFor builds the session a user's tokens describe
func SessionFor(user *models.User) *models.Session {
	return &models.Session{
		UserID:        user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		IsAdmin:       user.IsAdmin(),
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", identityError(CodeInvalidEmail, err)
	}
	return email, nil
}

// Register creates an unverified password account and mails the
// verification link. The caller is not signed in.
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, identityError(CodeWeakPassword, err)
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, identityError(CodeEmailAlreadyInUse, nil)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := s.jwtAuth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := s.newUser(email, models.ProviderPassword, false)
	user.PasswordHash = hash

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, identityError(CodeEmailAlreadyInUse, err)
		}
		return nil, err
	}
	log.Printf("✅ User registered: %s (%s, role=%s)", user.Email, user.ID, user.Role)

	if err := s.sendVerification(ctx, user); err != nil {
		log.Printf("⚠️ Failed to send verification email to %s: %v", user.Email, err)
	}
	return user, nil
}

func (s *UserService) newUser(email, provider string, verified bool) *models.User {
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     email,
		Provider:  provider,
		Role:      models.RoleUser,
		CreatedAt: s.now().UTC(),
	}
	if verified {
		s.markVerified(user)
	}
	return user
}

// markVerified records proof that the caller owns user.Email. The admin role
// is only ever granted here, so an unverified claim on an ADMIN_EMAILS
// address stays a plain user.
func (s *UserService) markVerified(user *models.User) {
	user.EmailVerified = true
	if user.Role != models.RoleAdmin && s.cfg.IsAdminEmail(user.Email) {
		user.Role = models.RoleAdmin
		log.Printf("🔑 Admin role granted to %s", user.Email)
	}
}

// Login checks a password and signs the user in
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !s.throttle.Allow(email) {
		return nil, identityError(CodeTooManyRequests, nil)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, identityError(CodeUserNotFound, nil)
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == "" {
		// Google-only account
		return nil, identityError(CodeInvalidCredential, nil)
	}

	ok, err := s.jwtAuth.VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		log.Printf("⚠️ Failed login attempt for user: %s", email)
		return nil, identityError(CodeWrongPassword, err)
	}

	return s.signIn(ctx, user)
}

// LoginWithGoogle signs in with a Google ID token, creating the account on
// first use. Only addresses Google has verified are accepted.
func (s *UserService) LoginWithGoogle(ctx context.Context, idToken string) (*AuthResult, error) {
	if s.google == nil {
		return nil, identityError(CodeInvalidIDToken, fmt.Errorf("google sign-in is not configured"))
	}
	identity, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return nil, identityError(CodeInvalidIDToken, err)
	}
	// An address Google has not verified proves nothing about the mailbox
	if !identity.EmailVerified {
		return nil, identityError(CodeInvalidIDToken, fmt.Errorf("google email %s is not verified", identity.Email))
	}

	user, err := s.store.GetUserByEmail(ctx, identity.Email)
	switch {
	case errors.Is(err, ErrNotFound):
		user = s.newUser(identity.Email, models.ProviderGoogle, true)
		if err := s.store.CreateUser(ctx, user); err != nil {
			return nil, err
		}
		log.Printf("✅ User registered via Google: %s (%s)", user.Email, user.ID)
	case err != nil:
		return nil, err
	default:
		s.markVerified(user)
	}

	return s.signIn(ctx, user)
}

func (s *UserService) signIn(ctx context.Context, user *models.User) (*AuthResult, error) {
	user.LastLoginAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		log.Printf("⚠️ Failed to update last login time: %v", err)
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	log.Printf("✅ User logged in: %s (%s)", user.Email, user.ID)
	return result, nil
}

func (s *UserService) issue(user *models.User) (*AuthResult, error) {
	access, refresh, err := s.jwtAuth.GenerateTokens(auth.User{
		ID:            user.ID,
		Email:         user.Email,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
	}, user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
		Session:      SessionFor(user),
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The new access token
// reflects the account as stored now, so a completed email verification
// shows up without signing in again.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.jwtAuth.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, identityError(CodeInvalidRefresh, err)
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, identityError(CodeUserNotFound, nil)
	}
	if err != nil {
		return nil, err
	}
	if claims.Version != user.TokenVersion {
		return nil, identityError(CodeInvalidRefresh, fmt.Errorf("refresh token revoked"))
	}

	return s.issue(user)
}

// Logout revokes every refresh token of the user
func (s *UserService) Logout(ctx context.Context, userID string) error {
	return s.store.IncrementTokenVersion(ctx, userID)
}

// Me returns the stored account
func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// SendVerificationEmail mails a new verification link unless the account
// is already verified
func (s *UserService) SendVerificationEmail(ctx context.Context, userID string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}
	return s.sendVerification(ctx, user)
}

func (s *UserService) sendVerification(ctx context.Context, user *models.User) error {
	token, err := s.newActionToken(ctx, user.ID, models.TokenPurposeVerifyEmail, verifyEmailTTL)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/#/verify-email?token=%s", s.cfg.AppBaseURL, token)
	body := fmt.Sprintf("Welcome to StudyForge!\n\nConfirm your email address to unlock every study tool:\n%s\n\nThe link expires in 24 hours.", link)
	return s.mailer.Send(ctx, user.Email, "Verify your email", body)
}

// VerifyEmail redeems a verification token
func (s *UserService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	t, err := s.redeem(ctx, token, models.TokenPurposeVerifyEmail)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, t.UserID)
	if err != nil {
		return nil, err
	}
	s.markVerified(user)
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	log.Printf("✅ Email verified: %s", user.Email)
	return user, nil
}

// SendPasswordReset mails a reset link
func (s *UserService) SendPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return identityError(CodeUserNotFound, nil)
	}
	if err != nil {
		return err
	}

	token, err := s.newActionToken(ctx, user.ID, models.TokenPurposeResetPassword, resetPasswordTTL)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/#/reset-password?token=%s", s.cfg.AppBaseURL, token)
	body := fmt.Sprintf("Someone asked to reset the password of your StudyForge account.\n\nChoose a new password here:\n%s\n\nThe link expires in one hour. If this wasn't you, ignore this email.", link)
	return s.mailer.Send(ctx, user.Email, "Reset your password", body)
}

// ResetPassword redeems a reset token and sets a new password. Existing
// sessions are revoked.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := auth.ValidatePassword(newPassword); err != nil {
		return identityError(CodeWeakPassword, err)
	}

	t, err := s.redeem(ctx, token, models.TokenPurposeResetPassword)
	if err != nil {
		return err
	}

	user, err := s.store.GetUserByID(ctx, t.UserID)
	if err != nil {
		return err
	}
	hash, err := s.jwtAuth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash
	// Receiving the mail proves ownership of the address
	s.markVerified(user)

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}
	if err := s.store.IncrementTokenVersion(ctx, user.ID); err != nil {
		log.Printf("⚠️ Failed to revoke sessions after password reset: %v", err)
	}
	return nil
}

func (s *UserService) newActionToken(ctx context.Context, userID, purpose string, ttl time.Duration) (string, error) {
	if err := s.store.DeleteTokens(ctx, userID, purpose); err != nil {
		return "", err
	}

	token, err := auth.RandomToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	now := s.now().UTC()
	if err := s.store.CreateToken(ctx, &models.ActionToken{
		Token:     token,
		UserID:    userID,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}); err != nil {
		return "", err
	}
	return token, nil
}

func (s *UserService) redeem(ctx context.Context, token, purpose string) (*models.ActionToken, error) {
	t, err := s.store.ConsumeToken(ctx, token, purpose)
	if errors.Is(err, ErrNotFound) {
		return nil, identityError(CodeInvalidActionToken, nil)
	}
	if err != nil {
		return nil, err
	}
	if t.Expired(s.now()) {
		return nil, identityError(CodeExpiredActionToken, nil)
	}
	return t, nil
}

// PurgeExpiredTokens removes action tokens past their expiry
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.store.PurgeExpiredTokens(ctx, s.now())
}
