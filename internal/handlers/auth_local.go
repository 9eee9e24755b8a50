package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"studyforge/internal/logging"
	"studyforge/internal/middleware"
	"studyforge/internal/models"
	"studyforge/internal/services"
)

const refreshCookie = "refresh_token"

// LocalAuthHandler handles account endpoints and announces session changes
// on the event bus
type LocalAuthHandler struct {
	users         *services.UserService
	bus           *services.SessionEventBus
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewLocalAuthHandler creates a new local auth handler
func NewLocalAuthHandler(users *services.UserService, bus *services.SessionEventBus, accessExpiry, refreshExpiry time.Duration) *LocalAuthHandler {
	return &LocalAuthHandler{
		users:         users,
		bus:           bus,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// CredentialsRequest is the body of register and login
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GoogleRequest carries the ID token from Google Sign-In
type GoogleRequest struct {
	IDToken string `json:"id_token"`
}

// RefreshTokenRequest is the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// EmailRequest is the body of a password reset request
type EmailRequest struct {
	Email string `json:"email"`
}

// TokenRequest carries a mailed action token
type TokenRequest struct {
	Token    string `json:"token"`
	Password string `json:"password,omitempty"`
}

// AuthResponse is the response for successful authentication
type AuthResponse struct {
	AccessToken  string              `json:"access_token"`
	RefreshToken string              `json:"refresh_token"`
	User         models.UserResponse `json:"user"`
	Session      *models.Session     `json:"session"`
	ExpiresIn    int                 `json:"expires_in"` // seconds
}

// identityStatus maps an identity code to an HTTP status
func identityStatus(code string) int {
	switch code {
	case services.CodeTooManyRequests:
		return fiber.StatusTooManyRequests
	case services.CodeEmailAlreadyInUse:
		return fiber.StatusConflict
	case services.CodeUserNotFound, services.CodeWrongPassword, services.CodeInvalidCredential,
		services.CodeInvalidIDToken, services.CodeInvalidRefresh:
		return fiber.StatusUnauthorized
	case "":
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusBadRequest
	}
}

func identityFailure(c *fiber.Ctx, op services.IdentityOperation, err error) error {
	code := services.IdentityCode(err)
	if code == "" {
		logging.WithRequest(c).Error("account operation failed", "operation", op, "error", err)
	}
	return c.Status(identityStatus(code)).JSON(fiber.Map{
		"error": services.IdentityMessage(op, err),
		"code":  code,
	})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid request body",
	})
}

// signedIn sets the refresh cookie, publishes the event and writes the token pair
func (h *LocalAuthHandler) signedIn(c *fiber.Ctx, result *services.AuthResult, eventType string) error {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookie,
		Value:    result.RefreshToken,
		Expires:  time.Now().Add(h.refreshExpiry),
		HTTPOnly: true,
		Secure:   c.Protocol() == "https",
		SameSite: "Strict",
		Path:     "/api/auth",
	})

	h.bus.Publish(result.User.ID, models.SessionEvent{Type: eventType, Session: result.Session})

	return c.JSON(AuthResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         result.User.ToResponse(),
		Session:      result.Session,
		ExpiresIn:    int(h.accessExpiry.Seconds()),
	})
}

// Register creates an unverified account and mails the verification link
// POST /api/auth/register
func (h *LocalAuthHandler) Register(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	user, err := h.users.Register(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return identityFailure(c, services.OpRegister, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Account created. Check your inbox to verify your email.",
		"user":    user.ToResponse(),
	})
}

// Login signs in with email and password
// POST /api/auth/login
func (h *LocalAuthHandler) Login(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	result, err := h.users.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return identityFailure(c, services.OpLogin, err)
	}
	return h.signedIn(c, result, models.SessionSignedIn)
}

// Google signs in with a Google ID token
// POST /api/auth/google
func (h *LocalAuthHandler) Google(c *fiber.Ctx) error {
	var req GoogleRequest
	if err := c.BodyParser(&req); err != nil || req.IDToken == "" {
		return invalidBody(c)
	}

	result, err := h.users.LoginWithGoogle(c.UserContext(), req.IDToken)
	if err != nil {
		return identityFailure(c, services.OpGoogle, err)
	}
	return h.signedIn(c, result, models.SessionSignedIn)
}

// RefreshToken exchanges a refresh token for a new pair
// POST /api/auth/refresh
func (h *LocalAuthHandler) RefreshToken(c *fiber.Ctx) error {
	// Try to get refresh token from cookie first
	refreshToken := c.Cookies(refreshCookie)

	// Fallback to request body
	if refreshToken == "" {
		var req RefreshTokenRequest
		if err := c.BodyParser(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}

	if refreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Refresh token is required",
		})
	}

	result, err := h.users.Refresh(c.UserContext(), refreshToken)
	if err != nil {
		c.ClearCookie(refreshCookie)
		return identityFailure(c, services.OpRefresh, err)
	}
	return h.signedIn(c, result, models.SessionTokenRefreshed)
}

// Logout revokes the user's refresh tokens
// POST /api/auth/logout
func (h *LocalAuthHandler) Logout(c *fiber.Ctx) error {
	c.ClearCookie(refreshCookie)

	session := middleware.SessionFrom(c)
	if !session.Authenticated() {
		// Allow logout even if not authenticated (clear cookie)
		return c.JSON(fiber.Map{
			"message": "Logged out successfully",
		})
	}

	if err := h.users.Logout(c.UserContext(), session.UserID); err != nil {
		log.Printf("⚠️ Failed to increment token version: %v", err)
	}
	h.bus.Publish(session.UserID, models.SessionEvent{Type: models.SessionSignedOut})

	log.Printf("✅ User logged out: %s", session.UserID)
	return c.JSON(fiber.Map{
		"message": "Logged out successfully",
	})
}

// GetCurrentUser returns the currently authenticated user
// GET /api/auth/me
func (h *LocalAuthHandler) GetCurrentUser(c *fiber.Ctx) error {
	session := middleware.SessionFrom(c)
	if !session.Authenticated() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	user, err := h.users.Me(c.UserContext(), session.UserID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}
	return c.JSON(user.ToResponse())
}

// SendVerification mails a fresh verification link
// POST /api/auth/send-verification
func (h *LocalAuthHandler) SendVerification(c *fiber.Ctx) error {
	session := middleware.SessionFrom(c)
	if !session.Authenticated() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	if err := h.users.SendVerificationEmail(c.UserContext(), session.UserID); err != nil {
		logging.WithRequest(c).Error("failed to send verification email", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to send verification email.",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Verification email sent. Check your inbox.",
	})
}

// VerifyEmail redeems a verification token. The client refreshes its
// tokens afterwards to pick up the verified claim.
// POST /api/auth/verify-email
func (h *LocalAuthHandler) VerifyEmail(c *fiber.Ctx) error {
	var req TokenRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return invalidBody(c)
	}

	user, err := h.users.VerifyEmail(c.UserContext(), req.Token)
	if err != nil {
		return identityFailure(c, services.OpVerifyEmail, err)
	}
	return c.JSON(fiber.Map{
		"message": "Your email has been verified.",
		"user":    user.ToResponse(),
	})
}

// ForgotPassword mails a password reset link
// POST /api/auth/forgot-password
func (h *LocalAuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req EmailRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	if err := h.users.SendPasswordReset(c.UserContext(), req.Email); err != nil {
		return identityFailure(c, services.OpResetPassword, err)
	}
	return c.JSON(fiber.Map{
		"message": "Check your inbox for further instructions.",
	})
}

// ResetPassword sets a new password with a mailed reset token
// POST /api/auth/reset-password
func (h *LocalAuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req TokenRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return invalidBody(c)
	}

	if err := h.users.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return identityFailure(c, services.OpResetPassword, err)
	}
	return c.JSON(fiber.Map{
		"message": "Your password has been reset. You can now log in.",
	})
}
