package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opencamp/slot-reservation/internal/model"
	"github.com/opencamp/slot-reservation/internal/repository"
	"github.com/opencamp/slot-reservation/internal/utils"
)

// AuthHandler implements the minimal identity surface the reservation
// core needs: account creation, login and self lookup.  Session
// rotation and invitation flows live outside this service.
type AuthHandler struct {
	Users        *repository.UserRepo
	JWTSecret    string
	AccessTTLMin int
	BcryptCost   int
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *repository.UserRepo, jwtSecret string, accessTTLMin, bcryptCost int) *AuthHandler {
	if users == nil {
		panic("nil user repo passed to NewAuthHandler")
	}
	return &AuthHandler{Users: users, JWTSecret: jwtSecret, AccessTTLMin: accessTTLMin, BcryptCost: bcryptCost}
}

// Register handles POST /v1/auth/register.
func (h *AuthHandler) Register(c echo.Context) error {
	var body struct {
		Email          string  `json:"email"`
		Password       string  `json:"password"`
		Role           string  `json:"role"`
		Track          string  `json:"track"`
		OrganizationID uint64  `json:"organization_id"`
		GroupNumber    *uint32 `json:"group_number"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	if body.Email == "" || len(body.Password) < 8 || body.OrganizationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, organization_id and a password of 8+ chars are required"})
	}
	role := body.Role
	if role == "" {
		role = model.RoleCamper
	}
	if role != model.RoleCamper && role != model.RoleOrganizer {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be CAMPER or ORGANIZER"})
	}

	hash, err := utils.HashPassword(body.Password, h.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	u := &model.User{
		Email:          body.Email,
		PasswordHash:   hash,
		Role:           role,
		Track:          body.Track,
		OrganizationID: body.OrganizationID,
		GroupNumber:    body.GroupNumber,
	}
	if err := h.Users.Create(c.Request().Context(), u); err != nil {
		if err == repository.ErrEmailTaken {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": u.ID})
}

// Login handles POST /v1/auth/login and returns a signed access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	u, err := h.Users.GetByEmail(c.Request().Context(), strings.TrimSpace(strings.ToLower(body.Email)))
	if err != nil || !utils.CheckPassword(u.PasswordHash, body.Password) {
		// Same response for unknown email and wrong password.
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	tok, err := utils.NewAccessToken(h.JWTSecret, u.ID, u.Role, h.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": tok.Token,
		"expires_at":   tok.Exp,
	})
}

// Me handles GET /v1/me for the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	u, err := h.Users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":              u.ID,
		"email":           u.Email,
		"role":            u.Role,
		"track":           u.Track,
		"organization_id": u.OrganizationID,
		"group_number":    u.GroupNumber,
	})
}
