package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ioms/backend/internal/apierrors"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/repository"
	"github.com/ioms/backend/internal/validation"
)

// SessionCloser ends the realtime sessions of a user.
type SessionCloser interface {
	CloseUser(userID uuid.UUID) int
}

// Handler exposes HTTP endpoints for authentication and user management.
type Handler struct {
	jwtMgr    *JWTManager
	tx        repository.TxRunner
	users     repository.UserRepository
	companies repository.CompanyRepository
	sessions  SessionCloser
	logger    *slog.Logger
}

// NewHandler creates a new auth Handler. sessions may be nil.
func NewHandler(jwtMgr *JWTManager, tx repository.TxRunner, users repository.UserRepository, companies repository.CompanyRepository, sessions SessionCloser, logger *slog.Logger) *Handler {
	return &Handler{
		jwtMgr:    jwtMgr,
		tx:        tx,
		users:     users,
		companies: companies,
		sessions:  sessions,
		logger:    logger,
	}
}

// LoginRequest is the payload for POST /api/v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest is the payload for POST /api/v1/auth/signup. It creates a
// company and its first admin.
type SignupRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	CompanyName string `json:"company_name" validate:"required,max=255"`
}

// TokenResponse is the standard response containing a JWT.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

// UserInfo is a safe subset of user data returned in API responses. Role is
// the lower-case client encoding.
type UserInfo struct {
	ID          string  `json:"id"`
	CompanyID   string  `json:"company_id"`
	Email       string  `json:"email"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Role        string  `json:"role"`
	LastLoginAt *string `json:"last_login_at,omitempty"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.users.GetByEmail(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil || user == nil {
		apierrors.NewUnauthorizedError("invalid email or password").Write(w, r)
		return
	}

	if !user.Active {
		apierrors.NewForbiddenError("account is deactivated").Write(w, r)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		apierrors.NewUnauthorizedError("invalid email or password").Write(w, r)
		return
	}

	now := time.Now().UTC()
	if err := h.users.UpdateLastLogin(r.Context(), user.ID, now); err != nil {
		h.logger.Warn("failed to record last login", "user_id", user.ID, "error", err)
	}
	user.LastLoginAt = &now

	h.writeToken(w, r, http.StatusOK, user)
}

// Signup handles POST /api/v1/auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decode(w, r, &req) {
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		apierrors.NewInternalError("failed to hash password").Write(w, r)
		return
	}

	company := &model.Company{
		BaseEntity: model.NewBaseEntity(),
		Name:       strings.TrimSpace(req.CompanyName),
		Settings:   model.CompanySettings{Timezone: "UTC", AlertsEnabled: true},
	}
	user := &model.User{
		BaseEntity:   model.NewBaseEntity(),
		CompanyID:    company.ID,
		Email:        strings.TrimSpace(strings.ToLower(req.Email)),
		PasswordHash: string(passwordHash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         model.RoleAdmin,
		Active:       true,
	}

	err = h.tx.WithinTx(r.Context(), func(ctx context.Context) error {
		if err := h.companies.Create(ctx, company); err != nil {
			return err
		}
		return h.users.Create(ctx, user)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		apierrors.NewConflictError("a company or user with this name already exists").Write(w, r)
		return
	}
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.logger.Info("company signed up", "company_id", company.ID, "user_id", user.ID)
	h.writeToken(w, r, http.StatusCreated, user)
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.NewUnauthorizedError("authentication required").Write(w, r)
		return
	}

	user, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil || user == nil {
		apierrors.NewNotFoundError("user", claims.UserID.String()).Write(w, r)
		return
	}

	writeJSON(w, http.StatusOK, toUserInfo(user))
}

// Logout handles POST /api/v1/auth/logout. Tokens are stateless; logout
// tears down the user's realtime sessions and the client drops the token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.NewUnauthorizedError("authentication required").Write(w, r)
		return
	}
	closed := 0
	if h.sessions != nil {
		closed = h.sessions.CloseUser(claims.UserID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out", "sessions_closed": closed})
}

// CreateUser handles POST /api/v1/users (admin only).
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil || claims.Role != model.RoleAdmin {
		apierrors.NewForbiddenError("only admins can add users").Write(w, r)
		return
	}

	var req model.UserCreateRequest
	if !decode(w, r, &req) {
		return
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		apierrors.NewValidationError("Validation failed", map[string]string{"role": "must be one of: dev, key_user, admin"}).Write(w, r)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		apierrors.NewInternalError("failed to hash password").Write(w, r)
		return
	}
	user := &model.User{
		BaseEntity:   model.NewBaseEntity(),
		CompanyID:    claims.CompanyID,
		Email:        strings.TrimSpace(strings.ToLower(req.Email)),
		PasswordHash: string(passwordHash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		Active:       true,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			apierrors.NewConflictError("a user with this email already exists").Write(w, r)
			return
		}
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserInfo(user))
}

// ListUsers handles GET /api/v1/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.NewUnauthorizedError("authentication required").Write(w, r)
		return
	}
	users, err := h.users.ListByCompany(r.Context(), claims.CompanyID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	out := make([]UserInfo, 0, len(users))
	for _, u := range users {
		out = append(out, toUserInfo(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) writeToken(w http.ResponseWriter, r *http.Request, status int, user *model.User) {
	token, err := h.jwtMgr.GenerateToken(user)
	if err != nil {
		apierrors.NewInternalError("failed to generate token").Write(w, r)
		return
	}
	writeJSON(w, status, TokenResponse{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(h.jwtMgr.ExpiresIn()),
		User:      toUserInfo(user),
	})
}

func toUserInfo(u *model.User) UserInfo {
	info := UserInfo{
		ID:        u.ID.String(),
		CompanyID: u.CompanyID.String(),
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role.ClientString(),
	}
	if u.LastLoginAt != nil {
		s := u.LastLoginAt.Format(time.RFC3339)
		info.LastLoginAt = &s
	}
	return info
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apierrors.NewBadRequestError("invalid request body").Write(w, r)
		return false
	}
	if fields := validation.Struct(dst); fields != nil {
		apierrors.NewValidationError("Validation failed", fields).Write(w, r)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
