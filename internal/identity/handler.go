package identity

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/expensio/expensio/internal/authz"
	"github.com/expensio/expensio/internal/domain"
	"github.com/expensio/expensio/internal/identity/jwt"
	"github.com/expensio/expensio/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// CookieSettings contains settings for the auth cookie.
type CookieSettings struct {
	Secure bool
	Domain string
}

// Handler handles HTTP requests for the identity module.
type Handler struct {
	service        *Service
	auth           *jwt.Authenticator
	validator      *validator.Validate
	cookieSettings CookieSettings
}

// NewHandler creates a new identity handler.
func NewHandler(service *Service, auth *jwt.Authenticator, cookieSettings CookieSettings) *Handler {
	return &Handler{
		service:        service,
		auth:           auth,
		validator:      validator.New(),
		cookieSettings: cookieSettings,
	}
}

// RegisterRoutes registers the public auth routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// RegisterAdminRoutes registers the account management routes.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.With(httputil.RequireOperation(authz.OpCheckAccountAvailability)).
			Get("/availability", h.Availability)
		r.Get("/{id}", h.GetUser)
		r.Put("/{id}", h.UpdateUser)
		r.Delete("/{id}", h.DeleteUser)
	})
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrUserNotFound, Status: http.StatusNotFound},
	{Error: ErrUsernameTaken, Status: http.StatusConflict},
	{Error: ErrEmailTaken, Status: http.StatusConflict},
	{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized},
	{Error: ErrInvalidFields, Status: http.StatusBadRequest},
	{Error: ErrInvalidID, Status: http.StatusBadRequest},
	{Error: ErrTooManyAttempts, Status: http.StatusTooManyRequests},
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Password  string `json:"password" validate:"required,min=8"`
}

// Register handles POST /auth/register. New accounts always start as
// employees.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, user)
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the authenticated user and an access token for
// non-browser clients; browsers get the same token as a cookie.
type LoginResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	token, err := h.auth.GenerateToken(r.Context(), user)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	h.setAuthCookie(w, token)

	httputil.Success(w, http.StatusOK, LoginResponse{
		User:        user,
		AccessToken: token,
	})
}

// Logout handles POST /auth/logout by clearing the auth cookie. Tokens
// are short-lived and stateless; there is no server-side session to
// invalidate.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.clearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor := httputil.ActorFromContext(r.Context())
	if actor == nil {
		httputil.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	httputil.Success(w, http.StatusOK, actor)
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListAll(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, users)
}

// GetUser handles GET /users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, user)
}

// CreateUserRequest represents the admin account creation body.
type CreateUserRequest struct {
	RegisterRequest
	Role string `json:"role" validate:"omitempty,oneof=default admin finance_manager employee"`
}

// CreateUser handles POST /users. The account is registered as an
// employee and then promoted when a different role was requested, so
// the registration invariants hold for admin-created accounts too.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	if req.Role != "" && domain.Role(req.Role) != domain.RoleEmployee {
		role := domain.Role(req.Role)
		user, err = h.service.Update(r.Context(), UpdateInput{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Role:      &role,
		})
		if err != nil {
			httputil.HandleError(r.Context(), w, err, errorMappings)
			return
		}
	}

	httputil.Success(w, http.StatusCreated, user)
}

// UpdateUserRequest represents the admin account update body.
type UpdateUserRequest struct {
	Username  string  `json:"username" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Password  *string `json:"password" validate:"omitempty,min=8"`
	Role      *string `json:"role" validate:"omitempty,oneof=default admin finance_manager employee"`
}

// UpdateUser handles PUT /users/{id}.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateInput{
		ID:        id,
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		input.Role = &role
	}

	user, err := h.service.Update(r.Context(), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /users/{id} (soft delete).
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteByID(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AvailabilityResponse reports whether a username or email is free.
type AvailabilityResponse struct {
	Field     string `json:"field"`
	Value     string `json:"value"`
	Available bool   `json:"available"`
}

// Availability handles GET /users/availability?username= or ?email=.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if username := r.URL.Query().Get("username"); username != "" {
		available, err := h.service.IsUsernameAvailable(r.Context(), username)
		if err != nil {
			httputil.HandleError(r.Context(), w, err, errorMappings)
			return
		}
		httputil.Success(w, http.StatusOK, AvailabilityResponse{Field: "username", Value: username, Available: available})
		return
	}

	if email := r.URL.Query().Get("email"); email != "" {
		available, err := h.service.IsEmailAvailable(r.Context(), email)
		if err != nil {
			httputil.HandleError(r.Context(), w, err, errorMappings)
			return
		}
		httputil.Success(w, http.StatusOK, AvailabilityResponse{Field: "email", Value: email, Available: available})
		return
	}

	httputil.Error(w, http.StatusBadRequest, "username or email query parameter is required")
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.Error(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *Handler) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     httputil.AccessTokenCookie,
		Value:    token,
		Path:     "/",
		Domain:   h.cookieSettings.Domain,
		MaxAge:   int(h.auth.TokenDuration() / time.Second),
		HttpOnly: true,
		Secure:   h.cookieSettings.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     httputil.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		Domain:   h.cookieSettings.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSettings.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

var _ httputil.ActorLoader = (*Service)(nil)
