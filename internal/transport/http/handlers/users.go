package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/storefront-auth/internal/core/domain"
	"github.com/arklim/storefront-auth/internal/transport/http/middleware"
	"github.com/arklim/storefront-auth/internal/transport/http/validation"
	"github.com/arklim/storefront-auth/internal/usecase"
)

const userDeletedMessage = "User deleted successfully."

// UserUsecase is the user administration surface.
type UserUsecase interface {
	List(ctx context.Context, query domain.ListQuery) (domain.Page[domain.User], error)
	ListAdmins(ctx context.Context, query domain.ListQuery) (domain.Page[domain.User], error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, actor domain.Principal, id string, in usecase.UpdateProfileInput) (*domain.User, error)
	Delete(ctx context.Context, id string) error
	Promote(ctx context.Context, id string) (*domain.User, error)
	Demote(ctx context.Context, id string) (*domain.User, error)
}

// UserHandler exposes the /user administration routes.
type UserHandler struct {
	users    UserUsecase
	validate *validation.Validator
	tokens   middleware.AccessTokenValidator
	maxBytes int64
}

// NewUserHandler constructs UserHandler. maxBytes caps avatar uploads.
func NewUserHandler(users UserUsecase, v *validation.Validator, tokens middleware.AccessTokenValidator, maxBytes int64) *UserHandler {
	if maxBytes <= 0 {
		maxBytes = usecase.DefaultMaxUploadBytes
	}
	return &UserHandler{users: users, validate: v, tokens: tokens, maxBytes: maxBytes}
}

// RegisterRoutes binds the /user routes. Every route requires an access token.
func (h *UserHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.Use(middleware.RequireAuth(h.tokens))

	admins := middleware.RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin)
	super := middleware.RequireRole(domain.RoleSuperAdmin)

	r.GET("", admins, h.list)
	r.GET("/admins/all", admins, h.listAdmins)
	r.PATCH("/admins/:id", super, h.promote)
	r.DELETE("/admins/:id", super, h.demote)
	r.GET("/username/:username", admins, h.getByUsername)
	r.GET("/email/:email", admins, h.getByEmail)
	r.GET("/:id", admins, h.getByID)
	r.PATCH("/:id", h.update)
	r.DELETE("/:id", super, h.delete)
}

// List godoc
// @Summary List users
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size"
// @Param page query int false "Page number"
// @Param sortBy query string false "Sort column"
// @Param sortOrder query string false "asc or desc"
// @Success 200 {object} UserPageResponse
// @Router /user [get]
func (h *UserHandler) list(c *gin.Context) {
	h.listWith(c, h.users.List)
}

func (h *UserHandler) listAdmins(c *gin.Context) {
	h.listWith(c, h.users.ListAdmins)
}

func (h *UserHandler) listWith(c *gin.Context, fetch func(context.Context, domain.ListQuery) (domain.Page[domain.User], error)) {
	query, err := h.parseListQuery(c)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	page, err := fetch(c.Request.Context(), query)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserPageResponse(page))
}

func (h *UserHandler) parseListQuery(c *gin.Context) (domain.ListQuery, error) {
	values := map[string]string{
		"limit":     c.Query("limit"),
		"page":      c.Query("page"),
		"sortBy":    c.Query("sortBy"),
		"sortOrder": strings.ToLower(c.Query("sortOrder")),
	}
	if err := h.validate.Check(validation.ListQueryRules, values); err != nil {
		return domain.ListQuery{}, err
	}

	limit, _ := strconv.Atoi(values["limit"])
	page, _ := strconv.Atoi(values["page"])
	return domain.ListQuery{
		Limit:     limit,
		Page:      page,
		SortBy:    values["sortBy"],
		SortOrder: domain.SortOrder(values["sortOrder"]),
	}.Normalize(), nil
}

// userID reads the :id path parameter. An id that is not a UUID cannot name a
// user, so it is answered as not found.
func userID(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondWithError(c, usecase.ErrUserNotFound)
		return "", false
	}
	return id.String(), true
}

func (h *UserHandler) getByID(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	h.respondUser(c)(h.users.GetByID(c.Request.Context(), id))
}

func (h *UserHandler) getByUsername(c *gin.Context) {
	h.respondUser(c)(h.users.GetByUsername(c.Request.Context(), c.Param("username")))
}

func (h *UserHandler) getByEmail(c *gin.Context) {
	h.respondUser(c)(h.users.GetByEmail(c.Request.Context(), domain.NormalizeEmail(c.Param("email"))))
}

// Update godoc
// @Summary Update a user profile
// @Description Owners and admins may change fullName, username and the avatar image.
// @Tags Users
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 415 {object} ErrorResponse
// @Router /user/{id} [patch]
func (h *UserHandler) update(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, usecase.ErrUnauthorized.Message))
		return
	}
	id, ok := userID(c)
	if !ok {
		return
	}

	fullName := strings.TrimSpace(c.PostForm("fullName"))
	username := strings.TrimSpace(c.PostForm("username"))
	if err := h.validate.Check(validation.UpdateUserRules, map[string]string{
		"fullName": fullName,
		"username": username,
	}); err != nil {
		RespondWithError(c, err)
		return
	}

	avatar, err := readUpload(c, UploadField, h.maxBytes)
	if err != nil {
		respondUploadError(c, err)
		return
	}

	in := usecase.UpdateProfileInput{Avatar: avatar}
	if fullName != "" {
		in.FullName = &fullName
	}
	if username != "" {
		in.Username = &username
	}

	h.respondUser(c, uploadErrorCases...)(h.users.UpdateProfile(c.Request.Context(), principal, id, in))
}

func (h *UserHandler) delete(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: userDeletedMessage})
}

func (h *UserHandler) promote(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	h.respondUser(c)(h.users.Promote(c.Request.Context(), id))
}

func (h *UserHandler) demote(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	h.respondUser(c)(h.users.Demote(c.Request.Context(), id))
}

func (h *UserHandler) respondUser(c *gin.Context, cases ...ErrorCase) func(*domain.User, error) {
	return func(user *domain.User, err error) {
		if err != nil {
			RespondWithError(c, err, cases...)
			return
		}
		c.JSON(http.StatusOK, newUserResponse(*user))
	}
}
