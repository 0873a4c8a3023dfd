package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/socialnet/backend/internal/apperr"
	"github.com/socialnet/backend/internal/auth"
	"github.com/socialnet/backend/internal/logging"
	"github.com/socialnet/backend/internal/middleware"
	"github.com/socialnet/backend/internal/models"
	"github.com/socialnet/backend/internal/repositories"
	"github.com/socialnet/backend/internal/storage"
)

// maxPictureSize bounds uploaded profile and cover pictures.
const maxPictureSize = 10 << 20

// UserHandler serves the account directory, registration, deletion and
// picture uploads.
type UserHandler struct {
	Auth          AuthService
	Users         UserDirectory
	Relationships RelationshipManager
	Authz         Authorizer
	Media         storage.ObjectStore
}

type registerRequest struct {
	Username  string `json:"username"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Gender    string `json:"gender"`
}

type deleteUserRequest struct {
	UserID string `json:"userId"`
}

type pictureResponse struct {
	Message string      `json:"message"`
	User    models.User `json:"user"`
}

// Register handles POST /users. New accounts always get the User role.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	user, err := h.Auth.Register(ctx, auth.RegisterInput{
		Username:  req.Username,
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Email:     req.Email,
		Password:  req.Password,
		Gender:    req.Gender,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, user)
}

// List handles GET /users.
func (h UserHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.Users.List(ctx)
	if err != nil {
		respondError(ctx, w, apperr.Server("failed to list users", err))
		return
	}
	if users == nil {
		users = []models.User{}
	}

	respondJSON(ctx, w, http.StatusOK, users)
}

// Get handles GET /users/{userID}.
func (h UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.Users.FindByID(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		respondError(ctx, w, lookupError(err))
		return
	}

	respondJSON(ctx, w, http.StatusOK, user)
}

// Delete handles DELETE /users.
func (h UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperr.Unauthorized("unauthorized"))
		return
	}

	var req deleteUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		respondError(ctx, w, apperr.Validation("userId is required"))
		return
	}

	deleted, err := h.Relationships.DeleteAccount(ctx, principal, req.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondMessage(ctx, w, http.StatusOK, fmt.Sprintf("User %s deleted successfully", deleted.Username))
}

// UpdateProfilePicture handles PUT /users/profile-picture.
func (h UserHandler) UpdateProfilePicture(w http.ResponseWriter, r *http.Request) {
	h.updatePicture(w, r, models.PictureProfile, "Profile picture updated successfully")
}

// UpdateCoverPicture handles PUT /users/cover-picture.
func (h UserHandler) UpdateCoverPicture(w http.ResponseWriter, r *http.Request) {
	h.updatePicture(w, r, models.PictureCover, "Cover picture updated successfully")
}

func (h UserHandler) updatePicture(w http.ResponseWriter, r *http.Request, kind models.PictureKind, success string) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperr.Unauthorized("unauthorized"))
		return
	}

	if h.Media == nil {
		logger.Error("picture upload without object store", "kind", kind)
		respondMessage(ctx, w, http.StatusInternalServerError, "media storage unavailable")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPictureSize+(1<<20))
	if err := r.ParseMultipartForm(maxPictureSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, apperr.Validation("image must be at most 10 MiB"))
			return
		}
		respondError(ctx, w, apperr.Validation("invalid multipart form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	userID := strings.TrimSpace(r.FormValue("userId"))
	if userID == "" {
		userID = principal.UserID
	}
	if err := h.Authz.Require(ctx, principal, userID, models.ElevatedRoles...); err != nil {
		respondError(ctx, w, err)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(ctx, w, apperr.Validation("image is required"))
		return
	}
	defer file.Close()

	if header.Size > maxPictureSize {
		respondError(ctx, w, apperr.Validation("image must be at most 10 MiB"))
		return
	}
	contentType := header.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || !strings.HasPrefix(mediaType, "image/") {
		respondError(ctx, w, apperr.Validation("image must be an image file"))
		return
	}

	if _, err := h.Users.FindByID(ctx, userID); err != nil {
		respondError(ctx, w, lookupError(err))
		return
	}

	location, err := h.Media.Save(ctx, storage.PictureKey(userID, kind, header.Filename), file, header.Size, contentType)
	if err != nil {
		respondError(ctx, w, apperr.Server("failed to store image", err))
		return
	}

	user, err := h.Users.UpdatePicture(ctx, userID, kind, location)
	if err != nil {
		respondError(ctx, w, lookupError(err))
		return
	}

	logger.Info("picture updated", "user_id", userID, "kind", kind)
	respondJSON(ctx, w, http.StatusOK, pictureResponse{Message: success, User: user})
}

func lookupError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	return apperr.Server("failed to load user", err)
}
