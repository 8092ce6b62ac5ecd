package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariebrainware/kinesio-turnos/middleware"
	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Sentinel errors for user update operations
var (
	ErrUserEmailAlreadyExists = errors.New("email already exists")
	ErrUnknownRole            = errors.New("unknown role")
)

type UpdateUserRequest struct {
	Name     string `json:"name" example:"John Doe"`
	Email    string `json:"email" binding:"omitempty,email" example:"john@example.com"`
	Password string `json:"password" binding:"omitempty,min=8" example:"newpassword123"`
	RoleID   uint32 `json:"role_id,omitempty" example:"3"`
}

func validateUpdateRequest(req *UpdateUserRequest) bool {
	return req.Name != "" || req.Email != "" || req.Password != "" || req.RoleID != 0
}

// validateAndUpdateEmail checks email uniqueness and updates the user model if valid.
func validateAndUpdateEmail(db *gorm.DB, user *model.User, newEmail string) error {
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if newEmail == "" || newEmail == user.Email {
		return nil
	}
	exists, err := emailExists(db, newEmail, user.ID)
	if err != nil {
		return fmt.Errorf("failed to validate email uniqueness: %w", err)
	}
	if exists {
		return ErrUserEmailAlreadyExists
	}
	user.Email = newEmail
	return nil
}

// hashUserPassword generates a salt and hashes the provided password, updating the user model.
func hashUserPassword(user *model.User, plainPassword string) error {
	salt, err := util.GenerateSalt()
	if err != nil {
		return fmt.Errorf("failed to generate password salt: %w", err)
	}

	hashedPassword, err := util.HashPasswordArgon2(plainPassword, salt)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.Password = hashedPassword
	user.PasswordSalt = salt
	return nil
}

// updateUserFields applies the changes from an UpdateUserRequest to a user model
// and reports whether the password changed. Role changes are honoured only when
// allowRole is set.
func updateUserFields(db *gorm.DB, user *model.User, req *UpdateUserRequest, allowRole bool) (passwordChanged bool, err error) {
	if err := validateAndUpdateEmail(db, user, req.Email); err != nil {
		return false, err
	}

	if req.Name != "" {
		user.Name = util.NormalizeName(req.Name)
	}

	if allowRole && req.RoleID != 0 {
		if !model.ValidRole(req.RoleID) {
			return false, ErrUnknownRole
		}
		user.RoleID = req.RoleID
	}

	if req.Password != "" {
		if err := hashUserPassword(user, req.Password); err != nil {
			return false, err
		}
		passwordChanged = true
	}

	return passwordChanged, nil
}

// invalidateUserSessions removes session records from both DB and Redis for a given user.
func invalidateUserSessions(c *gin.Context, db *gorm.DB, userID uint) {
	if err := db.Where("user_id = ?", userID).Delete(&model.Session{}).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to delete sessions")
	}
	if err := util.InvalidateUserSessions(c.Request.Context(), userID); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("failed to drop cached sessions")
	}
	util.ForgetUser(userID)
}

func performUserUpdate(c *gin.Context, db *gorm.DB, user *model.User, req *UpdateUserRequest, allowRole bool) {
	passwordChanged, err := updateUserFields(db, user, req, allowRole)
	switch {
	case errors.Is(err, ErrUserEmailAlreadyExists):
		util.CallConflict(c, util.APIErrorParams{Msg: "Email already exists", Err: err})
		return
	case errors.Is(err, ErrUnknownRole):
		util.CallUserError(c, util.APIErrorParams{Msg: "Unknown role", Err: err})
		return
	case err != nil:
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update user fields", Err: err})
		return
	}

	if err := db.Save(user).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update user", Err: err})
		return
	}
	util.ForgetUser(user.ID)

	if passwordChanged {
		invalidateUserSessions(c, db, user.ID)
		util.LogSecurityEvent(util.SecurityEvent{
			EventType:      util.EventPasswordChanged,
			OrganizationID: user.OrganizationID,
			UserID:         fmt.Sprintf("%d", user.ID),
			Email:          user.Email,
			IP:             c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			Message:        "Password changed, sessions invalidated",
		})
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "User updated successfully", Data: user})
}

func bindUpdateUserRequest(c *gin.Context) (UpdateUserRequest, bool) {
	var req UpdateUserRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return UpdateUserRequest{}, false
	}
	if !validateUpdateRequest(&req) {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "At least one field (name, email, password or role) must be provided",
			Err: fmt.Errorf("no fields to update"),
		})
		return UpdateUserRequest{}, false
	}
	return req, true
}

// UpdateUser godoc
// @Summary      Update current user profile
// @Description  Update authenticated user's name, email, and/or password
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body UpdateUserRequest true "Update details"
// @Success      200 {object} util.APIResponse "Update successful"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      409 {object} util.APIResponse "Email already exists"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /user [patch]
func UpdateUser(c *gin.Context) {
	req, ok := bindUpdateUserRequest(c)
	if !ok {
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		util.CallUserNotAuthorized(c, util.APIErrorParams{Msg: "User not authenticated", Err: fmt.Errorf("user id not found in context")})
		return
	}

	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		respondFetchError(c, err, "User")
		return
	}

	performUserUpdate(c, db, &user, &req, false)
}

// ListUsers godoc
// @Summary      List users of the organization (admin only)
// @Tags         Users
// @Produce      json
// @Security     SessionToken
// @Param        limit query int false "Limit number of results (default 20, max 100)"
// @Param        offset query int false "Offset"
// @Param        keyword query string false "Search keyword for name or email"
// @Success      200 {object} util.APIResponse{data=object} "Users retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      403 {object} util.APIResponse "Forbidden"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /user [get]
func ListUsers(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	q := parseListQuery(c)
	query := s.Tenant.Model(&model.User{})
	if q.Keyword != "" {
		kw := "%" + strings.ToLower(q.Keyword) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", kw, kw)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to count users", Err: err})
		return
	}

	var users []model.User
	if err := q.apply(query).Order("id ASC").Find(&users).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve users", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "Users retrieved",
		Data: map[string]interface{}{
			"users":         users,
			"total":         total,
			"total_fetched": len(users),
		},
	})
}

// GetUserInfo godoc
// @Summary      Get user info (admin only)
// @Tags         Users
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "User ID"
// @Success      200 {object} util.APIResponse "User retrieved"
// @Failure      400 {object} util.APIResponse "Invalid user id"
// @Failure      404 {object} util.APIResponse "User not found"
// @Router       /user/{id} [get]
func GetUserInfo(c *gin.Context) {
	uid, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var user model.User
	if err := s.Tenant.First(&user, uid).Error; err != nil {
		respondFetchError(c, err, "User")
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "User retrieved", Data: user})
}

// AdminUpdateUser godoc
// @Summary      Update another user (admin only)
// @Description  Admins can update name, email, password and role of a user in their organization
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "User ID"
// @Param        request body UpdateUserRequest true "Update details"
// @Success      200 {object} util.APIResponse "Update successful"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      404 {object} util.APIResponse "User not found"
// @Failure      409 {object} util.APIResponse "Email already exists"
// @Router       /user/{id} [patch]
func AdminUpdateUser(c *gin.Context) {
	uid, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	req, ok := bindUpdateUserRequest(c)
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var user model.User
	if err := s.Tenant.First(&user, uid).Error; err != nil {
		respondFetchError(c, err, "User")
		return
	}

	performUserUpdate(c, s.DB, &user, &req, true)
}

// emailExists checks whether an email already exists in users table excluding a given user ID.
func emailExists(db *gorm.DB, email string, excludeID uint) (bool, error) {
	var count int64
	if err := db.Model(&model.User{}).Where("email = ? AND id != ?", email, excludeID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// deleteUserWithSessions deletes a user and all their sessions atomically.
func deleteUserWithSessions(s tenantScope, userID uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := s.scoped(tx).First(&user, userID).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.Session{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}

// DeleteUser godoc
// @Summary      Delete user (admin only)
// @Tags         Users
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "User ID"
// @Success      200 {object} util.APIResponse "User deleted"
// @Failure      400 {object} util.APIResponse "Invalid user id or self deletion"
// @Failure      404 {object} util.APIResponse "User not found"
// @Router       /user/{id} [delete]
func DeleteUser(c *gin.Context) {
	uid, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	if self, _ := middleware.GetUserID(c); self == uid {
		util.CallUserError(c, util.APIErrorParams{Msg: "You cannot delete your own account", Err: fmt.Errorf("self deletion")})
		return
	}

	if err := deleteUserWithSessions(s, uid); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.CallErrorNotFound(c, util.APIErrorParams{Msg: "User not found", Err: err})
			return
		}
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to delete user", Err: err})
		return
	}

	if err := util.InvalidateUserSessions(c.Request.Context(), uid); err != nil {
		logrus.WithError(err).WithField("user_id", uid).Warn("failed to drop cached sessions")
	}
	util.ForgetUser(uid)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "User deleted"})
}
