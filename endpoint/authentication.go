package endpoint

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariebrainware/kinesio-turnos/config"
	"github.com/ariebrainware/kinesio-turnos/middleware"
	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	maxFailedAttempts = 5
	lockoutDuration   = 15 * time.Minute
)

// seedSpecialties is replaced in tests to exercise the signup rollback.
var seedSpecialties = model.SeedSpecialties

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" example:"admin@kinesio.com"`
	Password string `json:"password" binding:"required" example:"password123"`
}

type LoginResponse struct {
	Token          string    `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	Role           string    `json:"role" example:"Admin"`
	UserID         uint      `json:"user_id" example:"1"`
	OrganizationID uint      `json:"organization_id" example:"1"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type loginContext struct {
	C     *gin.Context
	DB    *gorm.DB
	Email string
	CI    clientInfo
}

func sessionTTL() time.Duration {
	if cfg := config.LoadConfig(); cfg != nil && cfg.SessionTTL > 0 {
		return cfg.SessionTTL
	}
	return 12 * time.Hour
}

// Login godoc
// @Summary      User login
// @Description  Authenticate user with email and password
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} util.APIResponse{data=LoginResponse} "Login successful"
// @Failure      400 {object} util.APIResponse "Invalid request payload"
// @Failure      401 {object} util.APIResponse "Invalid email or password"
// @Failure      423 {object} util.APIResponse "Account locked"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /login [post]
func Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	ctx := loginContext{C: c, DB: db, Email: strings.ToLower(strings.TrimSpace(req.Email)), CI: clientInfoFrom(c)}

	user, ok := loadUserForLogin(ctx)
	if !ok {
		return
	}
	if !ensureAccountNotLocked(ctx, &user) {
		return
	}
	if !verifyPasswordOrRespond(ctx, &user, req.Password) {
		return
	}
	finalizeLogin(ctx, &user, req.Password)
}

func loadUserForLogin(ctx loginContext) (model.User, bool) {
	user, err := loadUserByEmail(ctx.DB, ctx.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.LogLoginFailure(util.LoginParams{Email: ctx.Email, IP: ctx.CI.IP, UserAgent: ctx.CI.Agent, Reason: "user not found"})
		util.CallUserNotAuthorized(ctx.C, util.APIErrorParams{Msg: "Invalid email or password", Err: fmt.Errorf("user not found")})
		return model.User{}, false
	}
	if err != nil {
		util.LogLoginFailure(util.LoginParams{Email: ctx.Email, IP: ctx.CI.IP, UserAgent: ctx.CI.Agent, Reason: "database error"})
		util.CallServerError(ctx.C, util.APIErrorParams{Msg: "Database error", Err: err})
		return model.User{}, false
	}
	return user, true
}

func ensureAccountNotLocked(ctx loginContext, user *model.User) bool {
	if locked, expiry := isAccountLocked(user); locked {
		util.LogLoginFailure(util.LoginParams{OrganizationID: user.OrganizationID, UserID: user.ID, Email: ctx.Email, IP: ctx.CI.IP, UserAgent: ctx.CI.Agent, Reason: "account locked"})
		util.CallLocked(ctx.C, util.APIErrorParams{
			Msg: fmt.Sprintf("Account is locked until %s due to multiple failed login attempts", expiry.Format(time.RFC3339)),
			Err: fmt.Errorf("account locked"),
		})
		return false
	}
	return true
}

func verifyPasswordOrRespond(ctx loginContext, user *model.User, plain string) bool {
	match, err := util.VerifyPassword(plain, user.Password, user.PasswordSalt)
	if err != nil {
		util.LogLoginFailure(util.LoginParams{UserID: user.ID, Email: ctx.Email, IP: ctx.CI.IP, UserAgent: ctx.CI.Agent, Reason: "password verification error"})
		util.CallServerError(ctx.C, util.APIErrorParams{Msg: "Password verification failed", Err: err})
		return false
	}
	if !match {
		incrementFailedAttempts(ctx.DB, user, ctx.CI)
		util.LogLoginFailure(util.LoginParams{OrganizationID: user.OrganizationID, UserID: user.ID, Email: ctx.Email, IP: ctx.CI.IP, UserAgent: ctx.CI.Agent, Reason: "invalid password"})
		util.CallUserNotAuthorized(ctx.C, util.APIErrorParams{Msg: "Invalid email or password", Err: fmt.Errorf("invalid password")})
		return false
	}
	return true
}

func finalizeLogin(ctx loginContext, user *model.User, plain string) {
	if err := resetFailedAttempts(ctx.DB, user); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("failed to reset failed login attempts")
	}
	if err := upgradeLegacyPasswordIfNeeded(ctx.DB, user, plain, ctx.CI); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("failed to upgrade legacy password hash")
	}

	resp, err := openSession(ctx.C, ctx.DB, *user, ctx.CI)
	if err != nil {
		util.LogLoginFailure(util.LoginParams{UserID: user.ID, Email: ctx.Email, IP: ctx.CI.IP, UserAgent: ctx.CI.Agent, Reason: "session creation failed"})
		util.CallServerError(ctx.C, util.APIErrorParams{Msg: "Failed to record session", Err: err})
		return
	}

	if err := middleware.ResetRateLimit(ctx.C.Request.Context(), ctx.CI.IP, ctx.C.Request.URL.Path); err != nil {
		logrus.WithError(err).Debug("failed to reset login rate limit")
	}
	util.LogLoginSuccess(util.LoginParams{OrganizationID: user.OrganizationID, UserID: user.ID, Email: user.Email, IP: ctx.CI.IP, UserAgent: ctx.CI.Agent})
	util.CallSuccessOK(ctx.C, util.APISuccessParams{Msg: "Login successful", Data: resp})
}

// openSession issues a signed token, records the session row and caches it.
func openSession(c *gin.Context, db *gorm.DB, user model.User, ci clientInfo) (LoginResponse, error) {
	role, err := fetchRole(db, user.RoleID)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("fetch role: %w", err)
	}

	ttl := sessionTTL()
	expires := time.Now().UTC().Add(ttl)
	token, err := createJWTToken(user, expires)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	session := model.Session{UserID: user.ID, SessionToken: token, ExpiresAt: expires, ClientIP: ci.IP, Browser: ci.Agent}
	if err := db.Create(&session).Error; err != nil {
		return LoginResponse{}, fmt.Errorf("record session: %w", err)
	}

	info := util.SessionInfo{UserID: user.ID, RoleID: user.RoleID, OrganizationID: user.OrganizationID}
	if err := util.CacheSession(c.Request.Context(), token, info, ttl); err != nil {
		logrus.WithError(err).Warn("failed to cache session")
	}

	return LoginResponse{Token: token, Role: role.Name, UserID: user.ID, OrganizationID: user.OrganizationID, ExpiresAt: expires}, nil
}

func loadUserByEmail(db *gorm.DB, email string) (model.User, error) {
	var user model.User
	err := db.Where("email = ?", email).First(&user).Error
	return user, err
}

func isAccountLocked(user *model.User) (bool, time.Time) {
	if user.LockedUntil != nil && *user.LockedUntil > time.Now().Unix() {
		return true, time.Unix(*user.LockedUntil, 0)
	}
	return false, time.Time{}
}

func incrementFailedAttempts(db *gorm.DB, user *model.User, ci clientInfo) {
	user.FailedAttempts++
	if user.FailedAttempts >= maxFailedAttempts {
		lockUntil := time.Now().Add(lockoutDuration).Unix()
		user.LockedUntil = &lockUntil
		util.LogAccountLocked(util.AccountLockParams{OrganizationID: user.OrganizationID, UserID: user.ID, Email: user.Email, IP: ci.IP, Reason: "too many failed login attempts"})
	}
	if err := db.Model(user).Select("failed_attempts", "locked_until").Updates(user).Error; err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("failed to update failed attempts")
	}
}

func resetFailedAttempts(db *gorm.DB, user *model.User) error {
	if user.FailedAttempts == 0 && user.LockedUntil == nil {
		return nil
	}
	user.FailedAttempts = 0
	user.LockedUntil = nil
	return db.Model(user).Select("failed_attempts", "locked_until").Updates(user).Error
}

func upgradeLegacyPasswordIfNeeded(db *gorm.DB, user *model.User, plain string, ci clientInfo) error {
	if !util.IsLegacyHash(user.Password) {
		return nil
	}
	if err := hashUserPassword(user, plain); err != nil {
		return err
	}
	if err := db.Model(user).Select("password", "password_salt").Updates(user).Error; err != nil {
		util.LogSecurityEvent(util.SecurityEvent{EventType: util.EventSuspiciousActivity, UserID: fmt.Sprintf("%d", user.ID), Email: user.Email, IP: ci.IP, Message: fmt.Sprintf("Failed to upgrade password hash: %v", err)})
		return err
	}
	util.LogSecurityEvent(util.SecurityEvent{EventType: util.EventPasswordChanged, OrganizationID: user.OrganizationID, UserID: fmt.Sprintf("%d", user.ID), Email: user.Email, IP: ci.IP, Message: "Upgraded password hash to Argon2"})
	return nil
}

func fetchRole(db *gorm.DB, roleID uint32) (model.Role, error) {
	var role model.Role
	err := db.Where("id = ?", roleID).First(&role).Error
	return role, err
}

func createJWTToken(user model.User, expires time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   fmt.Sprintf("%d", user.ID),
		"email": user.Email,
		"role":  user.RoleID,
		"org":   user.OrganizationID,
		"iat":   time.Now().Unix(),
		"exp":   expires.Unix(),
		"jti":   uuid.NewString(),
	})
	return token.SignedString(util.GetJWTSecretByte())
}

// Logout godoc
// @Summary      User logout
// @Description  Invalidate the user session token
// @Tags         Authentication
// @Produce      json
// @Security     SessionToken
// @Success      200 {object} util.APIResponse "Logout successful"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /logout [delete]
func Logout(c *gin.Context) {
	sessionToken := c.GetHeader(middleware.SessionTokenHeader)
	if sessionToken == "" {
		util.CallUserNotAuthorized(c, util.APIErrorParams{Msg: "Session token not provided", Err: fmt.Errorf("session token not provided")})
		return
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	var session model.Session
	if err := db.Where("session_token = ?", sessionToken).First(&session).Error; err != nil {
		util.CallUserNotAuthorized(c, util.APIErrorParams{Msg: "Session not found", Err: err})
		return
	}

	if err := db.Delete(&session).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to delete session", Err: err})
		return
	}
	if err := util.ForgetSession(c.Request.Context(), session.UserID, sessionToken); err != nil {
		logrus.WithError(err).Warn("failed to drop cached session")
	}

	var user model.User
	if err := db.First(&user, session.UserID).Error; err == nil {
		util.LogLogout(util.LoginParams{OrganizationID: user.OrganizationID, UserID: user.ID, Email: user.Email, IP: c.ClientIP(), UserAgent: c.Request.UserAgent()})
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Logout successful"})
}

type RegisterRequest struct {
	Name                string `json:"name" binding:"required" example:"Ana Gómez"`
	Email               string `json:"email" binding:"required,email" example:"ana@kinesio.com"`
	Password            string `json:"password" binding:"required,min=8" example:"password123"`
	OrganizationName    string `json:"organization_name" binding:"required" example:"Centro Kinesio Palermo"`
	OrganizationPhone   string `json:"organization_phone" example:"1145678901"`
	OrganizationAddress string `json:"organization_address" example:"Av. Santa Fe 1234, CABA"`
	Timezone            string `json:"timezone" example:"America/Argentina/Buenos_Aires"`
}

// signup tracks what a registration created so it can be undone.
type signup struct {
	db   *gorm.DB
	user *model.User
	org  *model.Organization
	ci   clientInfo
}

// rollback deletes everything the registration created. The user row is
// created first, outside any transaction, so it must be removed explicitly.
func (s *signup) rollback(reason string) {
	if s.org != nil && s.org.ID != 0 {
		_ = s.db.Unscoped().Where("organization_id = ?", s.org.ID).Delete(&model.Specialty{}).Error
		_ = s.db.Unscoped().Delete(s.org).Error
	}
	if s.user != nil && s.user.ID != 0 {
		_ = s.db.Unscoped().Where("user_id = ?", s.user.ID).Delete(&model.Session{}).Error
		if err := s.db.Unscoped().Delete(s.user).Error; err != nil {
			logrus.WithError(err).WithField("user_id", s.user.ID).Error("failed to roll back signup user")
		}
	}
	util.LogSignupRollback(util.LoginParams{UserID: s.user.ID, Email: s.user.Email, IP: s.ci.IP, UserAgent: s.ci.Agent, Reason: reason})
}

func ensureEmailAvailable(c *gin.Context, db *gorm.DB, email string) bool {
	var count int64
	if err := db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Database error", Err: err})
		return false
	}
	if count > 0 {
		util.CallConflict(c, util.APIErrorParams{Msg: "Email already exists", Err: fmt.Errorf("email already exists")})
		return false
	}
	return true
}

// Register godoc
// @Summary      Register an organization
// @Description  Create an admin account together with its organization and default specialties
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration details"
// @Success      201 {object} util.APIResponse{data=LoginResponse} "Registration successful"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      409 {object} util.APIResponse "Email already exists"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /register [post]
func Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: "Unknown timezone", Err: err})
			return
		}
	}

	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !ensureEmailAvailable(c, db, email) {
		return
	}

	user := model.User{Name: util.NormalizeName(req.Name), Email: email, RoleID: model.RoleAdmin}
	if err := hashUserPassword(&user, req.Password); err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to hash password", Err: err})
		return
	}
	if err := db.Create(&user).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to create new user", Err: err})
		return
	}

	s := &signup{db: db, user: &user, ci: clientInfoFrom(c)}
	fail := func(msg string, err error) {
		s.rollback(err.Error())
		util.CallServerError(c, util.APIErrorParams{Msg: msg, Err: err})
	}

	org := model.Organization{
		Name:     util.NormalizeName(req.OrganizationName),
		Phone:    req.OrganizationPhone,
		Address:  req.OrganizationAddress,
		Timezone: req.Timezone,
		IsActive: true,
	}
	if err := db.Create(&org).Error; err != nil {
		fail("Failed to create organization", err)
		return
	}
	s.org = &org

	user.OrganizationID = org.ID
	if err := db.Model(&user).Update("organization_id", org.ID).Error; err != nil {
		fail("Failed to link user to organization", err)
		return
	}
	if err := seedSpecialties(db, org.ID); err != nil {
		fail("Failed to create default specialties", err)
		return
	}

	resp, err := openSession(c, db, user, s.ci)
	if err != nil {
		fail("Failed to record session", err)
		return
	}

	util.LogSecurityEvent(util.SecurityEvent{
		EventType:      util.EventSignupSuccess,
		OrganizationID: org.ID,
		UserID:         fmt.Sprintf("%d", user.ID),
		Email:          user.Email,
		IP:             s.ci.IP,
		UserAgent:      s.ci.Agent,
		Message:        "Organization registered",
	})
	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Registration successful", Data: resp})
}

// VerifyPasswordRequest represents the request body for password verification
type VerifyPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// VerifyPassword godoc
// @Summary      Verify current user's password
// @Description  Validate the provided current password for the authenticated user
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body VerifyPasswordRequest true "Password to verify"
// @Success      200 {object} util.APIResponse "Password verified"
// @Failure      400 {object} util.APIResponse "Invalid request payload"
// @Failure      401 {object} util.APIResponse "Invalid password or unauthorized"
// @Failure      404 {object} util.APIResponse "User not found"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /verify-password [post]
func VerifyPassword(c *gin.Context) {
	var req VerifyPasswordRequest
	if !bindJSONOrRespond(c, &req, "Invalid request payload") {
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

	match, err := util.VerifyPassword(req.Password, user.Password, user.PasswordSalt)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Password verification failed", Err: err})
		return
	}
	if !match {
		util.CallUserNotAuthorized(c, util.APIErrorParams{Msg: "Invalid password", Err: fmt.Errorf("provided password does not match")})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Password verified", Data: map[string]bool{"verified": true}})
}
