package util

import (
	"fmt"
	"os"
	"strconv"
	"time"

	cache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// UserIdentity is the subset of a user needed to annotate audit and call logs.
type UserIdentity struct {
	Email          string
	OrganizationID uint
}

var userCache *cache.Cache

// InitUserCache initializes the user identity cache with the given TTL.
// A non-positive ttl falls back to ten minutes.
func InitUserCache(ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	userCache = cache.New(ttl, 2*ttl)
}

// InitUserCacheFromEnv reads USER_CACHE_TTL_SECONDS.
func InitUserCacheFromEnv() {
	secs, err := strconv.Atoi(os.Getenv("USER_CACHE_TTL_SECONDS"))
	if err != nil {
		InitUserCache(0)
		return
	}
	InitUserCache(time.Duration(secs) * time.Second)
}

func userCacheKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// ForgetUser evicts a cached identity, e.g. after the user's email changes.
func ForgetUser(userID uint) {
	if userCache != nil {
		userCache.Delete(userCacheKey(userID))
	}
}

// LookupUser returns the identity for userID using the cache, falling back to
// the users table and caching the result.
func LookupUser(db *gorm.DB, userID uint) (UserIdentity, bool) {
	if userID == 0 {
		return UserIdentity{}, false
	}
	if userCache != nil {
		if v, ok := userCache.Get(userCacheKey(userID)); ok {
			return v.(UserIdentity), true
		}
	}
	if db == nil {
		return UserIdentity{}, false
	}
	var row struct {
		Email          string
		OrganizationID uint
	}
	if err := db.Table("users").Select("email, organization_id").
		Where("id = ? AND deleted_at IS NULL", userID).Take(&row).Error; err != nil {
		return UserIdentity{}, false
	}
	identity := UserIdentity{Email: row.Email, OrganizationID: row.OrganizationID}
	if userCache != nil {
		userCache.SetDefault(userCacheKey(userID), identity)
	}
	return identity, true
}
