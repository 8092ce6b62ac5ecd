package util

import (
	"fmt"
	"testing"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupUtilTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:util_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Organization{}, &model.Role{}, &model.User{}, &model.SecurityLog{}))
	return db
}

func TestLookupUser_CachesDatabaseResult(t *testing.T) {
	db := setupUtilTestDB(t)
	InitUserCache(time.Minute)
	t.Cleanup(func() { userCache = nil })

	org := model.Organization{Name: "Clinic"}
	require.NoError(t, db.Create(&org).Error)
	user := model.User{OrganizationID: org.ID, Name: "Ana", Email: "ana@example.com", Password: "x", RoleID: model.RoleAdmin}
	require.NoError(t, db.Create(&user).Error)

	identity, ok := LookupUser(db, user.ID)
	require.True(t, ok)
	assert.Equal(t, UserIdentity{Email: "ana@example.com", OrganizationID: org.ID}, identity)

	// served from cache even without a db
	identity, ok = LookupUser(nil, user.ID)
	assert.True(t, ok)
	assert.Equal(t, "ana@example.com", identity.Email)

	ForgetUser(user.ID)
	_, ok = LookupUser(nil, user.ID)
	assert.False(t, ok)
}

func TestLookupUser_Unknown(t *testing.T) {
	db := setupUtilTestDB(t)
	InitUserCache(0)
	t.Cleanup(func() { userCache = nil })

	_, ok := LookupUser(db, 0)
	assert.False(t, ok)
	_, ok = LookupUser(db, 999)
	assert.False(t, ok)
}

func TestInitUserCacheFromEnv(t *testing.T) {
	t.Setenv("USER_CACHE_TTL_SECONDS", "bogus")
	InitUserCacheFromEnv()
	assert.NotNil(t, userCache)
	userCache = nil
}
