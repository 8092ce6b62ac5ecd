package endpoint_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariebrainware/kinesio-turnos/config"
	"github.com/ariebrainware/kinesio-turnos/endpoint"
	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPassword = "password123"

// SetupTestServer returns the full API router on a fresh in-memory database
// with roles seeded.
func SetupTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db, err := config.ConnectDatabase()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	require.NoError(t, model.SeedRoles(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	r := gin.New()
	endpoint.RegisterRoutes(r, db)
	return r, db
}

type testActor struct {
	Token string
	User  model.User
	Org   model.Organization
}

func createOrg(t *testing.T, db *gorm.DB, name string) model.Organization {
	t.Helper()
	org := model.Organization{Name: name, Timezone: "UTC", Address: "Av. Siempreviva 742"}
	require.NoError(t, db.Create(&org).Error)
	require.NoError(t, model.SeedSpecialties(db, org.ID))
	return org
}

func createUser(t *testing.T, db *gorm.DB, orgID uint, roleID uint32, email string) model.User {
	t.Helper()
	salt, err := util.GenerateSalt()
	require.NoError(t, err)
	hash, err := util.HashPasswordArgon2(testPassword, salt)
	require.NoError(t, err)
	user := model.User{OrganizationID: orgID, Name: "Test " + email, Email: email, Password: hash, PasswordSalt: salt, RoleID: roleID}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func loginAs(t *testing.T, r http.Handler, email string) string {
	t.Helper()
	w, resp := call(t, r, http.MethodPost, "/login", "", map[string]string{"email": email, "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := resp["data"].(map[string]interface{})
	return data["token"].(string)
}

// newActor creates an organization and a logged-in user with the given role.
func newActor(t *testing.T, r http.Handler, db *gorm.DB, roleID uint32) testActor {
	t.Helper()
	org := createOrg(t, db, fmt.Sprintf("Clinica %d", time.Now().UnixNano()))
	return actorIn(t, r, db, org, roleID)
}

func actorIn(t *testing.T, r http.Handler, db *gorm.DB, org model.Organization, roleID uint32) testActor {
	t.Helper()
	email := fmt.Sprintf("user%d@example.com", time.Now().UnixNano())
	user := createUser(t, db, org.ID, roleID, email)
	return testActor{Token: loginAs(t, r, email), User: user, Org: org}
}

// call performs a JSON request and decodes the envelope.
func call(t *testing.T, r http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	switch v := body.(type) {
	case nil:
		reader = strings.NewReader("")
	case string:
		reader = strings.NewReader(v)
	default:
		b, err := json.Marshal(v)
		require.NoError(t, err)
		reader = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("session-token", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func dataMap(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "data is not an object: %v", resp["data"])
	return data
}

func idOf(t *testing.T, resp map[string]interface{}) uint {
	t.Helper()
	id, ok := dataMap(t, resp)["ID"].(float64)
	require.True(t, ok, "missing ID in %v", resp["data"])
	return uint(id)
}

// nextWeekday returns midnight UTC of the first given weekday at least a week away.
func nextWeekday(day time.Weekday) time.Time {
	d := time.Now().UTC().AddDate(0, 0, 7)
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	for d.Weekday() != day {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func at(day time.Time, hour, minute int) string {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute).Format(time.RFC3339)
}
