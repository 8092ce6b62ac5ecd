package endpoint_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateUser_Self(t *testing.T) {
	r, db := SetupTestServer(t)
	actor := newActor(t, r, db, model.RoleReceptionist)
	other := actorIn(t, r, db, actor.Org, model.RoleReceptionist)

	w, _ := call(t, r, http.MethodPatch, "/user", actor.Token, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(t, r, http.MethodPatch, "/user", actor.Token, map[string]interface{}{"email": other.User.Email})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, resp := call(t, r, http.MethodPatch, "/user", actor.Token, map[string]interface{}{"name": "Laura Ríos"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataMap(t, resp)
	assert.Equal(t, "Laura Ríos", data["name"])
	assert.Nil(t, data["password"])

	// role changes are ignored on self-service updates
	w, _ = call(t, r, http.MethodPatch, "/user", actor.Token, map[string]interface{}{"name": "Laura", "role_id": model.RoleAdmin})
	require.Equal(t, http.StatusOK, w.Code)
	var stored model.User
	require.NoError(t, db.First(&stored, actor.User.ID).Error)
	assert.Equal(t, model.RoleReceptionist, stored.RoleID)
}

func TestUpdateUser_PasswordChangeInvalidatesSessions(t *testing.T) {
	r, db := SetupTestServer(t)
	actor := newActor(t, r, db, model.RoleSpecialist)
	util.SetSecurityLoggerDB(db)
	t.Cleanup(func() { util.SetSecurityLoggerDB(nil) })

	w, _ := call(t, r, http.MethodPatch, "/user", actor.Token, map[string]interface{}{"password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(t, r, http.MethodPatch, "/user", actor.Token, map[string]interface{}{"password": "newpassword123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = call(t, r, http.MethodGet, "/organization", actor.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = call(t, r, http.MethodPost, "/login", "", map[string]string{"email": actor.User.Email, "password": "newpassword123"})
	assert.Equal(t, http.StatusOK, w.Code)

	var events int64
	db.Model(&model.SecurityLog{}).Where("event_type = ?", string(util.EventPasswordChanged)).Count(&events)
	assert.Equal(t, int64(1), events)
}

func TestAdminUserManagement(t *testing.T) {
	r, db := SetupTestServer(t)
	admin := newActor(t, r, db, model.RoleAdmin)
	staff := actorIn(t, r, db, admin.Org, model.RoleReceptionist)
	stranger := newActor(t, r, db, model.RoleReceptionist)

	w, resp := call(t, r, http.MethodGet, "/user", admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), dataMap(t, resp)["total"])

	w, _ = call(t, r, http.MethodGet, "/user", staff.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = call(t, r, http.MethodGet, fmt.Sprintf("/user/%d", stranger.User.ID), admin.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = call(t, r, http.MethodPatch, fmt.Sprintf("/user/%d", staff.User.ID), admin.Token, map[string]interface{}{"role_id": 99})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = call(t, r, http.MethodPatch, fmt.Sprintf("/user/%d", staff.User.ID), admin.Token, map[string]interface{}{"role_id": model.RoleSpecialist})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(model.RoleSpecialist), dataMap(t, resp)["role_id"])

	w, _ = call(t, r, http.MethodDelete, fmt.Sprintf("/user/%d", admin.User.ID), admin.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = call(t, r, http.MethodDelete, fmt.Sprintf("/user/%d", staff.User.ID), admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = call(t, r, http.MethodGet, "/organization", staff.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
