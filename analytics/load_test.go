package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:analytics_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

func TestLoad(t *testing.T) {
	db := setupTestDB(t)
	specialty := model.Specialty{OrganizationID: 1, Name: "Fisioterapia"}
	require.NoError(t, db.Create(&specialty).Error)
	specialist := model.Specialist{OrganizationID: 1, FullName: "Lic. Ana"}
	require.NoError(t, db.Create(&specialist).Error)

	rows := []model.Appointment{
		{OrganizationID: 1, PatientID: 1, SpecialistID: specialist.ID, SpecialtyID: specialty.ID, StartAt: at(10, 9).UTC(), EndAt: at(10, 10).UTC(), Status: model.StatusAttended, Price: decimal.NewFromInt(1000)},
		{OrganizationID: 1, PatientID: 1, SpecialistID: specialist.ID, SpecialtyID: specialty.ID, StartAt: at(11, 9).UTC(), EndAt: at(11, 10).UTC(), Status: model.StatusScheduled, Price: decimal.NewFromInt(1000)},
		{OrganizationID: 2, PatientID: 1, SpecialistID: specialist.ID, SpecialtyID: specialty.ID, StartAt: at(11, 9).UTC(), EndAt: at(11, 10).UTC(), Status: model.StatusAttended, Price: decimal.NewFromInt(5000)},
		{OrganizationID: 1, PatientID: 1, SpecialistID: specialist.ID, SpecialtyID: specialty.ID, StartAt: at(20, 9).UTC(), EndAt: at(20, 10).UTC(), Status: model.StatusAttended, Price: decimal.NewFromInt(5000)},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	s, err := Load(context.Background(), db, 1, Range{From: at(10, 0), To: at(17, 0)}, Week, art)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Total)
	assert.True(t, s.Revenue.Equal(decimal.NewFromInt(1000)), s.Revenue.String())
	require.Len(t, s.BySpecialty, 1)
	assert.Equal(t, "Fisioterapia", s.BySpecialty[0].Name)
	require.Len(t, s.BySpecialist, 1)
	assert.Equal(t, "Lic. Ana", s.BySpecialist[0].Name)
}
