package endpoint

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/notifier"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrPatientExists = errors.New("patient already registered with this document number")

type patientListQuery struct {
	listQuery
	GroupByDate string
	SortBy      string
	SortDir     string
}

func parsePatientQuery(c *gin.Context) patientListQuery {
	return patientListQuery{
		listQuery:   parseListQuery(c),
		GroupByDate: c.Query("group_by_date"),
		SortBy:      c.Query("sort"),                      // full_name, history_number
		SortDir:     strings.ToLower(c.Query("sort_dir")), // asc, desc
	}
}

// applyCreatedAtFilter applies a created_at filter for supported ranges.
// Supported values for groupByDate: "last_2_days", "last_3_months", "last_6_months".
func applyCreatedAtFilter(query *gorm.DB, groupByDate string, now time.Time) *gorm.DB {
	switch groupByDate {
	case "last_2_days":
		query = query.Where("created_at >= ?", now.AddDate(0, 0, -2))
	case "last_3_months":
		query = query.Where("created_at >= ?", now.AddDate(0, -3, 0))
	case "last_6_months":
		query = query.Where("created_at >= ?", now.AddDate(0, -6, 0))
	default:
		if groupByDate != "" {
			logrus.WithField("group_by_date", groupByDate).Debug("unknown group_by_date value")
		}
	}
	return query
}

func fetchPatients(tenant *gorm.DB, q patientListQuery, now time.Time) ([]model.Patient, int64, error) {
	query := tenant.Model(&model.Patient{})
	if q.Keyword != "" {
		kw := "%" + strings.ToLower(q.Keyword) + "%"
		query = query.Where("LOWER(full_name) LIKE ? OR document_number LIKE ? OR phone_number LIKE ? OR history_number LIKE ?", kw, kw, kw, kw)
	}
	query = applyCreatedAtFilter(query, q.GroupByDate, now)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderDir := "ASC"
	if q.SortDir == "desc" {
		orderDir = "DESC"
	}
	switch q.SortBy {
	case "full_name":
		query = query.Order("full_name " + orderDir)
	case "history_number":
		query = query.Order("history_number " + orderDir)
	default:
		query = query.Order("created_at DESC")
	}

	var patients []model.Patient
	if err := q.apply(query).Find(&patients).Error; err != nil {
		return nil, 0, err
	}
	return patients, total, nil
}

// ListPatients godoc
// @Summary      List patients
// @Description  Get a paginated list of patients of the organization with optional filtering
// @Tags         Patient
// @Produce      json
// @Security     SessionToken
// @Param        limit query int false "Limit number of results"
// @Param        offset query int false "Offset for pagination"
// @Param        keyword query string false "Search keyword for name, document, phone or history number"
// @Param        group_by_date query string false "Filter by date range (last_2_days, last_3_months, last_6_months)"
// @Param        sort query string false "Optional sort field: full_name|history_number"
// @Param        sort_dir query string false "Optional sort direction: asc|desc"
// @Success      200 {object} util.APIResponse{data=object} "Patients retrieved"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /patient [get]
func ListPatients(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	patients, total, err := fetchPatients(s.Tenant, parsePatientQuery(c), time.Now().UTC())
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve patients", Err: err})
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Patients retrieved",
		Data: map[string]interface{}{"total": total, "total_fetched": len(patients), "patients": patients},
	})
}

// PatientDetail is a patient with its derived age (null when the birth date is unknown).
type PatientDetail struct {
	model.Patient
	Age *int `json:"age"`
}

func newPatientDetail(p model.Patient, now time.Time) PatientDetail {
	d := PatientDetail{Patient: p}
	if age := p.Age(now); age >= 0 {
		d.Age = &age
	}
	return d
}

// GetPatientInfo godoc
// @Summary      Get patient
// @Tags         Patient
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Patient ID"
// @Success      200 {object} util.APIResponse{data=PatientDetail} "Patient info retrieved"
// @Failure      400 {object} util.APIResponse "Invalid patient id"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /patient/{id} [get]
func GetPatientInfo(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var patient model.Patient
	if err := s.Tenant.First(&patient, id).Error; err != nil {
		respondFetchError(c, err, "Patient")
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Patient info retrieved",
		Data: newPatientDetail(patient, time.Now().In(s.location())),
	})
}

type createPatientRequest struct {
	FullName        string `json:"full_name" binding:"required" example:"María Pérez"`
	DocumentNumber  string `json:"document_number" example:"30123456"`
	BirthDate       string `json:"birth_date" example:"1985-04-21"`
	Gender          string `json:"gender" example:"F"`
	PhoneNumber     string `json:"phone_number" binding:"omitempty,ar_phone" example:"11 15 4567-8901"`
	Email           string `json:"email" binding:"omitempty,email" example:"maria@example.com"`
	Address         string `json:"address" example:"Av. Corrientes 1234"`
	HealthInsurance string `json:"health_insurance" example:"OSDE"`
	InsuranceNumber string `json:"insurance_number" example:"61234567801"`
	HealthHistory   string `json:"health_history" example:"Hipertensión"`
	SurgeryHistory  string `json:"surgery_history" example:"Artroscopía de rodilla 2019"`
	Notes           string `json:"notes"`
}

func normalizeDocument(doc string) string {
	return strings.NewReplacer(".", "", " ", "", "-", "").Replace(strings.TrimSpace(doc))
}

func parseBirthDate(value string, loc *time.Location) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := util.ParseDate(value, loc)
	if err != nil {
		return nil, fmt.Errorf("birth_date must be formatted as YYYY-MM-DD")
	}
	t = t.UTC()
	return &t, nil
}

// ensureDocumentAvailable rejects a document number already used by another
// patient of the same organization.
func ensureDocumentAvailable(tenant *gorm.DB, document string, excludeID uint) error {
	if document == "" {
		return nil
	}
	var count int64
	if err := tenant.Model(&model.Patient{}).Where("document_number = ? AND id != ?", document, excludeID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrPatientExists
	}
	return nil
}

func buildPatientModel(req createPatientRequest, orgID uint, birth *time.Time) model.Patient {
	return model.Patient{
		OrganizationID:  orgID,
		FullName:        util.NormalizeName(req.FullName),
		DocumentNumber:  normalizeDocument(req.DocumentNumber),
		BirthDate:       birth,
		Gender:          req.Gender,
		PhoneNumber:     strings.TrimSpace(req.PhoneNumber),
		Email:           strings.TrimSpace(req.Email),
		Address:         req.Address,
		HealthInsurance: req.HealthInsurance,
		InsuranceNumber: req.InsuranceNumber,
		HealthHistory:   req.HealthHistory,
		SurgeryHistory:  req.SurgeryHistory,
		Notes:           req.Notes,
	}
}

// CreatePatient godoc
// @Summary      Create a new patient
// @Description  Register a patient and assign the next clinical history number
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        request body createPatientRequest true "Patient information"
// @Success      201 {object} util.APIResponse{data=model.Patient} "Patient created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      409 {object} util.APIResponse "Patient already exists"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /patient [post]
func CreatePatient(c *gin.Context) {
	var req createPatientRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	birth, err := parseBirthDate(req.BirthDate, s.location())
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}

	patient := buildPatientModel(req, s.OrgID, birth)
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := ensureDocumentAvailable(s.scoped(tx), patient.DocumentNumber, 0); err != nil {
			return err
		}
		number, err := model.NextHistoryNumber(tx, s.OrgID)
		if err != nil {
			return fmt.Errorf("reserve history number: %w", err)
		}
		patient.HistoryNumber = number
		return tx.Create(&patient).Error
	})
	if errors.Is(err, ErrPatientExists) {
		util.CallConflict(c, util.APIErrorParams{Msg: "Patient already exists with same document number", Err: err})
		return
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to create patient", Err: err})
		return
	}

	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Patient created", Data: patient})
}

func applyPatientUpdates(p *model.Patient, req model.UpdatePatientRequest, birth *time.Time) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	if req.FullName != "" {
		p.FullName = util.NormalizeName(req.FullName)
	}
	if req.DocumentNumber != "" {
		p.DocumentNumber = normalizeDocument(req.DocumentNumber)
	}
	if birth != nil {
		p.BirthDate = birth
	}
	set(&p.Gender, req.Gender)
	set(&p.PhoneNumber, strings.TrimSpace(req.PhoneNumber))
	set(&p.Email, strings.TrimSpace(req.Email))
	set(&p.Address, req.Address)
	set(&p.HealthInsurance, req.HealthInsurance)
	set(&p.InsuranceNumber, req.InsuranceNumber)
	set(&p.HealthHistory, req.HealthHistory)
	set(&p.SurgeryHistory, req.SurgeryHistory)
	set(&p.Notes, req.Notes)
}

// UpdatePatient godoc
// @Summary      Update patient information
// @Tags         Patient
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Patient ID"
// @Param        request body model.UpdatePatientRequest true "Updated patient information"
// @Success      200 {object} util.APIResponse{data=model.Patient} "Patient updated"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Failure      409 {object} util.APIResponse "Document number already used"
// @Router       /patient/{id} [patch]
func UpdatePatient(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	var req model.UpdatePatientRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	var patient model.Patient
	if err := s.Tenant.First(&patient, id).Error; err != nil {
		respondFetchError(c, err, "Patient")
		return
	}

	birth, err := parseBirthDate(req.BirthDate, s.location())
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}
	oldPhone := patient.PhoneNumber
	applyPatientUpdates(&patient, req, birth)

	if err := ensureDocumentAvailable(s.Tenant, patient.DocumentNumber, patient.ID); err != nil {
		if errors.Is(err, ErrPatientExists) {
			util.CallConflict(c, util.APIErrorParams{Msg: "Document number already used by another patient", Err: err})
			return
		}
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to check existing patient", Err: err})
		return
	}

	var retargeted int64
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&patient).Error; err != nil {
			return err
		}
		if patient.PhoneNumber == oldPhone {
			return nil
		}
		n, err := notifier.RetargetPending(tx, patient.ID, patient.PhoneNumber)
		retargeted = n
		return err
	})
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update patient", Err: err})
		return
	}
	if retargeted > 0 {
		logrus.WithFields(logrus.Fields{"patient_id": patient.ID, "notifications": retargeted}).Info("pending notifications moved to new phone")
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Patient updated", Data: patient})
}

// DeletePatient godoc
// @Summary      Delete patient
// @Description  Soft-delete a patient and cancel its pending notifications
// @Tags         Patient
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Patient ID"
// @Success      200 {object} util.APIResponse "Patient deleted"
// @Failure      400 {object} util.APIResponse "Invalid patient id"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /patient/{id} [delete]
func DeletePatient(c *gin.Context) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return
	}
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var patient model.Patient
		if err := s.scoped(tx).First(&patient, id).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Notification{}).
			Where("patient_id = ? AND status = ?", patient.ID, model.NotificationPending).
			Update("status", model.NotificationCancelled).Error; err != nil {
			return err
		}
		return tx.Delete(&patient).Error
	})
	if err != nil {
		respondFetchError(c, err, "Patient")
		return
	}

	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Patient deleted"})
}
