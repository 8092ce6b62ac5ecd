package endpoint

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariebrainware/kinesio-turnos/middleware"
	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/ariebrainware/kinesio-turnos/report"
	"github.com/ariebrainware/kinesio-turnos/util"
	"github.com/gin-gonic/gin"
)

var (
	ErrAppointmentMismatch = errors.New("appointment does not belong to this patient")
	ErrNotRecordAuthor     = errors.New("only the author can change this record")
)

type recordRequest struct {
	SpecialistID  uint   `json:"specialist_id" example:"1"`
	SpecialtyID   uint   `json:"specialty_id" example:"1"`
	AppointmentID *uint  `json:"appointment_id"`
	RecordDate    string `json:"record_date" example:"2025-01-15 10:00"`
	Reason        string `json:"reason" example:"Lumbalgia"`
	Diagnosis     string `json:"diagnosis" example:"Contractura paravertebral"`
	Treatment     string `json:"treatment" example:"Masoterapia, TENS"`
	Evolution     string `json:"evolution" example:"Mejora del rango de movimiento"`
}

// callerSpecialist returns the specialist profile of the authenticated user,
// or nil when the caller is not a specialist.
func callerSpecialist(c *gin.Context, s tenantScope) (*model.Specialist, error) {
	role, _ := middleware.GetRoleID(c)
	if role != model.RoleSpecialist {
		return nil, nil
	}
	userID, _ := middleware.GetUserID(c)
	var sp model.Specialist
	if err := s.Tenant.Where("user_id = ?", userID).First(&sp).Error; err != nil {
		return nil, err
	}
	return &sp, nil
}

func loadPatientOrRespond(c *gin.Context, s tenantScope) (model.Patient, bool) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return model.Patient{}, false
	}
	var patient model.Patient
	if err := s.Tenant.First(&patient, id).Error; err != nil {
		respondFetchError(c, err, "Patient")
		return model.Patient{}, false
	}
	return patient, true
}

func loadPatientRecords(s tenantScope, patientID uint) ([]model.ClinicalRecord, error) {
	var records []model.ClinicalRecord
	err := s.Tenant.Preload("Specialist").Preload("Specialty").
		Where("patient_id = ?", patientID).
		Order("record_date DESC, id DESC").
		Find(&records).Error
	return records, err
}

// ListPatientRecords godoc
// @Summary      List clinical records of a patient
// @Tags         ClinicalRecord
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Patient ID"
// @Success      200 {object} util.APIResponse{data=[]model.ClinicalRecord} "Records retrieved"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /patient/{id}/record [get]
func ListPatientRecords(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	patient, ok := loadPatientOrRespond(c, s)
	if !ok {
		return
	}
	records, err := loadPatientRecords(s, patient.ID)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve records", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Records retrieved", Data: records})
}

// resolveRecordAuthor picks the specialist writing the record: the caller when
// they are a specialist, otherwise the one named in the request.
func resolveRecordAuthor(c *gin.Context, s tenantScope, requested uint) (uint, error) {
	me, err := callerSpecialist(c, s)
	if err != nil {
		return 0, fmt.Errorf("%w: specialist profile of caller", ErrUnknownReference)
	}
	if me != nil {
		return me.ID, nil
	}
	if requested == 0 {
		return 0, fmt.Errorf("%w: specialist_id is required", ErrUnknownReference)
	}
	var sp model.Specialist
	if err := firstOrUnknown(s.Tenant, &sp, requested, "specialist"); err != nil {
		return 0, err
	}
	return sp.ID, nil
}

// CreatePatientRecord godoc
// @Summary      Add a clinical record
// @Description  Specialists write records as themselves; other roles must name the specialist.
// @Tags         ClinicalRecord
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Patient ID"
// @Param        request body recordRequest true "Record"
// @Success      201 {object} util.APIResponse{data=model.ClinicalRecord} "Record created"
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /patient/{id}/record [post]
func CreatePatientRecord(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	patient, ok := loadPatientOrRespond(c, s)
	if !ok {
		return
	}
	var req recordRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}

	record := model.ClinicalRecord{
		OrganizationID: s.OrgID,
		PatientID:      patient.ID,
		SpecialtyID:    req.SpecialtyID,
		AppointmentID:  req.AppointmentID,
		RecordDate:     time.Now().UTC(),
		Reason:         strings.TrimSpace(req.Reason),
		Diagnosis:      strings.TrimSpace(req.Diagnosis),
		Treatment:      strings.TrimSpace(req.Treatment),
		Evolution:      strings.TrimSpace(req.Evolution),
	}
	if req.RecordDate != "" {
		t, err := parseDateTimeField("record_date", req.RecordDate, s.location())
		if err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
			return
		}
		record.RecordDate = t
	}

	author, err := resolveRecordAuthor(c, s, req.SpecialistID)
	if err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
		return
	}
	record.SpecialistID = author

	if req.AppointmentID != nil {
		var appt model.Appointment
		if err := firstOrUnknown(s.Tenant, &appt, *req.AppointmentID, "appointment"); err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
			return
		}
		if appt.PatientID != patient.ID {
			util.CallUserError(c, util.APIErrorParams{Msg: ErrAppointmentMismatch.Error(), Err: ErrAppointmentMismatch})
			return
		}
		if record.SpecialtyID == 0 {
			record.SpecialtyID = appt.SpecialtyID
		}
	}
	if record.SpecialtyID != 0 {
		var specialty model.Specialty
		if err := firstOrUnknown(s.Tenant, &specialty, record.SpecialtyID, "specialty"); err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
			return
		}
	}

	if err := s.DB.Create(&record).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to create record", Err: err})
		return
	}
	util.CallSuccessCreated(c, util.APISuccessParams{Msg: "Record created", Data: record})
}

// loadEditableRecord fetches a record the caller may change: admins may change
// any record, specialists only their own, everybody else none.
func loadEditableRecord(c *gin.Context, s tenantScope) (model.ClinicalRecord, bool) {
	id, ok := idParamOrRespond(c, "id")
	if !ok {
		return model.ClinicalRecord{}, false
	}
	var record model.ClinicalRecord
	if err := s.Tenant.First(&record, id).Error; err != nil {
		respondFetchError(c, err, "Record")
		return model.ClinicalRecord{}, false
	}
	if role, _ := middleware.GetRoleID(c); role == model.RoleAdmin {
		return record, true
	}
	me, err := callerSpecialist(c, s)
	if err != nil {
		util.CallForbidden(c, util.APIErrorParams{Msg: ErrNotRecordAuthor.Error(), Err: err})
		return model.ClinicalRecord{}, false
	}
	if me == nil || me.ID != record.SpecialistID {
		util.CallForbidden(c, util.APIErrorParams{Msg: ErrNotRecordAuthor.Error(), Err: ErrNotRecordAuthor})
		return model.ClinicalRecord{}, false
	}
	return record, true
}

// UpdateRecord godoc
// @Summary      Update a clinical record
// @Tags         ClinicalRecord
// @Accept       json
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Record ID"
// @Param        request body recordRequest true "Changes"
// @Success      200 {object} util.APIResponse{data=model.ClinicalRecord} "Record updated"
// @Failure      403 {object} util.APIResponse "Not the author"
// @Failure      404 {object} util.APIResponse "Record not found"
// @Router       /record/{id} [patch]
func UpdateRecord(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	var req recordRequest
	if !bindJSONOrRespond(c, &req, "Invalid request body") {
		return
	}
	record, ok := loadEditableRecord(c, s)
	if !ok {
		return
	}

	if req.RecordDate != "" {
		t, err := parseDateTimeField("record_date", req.RecordDate, s.location())
		if err != nil {
			util.CallUserError(c, util.APIErrorParams{Msg: err.Error(), Err: err})
			return
		}
		record.RecordDate = t
	}
	for dst, v := range map[*string]string{
		&record.Reason:    req.Reason,
		&record.Diagnosis: req.Diagnosis,
		&record.Treatment: req.Treatment,
		&record.Evolution: req.Evolution,
	} {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}

	if err := s.DB.Save(&record).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update record", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Record updated", Data: record})
}

// DeleteRecord godoc
// @Summary      Delete a clinical record
// @Tags         ClinicalRecord
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Record ID"
// @Success      200 {object} util.APIResponse "Record deleted"
// @Failure      403 {object} util.APIResponse "Not the author"
// @Failure      404 {object} util.APIResponse "Record not found"
// @Router       /record/{id} [delete]
func DeleteRecord(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	record, ok := loadEditableRecord(c, s)
	if !ok {
		return
	}
	if err := s.DB.Delete(&record).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to delete record", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Record deleted"})
}

// GetPatientHistory godoc
// @Summary      Clinical history grouped by specialty and month
// @Tags         ClinicalRecord
// @Produce      json
// @Security     SessionToken
// @Param        id path int true "Patient ID"
// @Success      200 {object} util.APIResponse{data=report.History} "History retrieved"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /patient/{id}/history [get]
func GetPatientHistory(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	patient, ok := loadPatientOrRespond(c, s)
	if !ok {
		return
	}
	records, err := loadPatientRecords(s, patient.ID)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve records", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg: "History retrieved",
		Data: map[string]interface{}{
			"patient": newPatientDetail(patient, time.Now().In(s.location())),
			"history": report.GroupHistory(records, s.location()),
		},
	})
}

// GetPatientHistoryPDF godoc
// @Summary      Printable clinical history
// @Tags         ClinicalRecord
// @Produce      application/pdf
// @Security     SessionToken
// @Param        id path int true "Patient ID"
// @Success      200 {file} file "PDF document"
// @Failure      404 {object} util.APIResponse "Patient not found"
// @Router       /patient/{id}/history.pdf [get]
func GetPatientHistoryPDF(c *gin.Context) {
	s, ok := tenantOrRespond(c)
	if !ok {
		return
	}
	patient, ok := loadPatientOrRespond(c, s)
	if !ok {
		return
	}
	var org model.Organization
	if err := s.DB.First(&org, s.OrgID).Error; err != nil {
		respondFetchError(c, err, "Organization")
		return
	}
	records, err := loadPatientRecords(s, patient.ID)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to retrieve records", Err: err})
		return
	}

	loc := s.location()
	var buf bytes.Buffer
	if err := report.WriteClinicalHistoryPDF(&buf, org, patient, report.GroupHistory(records, loc), time.Now().In(loc)); err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to render history", Err: err})
		return
	}

	filename := fmt.Sprintf("historia-%s.pdf", strings.ToLower(strings.ReplaceAll(patientFileKey(patient), " ", "-")))
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

func patientFileKey(p model.Patient) string {
	if p.HistoryNumber != "" {
		return p.HistoryNumber
	}
	return fmt.Sprintf("%d", p.ID)
}
