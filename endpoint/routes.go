package endpoint

import (
	"net/http"
	"time"

	"github.com/ariebrainware/kinesio-turnos/middleware"
	"github.com/ariebrainware/kinesio-turnos/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterRoutes mounts every API route on r.
func RegisterRoutes(r *gin.Engine, db *gorm.DB) {
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.DatabaseMiddleware(db))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	limited := middleware.RateLimiter(middleware.RateLimitConfig{Limit: 5, Window: 15 * time.Minute})
	r.POST("/register", limited, Register)
	r.POST("/login", limited, Login)
	r.GET("/token/validate", ValidateToken)

	auth := r.Group("/")
	auth.Use(middleware.ValidateLoginToken(), middleware.EndpointCallLogger())

	admin := middleware.RequireRole(model.RoleAdmin)
	staff := middleware.RequireRole(model.RoleAdmin, model.RoleReceptionist)
	clinical := middleware.RequireRole(model.RoleAdmin, model.RoleSpecialist)

	auth.DELETE("/logout", Logout)
	auth.POST("/verify-password", VerifyPassword)

	auth.PATCH("/user", UpdateUser)
	auth.GET("/user", admin, ListUsers)
	auth.GET("/user/:id", admin, GetUserInfo)
	auth.PATCH("/user/:id", admin, AdminUpdateUser)
	auth.DELETE("/user/:id", admin, DeleteUser)

	auth.GET("/organization", GetOrganization)
	auth.PATCH("/organization", admin, UpdateOrganization)

	auth.GET("/patient", ListPatients)
	auth.POST("/patient", CreatePatient)
	auth.GET("/patient/:id", GetPatientInfo)
	auth.PATCH("/patient/:id", UpdatePatient)
	auth.DELETE("/patient/:id", staff, DeletePatient)
	auth.GET("/patient/:id/record", ListPatientRecords)
	auth.POST("/patient/:id/record", clinical, CreatePatientRecord)
	auth.GET("/patient/:id/history", GetPatientHistory)
	auth.GET("/patient/:id/history.pdf", GetPatientHistoryPDF)
	auth.PATCH("/record/:id", clinical, UpdateRecord)
	auth.DELETE("/record/:id", clinical, DeleteRecord)

	auth.GET("/specialist", ListSpecialists)
	auth.GET("/specialist/:id", GetSpecialist)
	auth.POST("/specialist", admin, CreateSpecialist)
	auth.PATCH("/specialist/:id", admin, UpdateSpecialist)
	auth.DELETE("/specialist/:id", admin, DeleteSpecialist)
	auth.PUT("/specialist/:id/schedule", admin, ReplaceSchedule)

	auth.GET("/specialty", ListSpecialties)
	auth.GET("/specialty/:id", GetSpecialty)
	auth.POST("/specialty", admin, CreateSpecialty)
	auth.PATCH("/specialty/:id", admin, UpdateSpecialty)
	auth.DELETE("/specialty/:id", admin, DeleteSpecialty)

	auth.GET("/box", ListBoxes)
	auth.GET("/box/available", ListAvailableBoxes)
	auth.GET("/box/:id", GetBox)
	auth.POST("/box", admin, CreateBox)
	auth.PATCH("/box/:id", admin, UpdateBox)
	auth.DELETE("/box/:id", admin, DeleteBox)

	auth.GET("/appointment", ListAppointments)
	auth.GET("/appointment/slots", ListSlots)
	auth.GET("/appointment/:id", GetAppointment)
	auth.POST("/appointment", CreateAppointment)
	auth.PATCH("/appointment/:id", UpdateAppointment)
	auth.PATCH("/appointment/:id/status", UpdateAppointmentStatus)
	auth.DELETE("/appointment/:id", CancelAppointment)

	auth.GET("/analytics/summary", admin, GetAnalyticsSummary)
	auth.GET("/security-log", admin, ListSecurityLogs)

	auth.GET("/notification", staff, ListNotifications)
	auth.POST("/notification", staff, CreateNotification)
	auth.POST("/notification/:id/retry", staff, RetryNotification)
	auth.DELETE("/notification/:id", staff, CancelNotification)
}
