package model

// AllModels lists every persisted type in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Organization{},
		&Role{},
		&User{},
		&Session{},
		&Specialty{},
		&Specialist{},
		&Schedule{},
		&Box{},
		&HistoryCounter{},
		&Patient{},
		&Appointment{},
		&ClinicalRecord{},
		&Notification{},
		&SecurityLog{},
	}
}
