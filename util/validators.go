package util

import (
	"github.com/ariebrainware/kinesio-turnos/notifier"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidClock reports whether s is a 24h clock time "HH:MM".
func ValidClock(s string) bool {
	_, err := ParseClock(s)
	return err == nil
}

func validateARPhone(fl validator.FieldLevel) bool {
	return notifier.ValidPhone(fl.Field().String())
}

func validateClock(fl validator.FieldLevel) bool {
	return ValidClock(fl.Field().String())
}

// RegisterValidators installs the custom binding tags used by request structs:
// ar_phone (normalizable Argentine phone) and hhmm (clock time).
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("ar_phone", validateARPhone); err != nil {
		return err
	}
	return v.RegisterValidation("hhmm", validateClock)
}
