package project

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/probestem/probe/core"
)

// InitValidators registers the project validators.
func InitValidators(validate *validator.Validate, _ ut.Translator) {
	validate.RegisterStructValidation(projectStructValidation, NewProject{}, UpdateProject{})
}

func projectStructValidation(sl validator.StructLevel) {
	switch p := sl.Current().Interface().(type) {
	case NewProject:
		validateDeadline(p.Deadline, sl)
	case UpdateProject:
		if !p.ClearDeadline {
			validateDeadline(p.Deadline, sl)
		}
	}
}

func validateDeadline(deadline null.Time, sl validator.StructLevel) {
	if deadline.Valid && !deadline.Time.After(time.Now()) {
		sl.ReportError(deadline, "deadline", "Deadline", core.FutureTag, "")
	}
}
