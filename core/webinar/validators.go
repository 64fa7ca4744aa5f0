package webinar

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/probestem/probe/core"
)

var (
	linkRequiredTag  = "link_required"
	linkRequiredText = "online webinars must provide a link"

	locationRequiredTag  = "location_required"
	locationRequiredText = "offline webinars must provide a location"

	noteRequiredTag  = "note_required"
	noteRequiredText = "a note is required when rejecting a webinar"
)

// InitValidators registers the webinar validators & their error messages.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(webinarStructValidation, NewWebinar{}, Review{})
	core.RegisterCustomTranslation(validate, translator, linkRequiredTag, linkRequiredText)
	core.RegisterCustomTranslation(validate, translator, locationRequiredTag, locationRequiredText)
	core.RegisterCustomTranslation(validate, translator, noteRequiredTag, noteRequiredText)
}

func webinarStructValidation(sl validator.StructLevel) {
	switch w := sl.Current().Interface().(type) {
	case NewWebinar:
		switch {
		case w.Mode == ModeOnline && w.Link == "":
			sl.ReportError(w.Link, "link", "Link", linkRequiredTag, "")
		case w.Mode == ModeOffline && w.Location == "":
			sl.ReportError(w.Location, "location", "Location", locationRequiredTag, "")
		}
		if !w.StartsAt.IsZero() && !w.StartsAt.After(time.Now()) {
			sl.ReportError(w.StartsAt, "starts_at", "StartsAt", core.FutureTag, "")
		}
	case Review:
		if w.Status == StatusRejected && w.Note == "" {
			sl.ReportError(w.Note, "note", "Note", noteRequiredTag, "")
		}
	}
}
