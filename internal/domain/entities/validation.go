package entities

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the board rules registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterValidation("reaction_emoji", func(fl validator.FieldLevel) bool {
			return IsReactionEmoji(fl.Field().String())
		})
		v.RegisterValidation("post_label", func(fl validator.FieldLevel) bool {
			_, ok := FindLabelOption(fl.Field().String())
			return ok
		})
		v.RegisterValidation("view_mode", func(fl validator.FieldLevel) bool {
			switch ViewMode(fl.Field().String()) {
			case ViewModeCanvas, ViewModeKanban, ViewModeGrid:
				return true
			}
			return false
		})
		validate = v
	})
	return validate
}

// Validate checks a record against its struct tags
func Validate(v interface{}) error {
	return Validator().Struct(v)
}
