package utils

import "github.com/go-playground/validator/v10"

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct checks `validate` tags on a request struct and returns
// the first violation, if any.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
