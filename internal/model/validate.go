package model

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"drinkwise/api/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Validate checks struct tags and reports the first failure as an
// InvalidArgument error naming the field.
func Validate(value any) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required", "notblank", "required_if":
			return apperr.WithDetails(apperr.InvalidArgument, fe.Field()+" is required", map[string]any{"field": fe.Field()})
		case "oneof":
			return apperr.WithDetails(apperr.InvalidArgument, fe.Field()+" must be one of: "+fe.Param(), map[string]any{"field": fe.Field()})
		case "nefield":
			return apperr.WithDetails(apperr.InvalidArgument, fe.Field()+" must differ from "+fe.Param(), map[string]any{"field": fe.Field()})
		default:
			return apperr.WithDetails(apperr.InvalidArgument, fe.Field()+" is invalid", map[string]any{"field": fe.Field(), "rule": fe.Tag()})
		}
	}
	return apperr.Wrap(apperr.InvalidArgument, "invalid input", err)
}
