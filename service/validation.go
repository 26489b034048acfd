package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/coinledger"
	"github.com/xraph/coinledger/coin"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

func initValidator() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their json names.
	vld.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	if err := vld.RegisterValidation("coin_uid", func(fl validator.FieldLevel) bool {
		return coin.IsUID(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("service: register 'coin_uid': %w", err)
	}

	return vld, nil
}

func getValidator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, errValidate = initValidator()
	})
	return validate, errValidate
}

var validationMessages = map[string]func(param string) string{
	"required": func(string) string { return "is required" },
	"max":      func(p string) string { return "must be at most " + p + " characters" },
	"gte":      func(p string) string { return "must be at least " + p },
	"lte":      func(p string) string { return "must be at most " + p },
	"excludes": func(p string) string { return fmt.Sprintf("must not contain %q", p) },
	"coin_uid": func(string) string { return "must be a coin uid (coin/<owner>/<id>)" },
}

// validateRequest checks req against its validate tags and returns the first
// failure as a coinledger.ValidationError.
func validateRequest(req any) error {
	vld, err := getValidator()
	if err != nil {
		return err
	}

	if err := vld.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			msg := "failed " + fe.Tag()
			if format, ok := validationMessages[fe.Tag()]; ok {
				msg = format(fe.Param())
			}
			return coinledger.ValidationError{Field: fe.Field(), Message: msg}
		}
		return fmt.Errorf("%w: %w", coinledger.ErrInvalidInput, err)
	}
	return nil
}
