// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// FieldError describes one invalid setting by its YAML path.
type FieldError struct {
	Field string
	Rule  string
	Value any
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: failed %q (value: %v)", e.Field, e.Rule, e.Value)
}

// Validate checks cfg and returns every violation joined.
func Validate(cfg Config) error {
	err := validatorInstance().Struct(cfg)
	if err == nil {
		return checkCrossField(cfg)
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs)+1)
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		value := fe.Value()
		if sensitive(field) {
			value = "***"
		}
		errs = append(errs, FieldError{Field: field, Rule: fe.Tag(), Value: value})
	}
	if ierr := checkCrossField(cfg); ierr != nil {
		errs = append(errs, ierr)
	}
	return errors.Join(errs...)
}

func checkCrossField(cfg Config) error {
	if cfg.Guide.Watch && cfg.Guide.URL == "" {
		return FieldError{Field: "guide.watch", Rule: "requires guide.url", Value: true}
	}
	return nil
}
