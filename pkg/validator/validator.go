// Package validator wraps go-playground/validator with json field names and
// the "httpurl" rule used for image URLs.
package validator

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError is one rejected field, named by its json tag.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param"`
}

func (e ValidationError) String() string {
	if e.Param == "" {
		return fmt.Sprintf("%s failed on %s", e.Field, e.Tag)
	}
	return fmt.Sprintf("%s failed on %s=%s", e.Field, e.Tag, e.Param)
}

// ValidationErrors is returned by ValidateStruct when any rule fails.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}

	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}

var instance = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	if err := v.RegisterValidation("httpurl", isHTTPURL); err != nil {
		panic(err)
	}
	return v
})

// ValidateStruct checks s against its validate tags. Rule failures come back
// as ValidationErrors; anything else, such as a non-struct argument, is
// returned unchanged.
func ValidateStruct(s any) error {
	err := instance().Struct(s)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = ValidationError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return out
}

// jsonFieldName reports a field under its json name so messages match the
// request and response bodies.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// isHTTPURL accepts absolute http(s) URLs with a host.
func isHTTPURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
