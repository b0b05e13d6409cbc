package config

import (
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"ip-setkeeper/errs"
	"ip-setkeeper/registry"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("ipset_name", validateIPSetName); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("duration", validateDuration); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("listen_addr", validateListenAddr); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateIPSetName(fl validator.FieldLevel) bool {
	return registry.ValidateSetName(fl.Field().String()) == nil
}

// empty means disabled.
func validateDuration(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	d, err := time.ParseDuration(value)
	return err == nil && d >= 0
}

func validateListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	p, err := strconv.ParseUint(port, 10, 16)
	return err == nil && p > 0
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "ipset_name":
		return fmt.Sprintf("invalid set name %q", e.Value())
	case "duration":
		return fmt.Sprintf("invalid duration %q", e.Value())
	case "listen_addr":
		return fmt.Sprintf("invalid listen address %q", e.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	}
	return fmt.Sprintf("failed on %s", e.Tag())
}

// Validate checks c and reports every invalid field in one CodeConfig error.
func Validate(c *Config) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.Wrap(errs.CodeConfig, "validate config failed", err)
	}
	items := make([]string, 0, len(verrs))
	for _, e := range verrs {
		path := e.Namespace()
		if idx := strings.Index(path, "."); idx >= 0 {
			path = path[idx+1:]
		}
		items = append(items, path+": "+fieldMessage(e))
	}
	return errs.New(errs.CodeConfig, "invalid config, "+strings.Join(items, "; "))
}
