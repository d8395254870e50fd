package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"conductor/internal/api"
)

// serviceNamePattern keeps names usable as bus topic levels and container names.
var serviceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their YAML key so messages match what users wrote.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})

	mustRegister(v, "servicename", func(fl validator.FieldLevel) bool {
		return serviceNamePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "algorithm", func(fl validator.FieldLevel) bool {
		_, err := api.ParseAlgorithm(fl.Field().String())
		return err == nil
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %s validation: %v", tag, err))
	}
}

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// ValidateConfig checks the orchestrator settings, server and logging sections.
func ValidateConfig(cfg ConductorConfig) error {
	var errs ValidationErrors
	collectStructErrors(&errs, validate.Struct(cfg))
	if errs.HasErrors() {
		return FormatValidationError("config", "", errs)
	}
	return nil
}

// ValidateDefinition checks a single service definition. Cross-definition
// rules (duplicates, missing targets, cycles) are checked by ValidateDefinitions
// and the dependency resolver.
func ValidateDefinition(def ServiceDefinition) error {
	var errs ValidationErrors
	collectStructErrors(&errs, validate.Struct(def))

	if def.MinInstances > def.MaxInstances {
		errs.Add("minInstances", fmt.Sprintf("must not exceed maxInstances (%d)", def.MaxInstances), def.MinInstances)
	}

	seen := make(map[string]bool, len(def.DependsOn))
	for i, dep := range def.DependsOn {
		field := fmt.Sprintf("dependsOn[%d]", i)
		if dep.Service == def.Name && def.Name != "" {
			errs.Add(field, "service cannot depend on itself", dep.Service)
		}
		if seen[dep.Service] {
			errs.Add(field, "duplicate dependency", dep.Service)
		}
		seen[dep.Service] = true
	}

	if errs.HasErrors() {
		return FormatValidationError("service", def.Name, errs)
	}
	return nil
}

// ValidateDefinitions validates every definition and rejects duplicate names.
func ValidateDefinitions(defs []ServiceDefinition) error {
	var all []error
	byName := make(map[string]string, len(defs))
	for _, def := range defs {
		if err := ValidateDefinition(def); err != nil {
			all = append(all, err)
			continue
		}
		if prev, ok := byName[def.Name]; ok {
			all = append(all, fmt.Errorf("service %s defined twice (%s and %s)", def.Name, prev, def.SourceFile))
			continue
		}
		byName[def.Name] = def.SourceFile
	}
	return errors.Join(all...)
}

// FormatValidationError creates a consistent validation error message
func FormatValidationError(entityType, entityName string, err error) error {
	if err == nil {
		return nil
	}

	if entityName != "" {
		return fmt.Errorf("validation failed for %s '%s': %w", entityType, entityName, err)
	}
	return fmt.Errorf("validation failed for %s: %w", entityType, err)
}

func collectStructErrors(errs *ValidationErrors, err error) {
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs.Add("", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		errs.Add(fieldPath(fe), describeFieldError(fe), fe.Value())
	}
}

// fieldPath drops the top-level struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.Join(strings.Fields(fe.Param()), ", "))
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "servicename":
		return fmt.Sprintf("must match %s", serviceNamePattern.String())
	case "algorithm":
		names := make([]string, 0, len(api.Algorithms))
		for _, a := range api.Algorithms {
			names = append(names, string(a))
		}
		return fmt.Sprintf("must be one of: %s", strings.Join(names, ", "))
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
