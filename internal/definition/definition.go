// Package definition loads activity definition files and assembles them
// into a runnable LiveActivity.
//
// A definition names the activity, lists its components with their
// dependencies, and carries each component's settings as a nested table.
// TOML and YAML are both accepted:
//
//	name = "encoder"
//	forced_shutdown = "abort"
//
//	[[components]]
//	name = "router"
//
//	[components.config]
//	executablePath = "/usr/bin/router"
//	restart = { policy = "limited", retries = 5 }
//
//	[[components]]
//	name = "encoder"
//	dependencies = ["router"]
package definition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/smazurov/liveactivity/internal/activity"
	"github.com/smazurov/liveactivity/internal/process"
)

// Component types.
const (
	TypeNative = "native"
)

// Forced shutdown policy names.
const (
	ForcedShutdownIgnore = "ignore"
	ForcedShutdownAbort  = "abort"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither TOML nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported definition format")
	// ErrInvalid is matched by every *ValidationError.
	ErrInvalid = errors.New("invalid activity definition")
)

// Definition describes one activity.
type Definition struct {
	Name string `toml:"name" yaml:"name" validate:"required"`
	// UUID is generated when empty.
	UUID           string `toml:"uuid" yaml:"uuid" validate:"omitempty,uuid"`
	ForcedShutdown string `toml:"forced_shutdown" yaml:"forced_shutdown" validate:"omitempty,oneof=ignore abort"`
	// HealthSchedule is a cron spec or descriptor, "@every 5s" by default.
	HealthSchedule string `toml:"health_schedule" yaml:"health_schedule" validate:"omitempty,schedule"`
	// Config holds activity wide keys. Components inherit any of them they do
	// not set under their own prefix.
	Config     map[string]any  `toml:"config" yaml:"config"`
	Components []ComponentSpec `toml:"components" yaml:"components" validate:"required,min=1,unique=Name,dive"`
}

// ComponentSpec describes one component of an activity.
type ComponentSpec struct {
	Name         string   `toml:"name" yaml:"name" validate:"required"`
	Type         string   `toml:"type" yaml:"type" validate:"omitempty,oneof=native"`
	Prefix       string   `toml:"prefix" yaml:"prefix"`
	Dependencies []string `toml:"dependencies" yaml:"dependencies" validate:"dive,required"`
	// Config is flattened to dotted keys under Prefix.
	Config map[string]any `toml:"config" yaml:"config"`
}

// KeyPrefix returns the prefix the component's settings live under.
func (c ComponentSpec) KeyPrefix() string {
	if c.Prefix != "" {
		return c.Prefix
	}
	return c.Name
}

// Schedule returns the watchdog schedule.
func (d *Definition) Schedule() string {
	if d.HealthSchedule != "" {
		return d.HealthSchedule
	}
	return activity.EverySpec(activity.DefaultHealthInterval)
}

// ForcedShutdownPolicy maps the forced_shutdown setting.
func (d *Definition) ForcedShutdownPolicy() activity.ForcedShutdownPolicy {
	if strings.EqualFold(d.ForcedShutdown, ForcedShutdownAbort) {
		return activity.ForcedShutdownAbort
	}
	return activity.ForcedShutdownIgnore
}

// ValidationError lists every problem found in a definition.
type ValidationError struct {
	Path     string
	Problems []string
}

func (e *ValidationError) Error() string {
	where := e.Path
	if where == "" {
		where = "definition"
	}
	return fmt.Sprintf("%s: %s", where, strings.Join(e.Problems, "; "))
}

// Is reports whether target is ErrInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Load reads and validates the definition at path. The format follows the
// extension: .toml, .yaml or .yml.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read activity definition: %w", err)
	}

	def, err := Parse(data, filepath.Ext(path))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Path = path
		}
		return nil, err
	}
	return def, nil
}

// Parse decodes and validates a definition. ext selects the format and
// includes the leading dot.
func Parse(data []byte, ext string) (*Definition, error) {
	var def Definition

	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse TOML definition: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse YAML definition: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition. Problems are reported together in a
// *ValidationError.
func (d *Definition) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}
	return &ValidationError{Problems: problems}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("schedule", func(fl validator.FieldLevel) bool {
		_, err := activity.ParseSchedule(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(validateComponent, ComponentSpec{})
	return v
}

// validateComponent checks settings the struct tags cannot reach.
func validateComponent(sl validator.StructLevel) {
	spec, ok := sl.Current().Interface().(ComponentSpec)
	if !ok {
		return
	}

	if slices.Contains(spec.Dependencies, spec.Name) {
		sl.ReportError(spec.Dependencies, "dependencies", "Dependencies", "not_self", spec.Name)
	}

	restart, ok := spec.Config["restart"].(map[string]any)
	if !ok {
		return
	}
	raw, ok := restart["policy"]
	if !ok {
		return
	}
	policy, _ := raw.(string)
	if !slices.Contains(process.PolicyNames(), strings.ToLower(strings.TrimSpace(policy))) {
		sl.ReportError(raw, "config.restart.policy", "Config", "restart_policy", fmt.Sprint(raw))
	}
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Definition.")

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must have unique %s values", field, strings.ToLower(fe.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "uuid":
		return fmt.Sprintf("%s is not a valid UUID", field)
	case "schedule":
		return fmt.Sprintf("%s is not a valid schedule: %q", field, fmt.Sprint(fe.Value()))
	case "not_self":
		return fmt.Sprintf("%s: component %s depends on itself", field, fe.Param())
	case "restart_policy":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, strings.Join(process.PolicyNames(), " "), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
