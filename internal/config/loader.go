package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is the shared struct validator. Field names in its errors are the
// dotted YAML paths.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s %s", fieldPath(fe), validationMessage(fe)))
		}
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	src := cfg.Source
	switch src.Name {
	case SourceFile:
		if src.Path == "" {
			errs = append(errs, errors.New("source.path is required when source.name is file"))
		}
	case SourceAuto:
		if slices.Contains(src.Fallback, SourceFile) && src.Path == "" {
			errs = append(errs, errors.New("source.path is required when source.fallback includes file"))
		}
	case SourceArecord, SourceFFmpeg, "":
	default:
		slog.Warn("unknown source name; it must be registered by the caller", "name", src.Name)
	}
	if src.Realtime && src.Name != SourceFile && !slices.Contains(src.Fallback, SourceFile) {
		slog.Warn("source.realtime only affects the file source", "name", src.Name)
	}

	if err := cfg.Analysis.ToAnalysis().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("analysis: %w", err))
	}

	return errors.Join(errs...)
}

// fieldPath turns the validator namespace "Config.source.frame_size" into
// "source.frame_size".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// validationMessage creates a human-readable message from a validator error.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "len":
		return fmt.Sprintf("must have exactly %s entries", fe.Param())
	case "oneof":
		return fmt.Sprintf("%v is invalid; valid values: %s", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "hostname_port":
		return fmt.Sprintf("%q must be host:port", fe.Value())
	default:
		return fmt.Sprintf("failed validation %q", fe.Tag())
	}
}
