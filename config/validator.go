package config

import (
	stderrors "errors"

	"github.com/grovetools/wastenet/errors"
	"github.com/grovetools/wastenet/schema"
)

// validateSchema checks cfg against the embedded JSON Schema. Each
// violation is reported in the "violations" detail.
func validateSchema(cfg *Config) error {
	validator, err := schema.NewValidator()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create validator")
	}
	err = validator.Validate(cfg)
	if err == nil {
		return nil
	}
	coded := errors.Wrap(err, errors.ErrCodeConfigValidation, "schema validation failed")
	var verr *schema.ValidationError
	if stderrors.As(err, &verr) {
		coded = coded.WithDetail("violations", verr.Violations)
	}
	return coded
}
