package utils

import (
	"github.com/pkg/errors"
)

// NewConfigValidationFieldRequiredError is used when a required config field is empty.
func NewConfigValidationFieldRequiredError(path, field string) error {
	return errors.Errorf("%s: %q is required", path, field)
}

// NewConfigValidationError wraps a config error with the path of the offending section.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}
