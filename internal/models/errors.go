package models

import "errors"

// ErrValidation marks input rejected before any write. Wrap it with the detail:
// fmt.Errorf("%w: name is required", ErrValidation).
var ErrValidation = errors.New("validation failed")
