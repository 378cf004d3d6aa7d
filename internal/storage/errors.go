// SPDX-License-Identifier: MIT

package storage

import (
	"errors"
	"fmt"
)

// ErrObjectNotFound indicates the store has no object under the requested key.
// Handlers map it to 404; every other storage failure maps to a 5xx.
var ErrObjectNotFound = errors.New("object not found")

// NotFoundError wraps ErrObjectNotFound with the offending key.
func NotFoundError(key string) error {
	return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
}
