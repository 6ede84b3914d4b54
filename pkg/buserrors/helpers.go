// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package buserrors

import (
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps err with additional context.
// If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps err with formatted context.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling Unwrap on err, if it has one.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// New creates a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// IsOptimisticConcurrency reports whether err is (or wraps) a
// WorkflowStateNotFoundError. The saga dispatcher returns such conflicts
// like any other error; the bus uses this check to return the message for
// redelivery without firing the error hook.
func IsOptimisticConcurrency(err error) bool {
	var target *WorkflowStateNotFoundError
	return errors.As(err, &target)
}

// IsPersistenceNotConfigured reports whether err is a
// PersistenceNotConfiguredError.
func IsPersistenceNotConfigured(err error) bool {
	var target *PersistenceNotConfiguredError
	return errors.As(err, &target)
}
