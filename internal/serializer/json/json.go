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

// Package json is the default bus.Serializer, round-tripping through
// encoding/json.
package json

import (
	"encoding/json"

	"github.com/riverrun/msgbus/pkg/bus"
	"github.com/riverrun/msgbus/pkg/buserrors"
)

// Serializer implements bus.Serializer over encoding/json.
type Serializer struct{}

// New returns the default JSON serializer.
func New() *Serializer {
	return &Serializer{}
}

func (s *Serializer) Serialize(obj any) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", &buserrors.SerializationError{Cause: err}
	}
	return string(data), nil
}

func (s *Serializer) Deserialize(data string, ctor bus.Constructor) (any, error) {
	target := ctor()
	if err := json.Unmarshal([]byte(data), target); err != nil {
		return nil, &buserrors.SerializationError{Cause: err}
	}
	return target, nil
}

// ToPlain round-trips obj through JSON into a plain string-keyed map, so
// that callers (the saga engine's delta merge) can inspect and mutate
// fields without reflection over the concrete type.
func (s *Serializer) ToPlain(obj any) (map[string]any, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, &buserrors.SerializationError{Cause: err}
	}

	var plain map[string]any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, &buserrors.SerializationError{Cause: err}
	}
	return plain, nil
}

// ToClass converts plain back into an instance produced by ctor.
func (s *Serializer) ToClass(plain map[string]any, ctor bus.Constructor) (any, error) {
	data, err := json.Marshal(plain)
	if err != nil {
		return nil, &buserrors.SerializationError{Cause: err}
	}

	target := ctor()
	if err := json.Unmarshal(data, target); err != nil {
		return nil, &buserrors.SerializationError{Cause: err}
	}
	return target, nil
}
