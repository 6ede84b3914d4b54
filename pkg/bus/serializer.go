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

package bus

// Constructor creates a zero-value instance for deserialization. The bus
// core uses MessageConstructor (a Constructor specialized to Message); the
// saga engine reuses this same Serializer for workflow state, whose
// constructors return a pointer to a concrete struct embedding saga.Meta.
type Constructor func() any

// Serializer converts between wire form, a plain map representation, and a
// concrete Go value. The default implementation is internal/serializer/json;
// any replacement must satisfy ToClass(ToPlain(x)) == x modulo
// constructor-only transient fields.
type Serializer interface {
	// Serialize renders obj to its wire string form.
	Serialize(obj any) (string, error)

	// Deserialize parses data into a fresh instance produced by ctor.
	Deserialize(data string, ctor Constructor) (any, error)

	// ToPlain converts obj to a plain string-keyed map.
	ToPlain(obj any) (map[string]any, error)

	// ToClass converts a plain map back into an instance produced by ctor.
	ToClass(plain map[string]any, ctor Constructor) (any, error)
}
