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

package artifact

import (
	"fmt"
	"math"
	"reflect"
)

// Describe returns a short human-readable summary of a value for logs and
// status output.
func Describe(v Value) string {
	switch a := v.(type) {
	case *Image:
		if a.Width > 0 && a.Height > 0 {
			return fmt.Sprintf("image/%s %dx%d (%d bytes)", a.Format, a.Width, a.Height, len(a.Bytes))
		}
		return fmt.Sprintf("image/%s (%d bytes)", a.Format, len(a.Bytes))
	case *Data:
		return fmt.Sprintf("%s (%d chars)", a.Type, len(a.Raw))
	case *Collection:
		return fmt.Sprintf("collection of %d", a.Len())
	case *SaveResult:
		return fmt.Sprintf("saved %s via %s (%d bytes)", a.Location, a.Provider, a.Size)
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Property reads a named property from a value: a key of a Data artifact's
// parsed JSON object, a key of an Image's metadata, or a Save result field.
func Property(v any, name string) (any, bool) {
	switch a := v.(type) {
	case *Data:
		obj := a.Object()
		if obj == nil {
			return nil, false
		}
		val, ok := obj[name]
		return val, ok
	case *Image:
		switch name {
		case "format":
			return a.Format, true
		case "width":
			return a.Width, true
		case "height":
			return a.Height, true
		case "provenance":
			return a.Provenance, true
		}
		val, ok := a.Metadata[name]
		return val, ok
	case *SaveResult:
		switch name {
		case "provider":
			return a.Provider, true
		case "location":
			return a.Location, true
		case "format":
			return a.Format, true
		case "size":
			return a.Size, true
		}
		val, ok := a.Metadata[name]
		return val, ok
	case map[string]any:
		val, ok := a[name]
		return val, ok
	}
	return nil, false
}

// Equal compares two loosely-typed values. Numbers compare by value
// regardless of their Go type, so 2, int64(2) and 2.0 are equal.
func Equal(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// ToInt converts a JSON-decoded number to an int. Non-integral values fail.
func ToInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
