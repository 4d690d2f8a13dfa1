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

// Package artifact defines the values that flow between pipeline steps:
// images, text/JSON data, collections gathered by collect steps, and the
// results of save operations.
//
// Artifacts are immutable once produced. Steps that copy an artifact into
// several variables (fan-out) share the same value by reference.
package artifact

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type discriminates the concrete artifact held in a Value.
type Type string

const (
	// TypeImage marks an *Image.
	TypeImage Type = "image"
	// TypeData marks a *Data.
	TypeData Type = "data"
	// TypeCollection marks a *Collection.
	TypeCollection Type = "collection"
	// TypeSaveResult marks a *SaveResult.
	TypeSaveResult Type = "save_result"
)

// DataType is the discriminator of a Data artifact.
type DataType string

const (
	// DataText is a free-form text payload.
	DataText DataType = "text"
	// DataJSON is a JSON payload; Parsed holds the decoded value.
	DataJSON DataType = "json"
)

// Value is anything that can be stored in a pipeline variable.
// The set of implementations is closed: *Image, *Data, *Collection and *SaveResult.
type Value interface {
	// ArtifactType returns the discriminator for the concrete value.
	ArtifactType() Type

	value()
}

// Image is an encoded image with its format and optional dimensions.
type Image struct {
	// Bytes is the encoded image payload
	Bytes []byte `json:"-"`

	// Format is the encoding, e.g. "png", "jpeg", "webp"
	Format string `json:"format"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Metadata is free-form provider metadata (seed, model, revised prompt...)
	Metadata map[string]any `json:"metadata,omitempty"`

	// Provenance names the provider or step that produced the image
	Provenance string `json:"provenance,omitempty"`
}

// ArtifactType implements Value.
func (i *Image) ArtifactType() Type { return TypeImage }

func (i *Image) value() {}

// MediaType returns the MIME type for the image format.
func (i *Image) MediaType() string {
	switch strings.ToLower(i.Format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "":
		return "application/octet-stream"
	default:
		return "image/" + strings.ToLower(i.Format)
	}
}

// Data is a text or JSON payload.
type Data struct {
	// Type is "text" or "json"
	Type DataType `json:"type"`

	// Raw is the payload exactly as produced
	Raw string `json:"raw"`

	// Parsed holds the decoded JSON value when Type is "json"
	Parsed any `json:"parsed,omitempty"`

	Provenance string         `json:"provenance,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ArtifactType implements Value.
func (d *Data) ArtifactType() Type { return TypeData }

func (d *Data) value() {}

// NewText returns a text Data artifact.
func NewText(raw string) *Data {
	return &Data{Type: DataText, Raw: raw}
}

// NewJSON returns a JSON Data artifact for an already-decoded value.
// The raw form is the compact JSON encoding of v.
func NewJSON(v any) (*Data, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json artifact: %w", err)
	}
	return &Data{Type: DataJSON, Raw: string(raw), Parsed: normalize(v, raw)}, nil
}

// ParseJSON returns a JSON Data artifact from its raw encoding.
func ParseJSON(raw string) (*Data, error) {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse json artifact: %w", err)
	}
	return &Data{Type: DataJSON, Raw: raw, Parsed: parsed}, nil
}

// normalize re-decodes composite and typed Go values so Parsed always holds
// the generic map[string]any / []any / float64 shapes produced by
// encoding/json, including values nested inside maps and slices.
func normalize(v any, raw []byte) any {
	switch v.(type) {
	case string, float64, bool, nil:
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// Object returns the parsed JSON as an object, or nil if it is not one.
func (d *Data) Object() map[string]any {
	if d == nil {
		return nil
	}
	obj, _ := d.Parsed.(map[string]any)
	return obj
}

// Collection is the ordered output of a collect step.
type Collection struct {
	Items []Value `json:"items"`
}

// ArtifactType implements Value.
func (c *Collection) ArtifactType() Type { return TypeCollection }

func (c *Collection) value() {}

// Len returns the number of items.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// SaveResult describes a completed save operation.
type SaveResult struct {
	// Provider is the saver that wrote the artifact
	Provider string `json:"provider"`

	// Location is the final path or URL
	Location string `json:"location"`

	// Size is the number of bytes written
	Size int64 `json:"size"`

	Format   string         `json:"format"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ArtifactType implements Value.
func (s *SaveResult) ArtifactType() Type { return TypeSaveResult }

func (s *SaveResult) value() {}
