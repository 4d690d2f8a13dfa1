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

// Package examples embeds sample pipeline definitions in the binary. Every
// example uses builtin providers only, so it runs offline without keys.
package examples

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/pipeline/definition"
)

//go:embed *.yaml *.hcl
var embeddedFS embed.FS

// Example describes one embedded pipeline definition.
type Example struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	File        string `json:"file"`
}

// List returns every embedded example sorted by name.
func List() ([]Example, error) {
	entries, err := embeddedFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded examples: %w", err)
	}

	var examples []Example
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := definition.FormatFor(entry.Name()); err != nil {
			continue
		}
		content, err := embeddedFS.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read example %s: %w", entry.Name(), err)
		}
		examples = append(examples, Example{
			Name:        strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())),
			Description: description(content),
			File:        entry.Name(),
		})
	}

	sort.Slice(examples, func(i, j int) bool { return examples[i].Name < examples[j].Name })
	return examples, nil
}

// Lookup finds an example by name.
func Lookup(name string) (Example, error) {
	examples, err := List()
	if err != nil {
		return Example{}, err
	}
	for _, ex := range examples {
		if ex.Name == name {
			return ex, nil
		}
	}
	return Example{}, &pferrors.NotFoundError{Resource: "example", ID: name}
}

// Exists reports whether an example with the given name is embedded.
func Exists(name string) bool {
	_, err := Lookup(name)
	return err == nil
}

// Get returns an example's metadata and raw content.
func Get(name string) (Example, []byte, error) {
	ex, err := Lookup(name)
	if err != nil {
		return Example{}, nil, err
	}
	content, err := embeddedFS.ReadFile(ex.File)
	if err != nil {
		return Example{}, nil, fmt.Errorf("failed to read example %s: %w", ex.File, err)
	}
	return ex, content, nil
}

// Load parses an example into a definition.
func Load(name string) (*definition.Definition, error) {
	ex, content, err := Get(name)
	if err != nil {
		return nil, err
	}
	format, err := definition.FormatFor(ex.File)
	if err != nil {
		return nil, err
	}
	return definition.Parse(content, format, ex.File)
}

// CopyTo writes an example to dest and returns the path written. When dest
// is an existing directory the example keeps its file name. Existing files
// are only replaced when overwrite is set.
func CopyTo(name, dest string, overwrite bool) (string, error) {
	ex, content, err := Get(name)
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, ex.File)
	}
	if !overwrite {
		if _, err := os.Stat(dest); err == nil {
			return "", &pferrors.ValidationError{
				Field:      "destination",
				Message:    fmt.Sprintf("%s already exists", dest),
				Suggestion: "pass --force to overwrite it",
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.WriteFile(dest, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write example file: %w", err)
	}
	return dest, nil
}

// description reads the leading comment of a definition file.
func description(content []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	if scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return "Example pipeline"
}
