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

package completion

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	maxPipelineFiles = 100
	maxSearchDepth   = 2
)

type pipelineFile struct {
	path    string
	modTime int64
}

// CompletePipelineFiles completes pipeline definition paths: .yaml and .yml
// files with a top-level steps key, and .hcl files, up to two directories
// deep. The newest files come first.
func CompletePipelineFiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		files, err := discoverPipelineFiles(".", maxSearchDepth)
		if err != nil || len(files) == 0 {
			return []string{"yaml", "yml", "hcl"}, cobra.ShellCompDirectiveFilterFileExt
		}

		sort.Slice(files, func(i, j int) bool {
			if files[i].modTime != files[j].modTime {
				return files[i].modTime > files[j].modTime
			}
			return files[i].path < files[j].path
		})
		if len(files) > maxPipelineFiles {
			files = files[:maxPipelineFiles]
		}

		paths := make([]string, 0, len(files))
		for _, f := range files {
			if strings.HasPrefix(f.path, toComplete) {
				paths = append(paths, f.path)
			}
		}
		return paths, cobra.ShellCompDirectiveDefault
	})
}

func discoverPipelineFiles(root string, maxDepth int) ([]pipelineFile, error) {
	var files []pipelineFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		if strings.Count(rel, string(filepath.Separator)) > maxDepth {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !isPipelineFile(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, pipelineFile{path: path, modTime: info.ModTime().Unix()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// isPipelineFile reports whether path looks like a pipeline definition.
func isPipelineFile(path string) bool {
	switch filepath.Ext(path) {
	case ".hcl":
		return true
	case ".yaml", ".yml":
	default:
		return false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false
	}
	_, hasSteps := doc["steps"]
	return hasSteps
}
