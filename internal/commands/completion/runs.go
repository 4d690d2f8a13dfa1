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
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/pixelflow/internal/commands/shared"
	"github.com/tombee/pixelflow/internal/history"
)

const (
	runCacheTTL  = 2 * time.Second
	queryTimeout = 500 * time.Millisecond
	maxRuns      = 50
)

// ttlCache remembers the last fetch for a short time so repeated TAB
// presses do not reopen the history database.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	values  []string
	fetched time.Time
}

func (c *ttlCache) get(fetch func() ([]string, error)) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetched.IsZero() && time.Since(c.fetched) < c.ttl {
		return c.values, nil
	}
	values, err := fetch()
	if err != nil {
		return nil, err
	}
	c.values, c.fetched = values, time.Now()
	return values, nil
}

func (c *ttlCache) reset() {
	c.mu.Lock()
	c.values, c.fetched = nil, time.Time{}
	c.mu.Unlock()
}

var (
	runCache = &ttlCache{ttl: runCacheTTL}

	// loadEnv is swapped in tests.
	loadEnv = shared.LoadEnv
)

// CompleteRunIDs completes recorded run IDs, newest first, described as
// "pipeline (status)". Only IDs starting with toComplete are offered.
func CompleteRunIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		runs, err := runCache.get(fetchRuns)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return matchPrefix(runs, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
}

// matchPrefix keeps the "id\tdescription" entries whose id starts with
// prefix.
func matchPrefix(entries []string, prefix string) []string {
	if prefix == "" {
		return entries
	}
	var out []string
	for _, e := range entries {
		id, _, _ := strings.Cut(e, "\t")
		if strings.HasPrefix(id, prefix) {
			out = append(out, e)
		}
	}
	return out
}

func fetchRuns() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	env, err := loadEnv()
	if err != nil {
		return nil, err
	}
	store, err := env.OpenHistory()
	if err != nil || store == nil {
		return nil, err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, history.Filter{Limit: maxRuns})
	if err != nil {
		return nil, err
	}

	completions := make([]string, 0, len(runs))
	for _, r := range runs {
		completions = append(completions, r.ID+"\t"+r.Pipeline+" ("+string(r.Status)+")")
	}
	return completions, nil
}
