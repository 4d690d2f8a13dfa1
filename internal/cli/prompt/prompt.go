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

// Package prompt collects interactive input for CLI commands. It supports
// non-interactive mode for scripts and CI, where every prompt fails instead
// of blocking on stdin.
package prompt

import (
	"context"
	"errors"
	"fmt"
)

// ErrNonInteractive is returned when a prompt is needed but stdin is not a
// terminal.
var ErrNonInteractive = errors.New("cannot prompt in non-interactive mode")

// MaxRetries is the maximum number of validation retry attempts per input.
const MaxRetries = 3

// MaxInputSize is the maximum allowed input size in bytes.
const MaxInputSize = 65536

// Prompter defines the interface for interactive input collection.
// Implementations include SurveyPrompter (production) and MockPrompter (testing).
type Prompter interface {
	// PromptSelect asks the user to pick one of options
	PromptSelect(ctx context.Context, message string, options []string, def string) (string, error)

	// PromptSecret collects a value without echoing it
	PromptSecret(ctx context.Context, message string) (string, error)

	// PromptConfirm asks a yes/no question
	PromptConfirm(ctx context.Context, message string, def bool) (bool, error)

	// IsInteractive returns true if prompts can be displayed
	IsInteractive() bool
}

// Secret prompts for a secret until it validates, up to MaxRetries times.
func Secret(ctx context.Context, p Prompter, name string) (string, error) {
	if !p.IsInteractive() {
		return "", ErrNonInteractive
	}

	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		value, err := p.PromptSecret(ctx, fmt.Sprintf("Value for %s", name))
		if err == nil {
			err = ValidateSecret(value)
		}
		if err == nil {
			return value, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	return "", fmt.Errorf("failed to collect %s after %d attempts: %w", name, MaxRetries, lastErr)
}

// Choose asks the user to pick one of options. A single option is
// returned without asking. The answer must be one of options.
func Choose(ctx context.Context, p Prompter, message string, options []string) (string, error) {
	switch {
	case len(options) == 0:
		return "", errors.New("nothing to choose from")
	case len(options) == 1:
		return options[0], nil
	case !p.IsInteractive():
		return "", ErrNonInteractive
	}

	choice, err := p.PromptSelect(ctx, message, options, options[0])
	if err != nil {
		return "", err
	}
	if err := ValidateChoice(choice, options); err != nil {
		return "", err
	}
	return choice, nil
}

// Confirm asks for confirmation. When the prompter is not interactive it
// returns assumeYes without asking.
func Confirm(ctx context.Context, p Prompter, message string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !p.IsInteractive() {
		return false, ErrNonInteractive
	}
	return p.PromptConfirm(ctx, message, false)
}
