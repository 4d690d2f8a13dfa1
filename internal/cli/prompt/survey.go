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

package prompt

import (
	"context"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// SurveyPrompter implements Prompter using the survey library.
type SurveyPrompter struct {
	interactive bool
}

// NewSurveyPrompter creates a new survey-based prompter.
func NewSurveyPrompter(interactive bool) *SurveyPrompter {
	return &SurveyPrompter{
		interactive: interactive,
	}
}

// PromptSelect shows a filterable list using survey.Select.
func (sp *SurveyPrompter) PromptSelect(ctx context.Context, message string, options []string, def string) (string, error) {
	if !sp.interactive {
		return "", ErrNonInteractive
	}

	var result string
	prompt := &survey.Select{
		Message:  message,
		Options:  options,
		PageSize: 10,
	}
	if def != "" {
		prompt.Default = def
	}

	err := survey.AskOne(prompt, &result, survey.WithStdio(os.Stdin, os.Stderr, os.Stderr))
	return result, interrupted(ctx, err)
}

// PromptSecret collects a value using survey.Password.
func (sp *SurveyPrompter) PromptSecret(ctx context.Context, message string) (string, error) {
	if !sp.interactive {
		return "", ErrNonInteractive
	}

	var result string
	err := survey.AskOne(&survey.Password{Message: message}, &result,
		survey.WithValidator(func(ans interface{}) error {
			if str, ok := ans.(string); ok {
				return ValidateString(str)
			}
			return nil
		}))
	return result, interrupted(ctx, err)
}

// PromptConfirm asks a yes/no question using survey.Confirm.
func (sp *SurveyPrompter) PromptConfirm(ctx context.Context, message string, def bool) (bool, error) {
	if !sp.interactive {
		return false, ErrNonInteractive
	}

	var result bool
	err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &result)
	return result, interrupted(ctx, err)
}

// IsInteractive returns whether the prompter can display interactive prompts.
func (sp *SurveyPrompter) IsInteractive() bool {
	return sp.interactive
}

// interrupted maps Ctrl-C to context.Canceled so callers exit like any
// other cancellation.
func interrupted(ctx context.Context, err error) error {
	if err == terminal.InterruptErr {
		return context.Canceled
	}
	if err == nil {
		return ctx.Err()
	}
	return err
}
