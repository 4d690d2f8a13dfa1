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

package run

import (
	"fmt"

	"github.com/tombee/pixelflow/internal/commands/shared"
	pferrors "github.com/tombee/pixelflow/pkg/errors"
	"github.com/tombee/pixelflow/pkg/gate"
	"github.com/tombee/pixelflow/pkg/provider/openai"
)

// buildGate combines the --moderate expressions and the openai moderation
// gate. It returns nil when no gate is requested.
func buildGate(exprs []string, moderation bool, client *openai.Client) (gate.Gate, error) {
	var gates []gate.Gate

	for i, src := range exprs {
		g := gate.NewExpression(fmt.Sprintf("moderate-%d", i+1), src)
		if err := g.Validate(); err != nil {
			return nil, shared.NewInvalidPipelineError("invalid --moderate expression", err)
		}
		gates = append(gates, g)
	}

	if moderation {
		if client == nil {
			return nil, shared.NewProviderError("--moderation needs the openai provider", &pferrors.ConfigError{
				Key:    "providers.openai.api_key",
				Reason: "no API key configured; set OPENAI_API_KEY or run 'pixelflow secrets set openai'",
			})
		}
		gates = append(gates, gate.NewModeration("openai", &openai.Moderator{Client: client}))
	}

	switch len(gates) {
	case 0:
		return nil, nil
	case 1:
		return gates[0], nil
	default:
		return gate.All(gates...), nil
	}
}
