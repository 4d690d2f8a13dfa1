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

package tracing

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tombee/pixelflow/pkg/pipeline"
)

// CorrelationID identifies one pixelflow invocation across logs, spans,
// history and provider requests. A watch session gets a new one per re-run.
type CorrelationID string

type correlationKey struct{}

// Headers set on outgoing provider and upload requests.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRunID         = "X-Pixelflow-Run-ID"
	HeaderStepID        = "X-Pixelflow-Step"

	// HeaderRequestID is the header providers echo back for their own request IDs.
	HeaderRequestID = "X-Request-ID"
)

// NewCorrelationID generates a new random correlation ID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

func (c CorrelationID) String() string {
	return string(c)
}

// IsValid reports whether c is a canonical UUID.
func (c CorrelationID) IsValid() bool {
	if len(c) != 36 {
		return false
	}
	_, err := uuid.Parse(string(c))
	return err == nil
}

// ToContext returns ctx carrying id.
func ToContext(ctx context.Context, id CorrelationID) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// FromContext returns the correlation ID in ctx, or a fresh one.
func FromContext(ctx context.Context) CorrelationID {
	if id := FromContextOrEmpty(ctx); id != "" {
		return id
	}
	return NewCorrelationID()
}

// FromContextOrEmpty returns the correlation ID in ctx, or "".
func FromContextOrEmpty(ctx context.Context) CorrelationID {
	id, _ := ctx.Value(correlationKey{}).(CorrelationID)
	return id
}

// InjectIntoRequest tags req with the correlation ID and, for requests made
// by a provider during a run, the run and step IDs. Invalid correlation IDs
// are not forwarded.
func InjectIntoRequest(ctx context.Context, req *http.Request) {
	if id := FromContextOrEmpty(ctx); id.IsValid() {
		req.Header.Set(HeaderCorrelationID, id.String())
	}
	if runID := pipeline.RunIDFromContext(ctx); runID != "" {
		req.Header.Set(HeaderRunID, runID)
	}
	if stepID := pipeline.StepIDFromContext(ctx); stepID != "" {
		req.Header.Set(HeaderStepID, stepID)
	}
}
