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

/*
Package secrets resolves provider credentials.

Secrets are looked up through a priority-ordered chain of backends:

	env      - PIXELFLOW_SECRET_<KEY> or the provider alias (OPENAI_API_KEY)
	keychain - the OS keychain via go-keyring, service "pixelflow"

The environment always wins so CI and one-off overrides need no keychain.
Keys are slash-separated paths; provider API keys use APIKey(name):

	resolver := secrets.NewDefaultResolver()
	key, err := resolver.Get(ctx, secrets.APIKey("openai"))

"pixelflow auth set openai" stores a key with Resolver.Set, which skips the
read-only environment backend and writes to the keychain.
*/
package secrets
