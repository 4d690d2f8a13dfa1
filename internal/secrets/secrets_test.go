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

package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestAPIKey(t *testing.T) {
	assert.Equal(t, "providers/openai/api_key", APIKey("openai"))
}

func TestNormalizeKey(t *testing.T) {
	key, err := NormalizeKey("OpenAI")
	require.NoError(t, err)
	assert.Equal(t, "providers/openai/api_key", key)

	key, err = NormalizeKey("webhooks/github/secret")
	require.NoError(t, err)
	assert.Equal(t, "webhooks/github/secret", key)

	for _, bad := range []string{"", "  ", "a//b", "a/../b"} {
		_, err := NormalizeKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestEnvBackend_Get(t *testing.T) {
	ctx := context.Background()
	env := NewEnvBackend()
	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := env.Get(ctx, APIKey("openai"))
	assert.ErrorIs(t, err, ErrSecretNotFound)

	t.Setenv("OPENAI_API_KEY", "alias")
	v, err := env.Get(ctx, APIKey("openai"))
	require.NoError(t, err)
	assert.Equal(t, "alias", v)

	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_OPENAI_API_KEY", "prefixed")
	v, err = env.Get(ctx, APIKey("openai"))
	require.NoError(t, err)
	assert.Equal(t, "prefixed", v, "prefixed variable wins over alias")
}

func TestEnvBackend_HyphenatedProvider(t *testing.T) {
	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_LOCAL_AI_API_KEY", "")
	t.Setenv("LOCAL_AI_API_KEY", "k")
	v, err := NewEnvBackend().Get(context.Background(), APIKey("local-ai"))
	require.NoError(t, err)
	assert.Equal(t, "k", v)
}

func TestEnvBackend_UploadAliases(t *testing.T) {
	env := NewEnvBackendFrom([]string{
		"PIXELFLOW_UPLOAD_TOKEN=tok-123456",
		"PIXELFLOW_SECRET_PROVIDERS_HTTP_CLIENT_SECRET=cs-123456",
		"PIXELFLOW_UPLOAD_CLIENT_SECRET=ignored",
		"MALFORMED",
	})
	ctx := context.Background()

	v, err := env.Get(ctx, UploadToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-123456", v)

	v, err = env.Get(ctx, UploadClientSecret)
	require.NoError(t, err)
	assert.Equal(t, "cs-123456", v)

	_, err = env.Get(ctx, APIKey("openai"))
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestEnvNames(t *testing.T) {
	assert.Equal(t, []string{"PIXELFLOW_SECRET_PROVIDERS_OPENAI_API_KEY", "OPENAI_API_KEY"}, EnvNames(APIKey("openai")))
	assert.Equal(t, []string{"PIXELFLOW_SECRET_PROVIDERS_HTTP_TOKEN", "PIXELFLOW_UPLOAD_TOKEN"}, EnvNames(UploadToken))
	assert.Equal(t, []string{"PIXELFLOW_SECRET_TEAM_WEBHOOK_URL"}, EnvNames("team/webhook.url"))
}

func TestEnvBackend_ReadOnly(t *testing.T) {
	env := NewEnvBackend()
	assert.True(t, env.ReadOnly())
	assert.ErrorIs(t, env.Set(context.Background(), "k", "v"), ErrReadOnlyBackend)
	assert.ErrorIs(t, env.Delete(context.Background(), "k"), ErrReadOnlyBackend)
}

func TestKeychainBackend_RoundTrip(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	kc := NewKeychainBackendForService("pixelflow-test")
	require.True(t, kc.Available())
	assert.Equal(t, KeychainBackendPriority, kc.Priority())

	_, err := kc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, kc.Set(ctx, APIKey("openai"), "sk-1"))
	v, err := kc.Get(ctx, APIKey("openai"))
	require.NoError(t, err)
	assert.Equal(t, "sk-1", v)

	require.NoError(t, kc.Delete(ctx, APIKey("openai")))
	assert.ErrorIs(t, kc.Delete(ctx, APIKey("openai")), ErrSecretNotFound)
}

func TestKeychainBackend_CancelledContext(t *testing.T) {
	keyring.MockInit()
	kc := NewKeychainBackendForService("pixelflow-test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := kc.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, kc.Set(ctx, "k", "v"), context.Canceled)
}

func TestKeychainBackend_Wrap(t *testing.T) {
	kc := &KeychainBackend{service: "pixelflow-test", available: true}

	assert.NoError(t, kc.wrap("k", nil))
	assert.ErrorIs(t, kc.wrap("k", keyring.ErrNotFound), ErrSecretNotFound)
	assert.ErrorIs(t, kc.wrap("k", keyring.ErrSetDataTooBig), ErrBackendUnavailable)
	assert.ErrorIs(t, kc.wrap("k", errors.New("keychain is locked")), ErrBackendUnavailable)

	err := kc.wrap("k", errors.New("odd failure"))
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "odd failure")
}

func TestKeychainBackend_Unavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus: connection refused"))
	t.Cleanup(keyring.MockInit)

	kc := NewKeychainBackend()
	assert.False(t, kc.Available())
	_, err := kc.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Empty(t, NewResolver(kc).Backends())
}

func TestIsKeychainUnavailableError(t *testing.T) {
	assert.False(t, isKeychainUnavailableError(nil))
	assert.True(t, isKeychainUnavailableError(errors.New("The keychain is LOCKED")))
	assert.False(t, isKeychainUnavailableError(errors.New("bad data")))
}

func TestResolver_PriorityAndSource(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	t.Setenv("PIXELFLOW_SECRET_PROVIDERS_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	r := NewResolver(NewKeychainBackend(), NewEnvBackend())
	require.Len(t, r.Backends(), 2)
	assert.Equal(t, "env", r.Backends()[0].Name())

	_, err := r.Get(ctx, APIKey("openai"))
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, r.Set(ctx, APIKey("openai"), "from-keychain", ""))
	v, source, err := r.Lookup(ctx, APIKey("openai"))
	require.NoError(t, err)
	assert.Equal(t, "from-keychain", v)
	assert.Equal(t, "keychain", source)

	t.Setenv("OPENAI_API_KEY", "from-env")
	v, source, err = r.Lookup(ctx, APIKey("openai"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
	assert.Equal(t, "env", source)
}

func TestResolver_Delete(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	r := NewResolver(NewEnvBackend(), NewKeychainBackend())

	assert.ErrorIs(t, r.Delete(ctx, "nope", ""), ErrSecretNotFound)

	require.NoError(t, r.Set(ctx, "k", "v", "keychain"))
	require.NoError(t, r.Delete(ctx, "k", ""))
	assert.ErrorIs(t, r.Delete(ctx, "k", "keychain"), ErrSecretNotFound)

	err := r.Set(ctx, "k", "v", "env")
	assert.ErrorIs(t, err, ErrReadOnlyBackend)

	err = r.Set(ctx, "k", "v", "vault")
	assert.ErrorContains(t, err, "not found or unavailable")
}

func TestResolver_NoBackends(t *testing.T) {
	r := NewResolver()
	_, err := r.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, r.Set(context.Background(), "k", "v", ""), ErrBackendUnavailable)
}

func TestResolver_OnlyReadOnlyBackends(t *testing.T) {
	r := NewResolver(NewEnvBackend())
	assert.EqualError(t, r.Set(context.Background(), "k", "v", ""), "no writable backend available")
}

func TestMasker_Mask(t *testing.T) {
	tests := []struct {
		name    string
		secrets []string
		input   string
		want    string
	}{
		{
			name:    "single secret",
			secrets: []string{"password123"},
			input:   "The password is password123",
			want:    "The password is ***",
		},
		{
			name:    "multiple occurrences",
			secrets: []string{"secret"},
			input:   "secret appears twice: secret",
			want:    "*** appears twice: ***",
		},
		{
			name:    "multiple secrets",
			secrets: []string{"token123", "key456"},
			input:   "token: token123, key: key456",
			want:    "token: ***, key: ***",
		},
		{
			name:    "short values ignored",
			secrets: []string{"", "1", "yes"},
			input:   "yes 1",
			want:    "yes 1",
		},
		{
			name:    "longest secret first",
			secrets: []string{"abcdef", "abcdefghij"},
			input:   "key=abcdefghij",
			want:    "key=***",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMasker()
			for _, s := range tt.secrets {
				m.AddSecret(s)
			}
			assert.Equal(t, tt.want, m.Mask(tt.input))
		})
	}
}

func TestMasker_AddSecretsFromEnv(t *testing.T) {
	m := NewMasker()
	m.AddSecretsFromEnv([]string{
		"OPENAI_API_KEY=sk-live-123456",
		"GITHUB_TOKEN=ghp_abcdef",
		"HOME=/home/someone",
		"MALFORMED",
	})

	assert.Equal(t, "auth *** and ***", m.Mask("auth sk-live-123456 and ghp_abcdef"))
	assert.Equal(t, "/home/someone", m.Mask("/home/someone"))
}

func TestMasker_Nil(t *testing.T) {
	var m *Masker
	m.AddSecret("ignored-value")
	assert.Equal(t, "plain", m.Mask("plain"))
}

func TestIsSecretName(t *testing.T) {
	for _, name := range []string{"OPENAI_API_KEY", "db_password", "X_SECRET", "NPM_TOKEN"} {
		assert.True(t, IsSecretName(name), name)
	}
	for _, name := range []string{"PATH", "KEYBOARD", "TOKENIZER"} {
		assert.False(t, IsSecretName(name), name)
	}
}
