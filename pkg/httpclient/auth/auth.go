// Package auth signs upload requests for the http saver: static bearer
// tokens, OAuth2 client credentials, and AWS Signature Version 4 for object
// stores that take signed PUTs instead of presigned URLs.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	pferrors "github.com/tombee/pixelflow/pkg/errors"
)

// Auth types accepted in Config.Type.
const (
	TypeNone     = "none"
	TypeBearer   = "bearer"
	TypeOAuth2   = "oauth2"
	TypeAWSSigV4 = "aws_sigv4"
)

// Signer adds credentials to an outgoing request. body is the full request
// payload; signers that hash the payload need it.
type Signer interface {
	Sign(ctx context.Context, req *http.Request, body []byte) error
}

// Config selects and configures a signer.
type Config struct {
	Type string `yaml:"type,omitempty"`

	// Token is the bearer token.
	Token string `yaml:"token,omitempty"`

	// OAuth2 client credentials flow.
	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	TokenURL     string   `yaml:"token_url,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`

	// AWS SigV4. Credentials come from the default AWS chain.
	Region  string `yaml:"region,omitempty"`
	Service string `yaml:"service,omitempty"`
}

// Validate checks that the fields the selected type needs are set. Secrets
// (Token, ClientSecret) are not checked here because they are usually
// resolved from the secret store after validation.
func (c Config) Validate() error {
	var missing []string
	switch c.Type {
	case "", TypeNone, TypeBearer:
	case TypeOAuth2:
		if c.ClientID == "" {
			missing = append(missing, "client_id")
		}
		if c.TokenURL == "" {
			missing = append(missing, "token_url")
		} else if !strings.HasPrefix(c.TokenURL, "https://") && !strings.HasPrefix(c.TokenURL, "http://") {
			return fmt.Errorf("token_url must start with http:// or https://")
		}
	case TypeAWSSigV4:
		if c.Region == "" {
			missing = append(missing, "region")
		}
	default:
		return fmt.Errorf("type must be one of [none, bearer, oauth2, aws_sigv4], got %q", c.Type)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s auth requires %s", c.Type, strings.Join(missing, ", "))
	}
	return nil
}

// New builds the signer for cfg, or nil for no authentication. client is
// used to fetch OAuth2 tokens; nil means http.DefaultClient.
func New(ctx context.Context, cfg Config, client *http.Client) (Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &pferrors.ConfigError{Key: "auth", Reason: err.Error()}
	}
	switch cfg.Type {
	case TypeBearer:
		if cfg.Token == "" {
			return nil, &pferrors.ConfigError{Key: "auth.token", Reason: "bearer auth requires a token"}
		}
		return Bearer{Token: cfg.Token}, nil
	case TypeOAuth2:
		if cfg.ClientSecret == "" {
			return nil, &pferrors.ConfigError{Key: "auth.client_secret", Reason: "oauth2 auth requires a client secret"}
		}
		return NewOAuth2(cfg, client), nil
	case TypeAWSSigV4:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, &pferrors.ConfigError{Key: "auth", Reason: "failed to load AWS configuration", Cause: err}
		}
		return NewSigV4(cfg.Region, cfg.Service, awsCfg.Credentials), nil
	default:
		return nil, nil
	}
}

// Bearer sets a static Authorization header.
type Bearer struct {
	Token string
}

// Sign implements Signer.
func (b Bearer) Sign(_ context.Context, req *http.Request, _ []byte) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// OAuth2 fetches and caches client credentials tokens.
type OAuth2 struct {
	source oauth2.TokenSource
}

// NewOAuth2 creates a client credentials signer. Tokens are fetched lazily
// and reused until shortly before they expire.
func NewOAuth2(cfg Config, client *http.Client) *OAuth2 {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	ctx := context.Background()
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}
	return &OAuth2{source: cc.TokenSource(ctx)}
}

// Sign implements Signer.
func (o *OAuth2) Sign(_ context.Context, req *http.Request, _ []byte) error {
	token, err := o.source.Token()
	if err != nil {
		return &pferrors.ProviderError{Provider: "oauth2", Message: "failed to acquire token", Cause: err}
	}
	token.SetAuthHeader(req)
	return nil
}

// SigV4 signs requests with AWS Signature Version 4.
type SigV4 struct {
	region  string
	service string
	creds   aws.CredentialsProvider
	signer  *v4.Signer

	mu     sync.Mutex
	cached aws.Credentials
}

// NewSigV4 creates a SigV4 signer. service defaults to "s3".
func NewSigV4(region, service string, creds aws.CredentialsProvider) *SigV4 {
	if service == "" {
		service = "s3"
	}
	return &SigV4{region: region, service: service, creds: creds, signer: v4.NewSigner()}
}

// credentials returns cached credentials until they are about to expire.
func (s *SigV4) credentials(ctx context.Context) (aws.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached.HasKeys() && !(s.cached.CanExpire && time.Until(s.cached.Expires) < time.Minute) {
		return s.cached, nil
	}
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, err
	}
	s.cached = creds
	return creds, nil
}

// Sign implements Signer.
func (s *SigV4) Sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := s.credentials(ctx)
	if err != nil {
		return &pferrors.ProviderError{Provider: "aws", Message: "unable to resolve AWS credentials", Cause: err}
	}

	hash := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(hash[:])
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)

	if err := s.signer.SignHTTP(ctx, creds, req, payloadHash, s.service, s.region, time.Now()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}
