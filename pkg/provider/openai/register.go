package openai

import (
	"github.com/tombee/pixelflow/pkg/provider"
)

// Register adds the "openai" generator, vision and text providers to reg.
// A positive limit.RPS rate-limits each category independently.
func Register(reg *provider.Registry, c *Client, limit provider.Limit) {
	reg.RegisterGenerator(providerName, provider.RateLimitGenerator(&Generator{Client: c}, limit))
	reg.RegisterVision(providerName, provider.RateLimitVision(&Vision{Client: c}, limit))
	reg.RegisterText(providerName, provider.RateLimitText(&Text{Client: c}, limit))
}
