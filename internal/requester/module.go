package requester

import (
	"net/http"

	"github.com/brizzai/authlab/internal/config"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/fx"
)

// Module provides the shared outbound HTTP client
var Module = fx.Module("requester",
	fx.Provide(NewHTTPClient),
)

// NewHTTPClient returns a pooled client honouring http.timeout
func NewHTTPClient(cfg *config.Config) *http.Client {
	c := cleanhttp.DefaultPooledClient()
	if cfg != nil && cfg.HTTP.Timeout > 0 {
		c.Timeout = cfg.HTTP.Timeout
	}
	return c
}
