package gateway

import (
	"fmt"
	"sort"

	"grantpath/internal/resilience"
	"grantpath/internal/resilience/fallback"
)

// Context owns every breaker-guarded gateway in the process plus the shared
// fallback registry. It is built once at startup from the configured
// descriptors and injected into each collaborator that needs a gateway;
// teardown is simply dropping the value at shutdown. There is no global
// mutable breaker state anywhere else.
type Context struct {
	gateways  map[string]*Gateway
	order     []string
	fallbacks *fallback.Registry
}

// NewContext validates the descriptors and builds one gateway per service.
// Descriptor names must be unique.
func NewContext(descs []resilience.Descriptor, fallbacks *fallback.Registry, opts ...GatewayOption) (*Context, error) {
	if fallbacks == nil {
		fallbacks = fallback.NewRegistry()
	}

	c := &Context{
		gateways:  make(map[string]*Gateway, len(descs)),
		fallbacks: fallbacks,
	}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("resilience context: %w", err)
		}
		if _, dup := c.gateways[d.Name]; dup {
			return nil, fmt.Errorf("resilience context: duplicate service %q", d.Name)
		}
		c.gateways[d.Name] = New(d, fallbacks, opts...)
		c.order = append(c.order, d.Name)
	}
	sort.Strings(c.order)
	return c, nil
}

// Gateway returns the gateway for a service name.
func (c *Context) Gateway(name string) (*Gateway, bool) {
	g, ok := c.gateways[name]
	return g, ok
}

// Gateways returns every gateway in stable name order, for health polling.
func (c *Context) Gateways() []*Gateway {
	out := make([]*Gateway, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.gateways[name])
	}
	return out
}

// Fallbacks returns the shared fallback registry.
func (c *Context) Fallbacks() *fallback.Registry { return c.fallbacks }
