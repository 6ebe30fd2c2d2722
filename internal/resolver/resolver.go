// Package resolver queries an external object-name resolution service
// (SIMBAD/Sesame style): a recognized source name becomes sky
// coordinates, letting a full-text search degrade to a cone search.
// Resolution failure is never fatal to the query; callers treat any
// error as "no resolution".
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// MaxTimeout is the hard cap on one resolution call.
const MaxTimeout = 10 * time.Second

// Cone radii chosen by the resolved object type.
const (
	// PointRadiusArcmin is used for point-like resolutions (5 arcsec).
	PointRadiusArcmin = 5.0 / 60.0
	// ExtendedRadiusArcmin is used for extended resolutions (1 degree).
	ExtendedRadiusArcmin = 60.0
)

// Resolution is a successful name lookup.
type Resolution struct {
	RA       float64 `json:"ra"`
	Dec      float64 `json:"decl"`
	Extended bool    `json:"extended"`
}

// RadiusArcmin returns the policy cone radius for the resolved type.
func (r Resolution) RadiusArcmin() float64 {
	if r.Extended {
		return ExtendedRadiusArcmin
	}
	return PointRadiusArcmin
}

// Resolver turns object names into coordinates.
type Resolver interface {
	Resolve(ctx context.Context, name string) (Resolution, bool, error)
}

// Client is an HTTP name-resolution client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a resolver client. Timeouts above MaxTimeout are
// clamped.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Resolve looks up a name. ok=false means the service answered but did
// not recognize the name; errors mean the service was unreachable, which
// callers also treat as no resolution.
func (c *Client) Resolve(ctx context.Context, name string) (Resolution, bool, error) {
	u := fmt.Sprintf("%s/resolve?name=%s", c.baseURL, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Resolution{}, false, fmt.Errorf("build resolve request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Resolution{}, false, fmt.Errorf("resolve %q: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Resolution{}, false, nil
	default:
		return Resolution{}, false, fmt.Errorf("resolve %q: unexpected status %d", name, resp.StatusCode)
	}

	var res Resolution
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Resolution{}, false, fmt.Errorf("decode resolution for %q: %w", name, err)
	}
	return res, true, nil
}
