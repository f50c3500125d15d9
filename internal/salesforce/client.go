// Package salesforce is the remote side of planning: batched describes over
// the REST composite API and job control over the async Bulk API.
//
// The client never authenticates. It is handed an access token that was
// already issued and attaches it to every request.
package salesforce

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"sfextract/internal/datasource/httpds"
)

// DefaultAPIVersion is used when Config.APIVersion is empty.
const DefaultAPIVersion = "59.0"

// Config configures a Client.
type Config struct {
	// InstanceURL is the org base URL, e.g. https://acme.my.salesforce.com.
	InstanceURL string
	// APIVersion without the leading "v", e.g. "59.0".
	APIVersion string
	// AccessToken is an already issued OAuth access token or session id.
	AccessToken string

	Timeout    time.Duration
	MaxRetries int // retries for describe calls only

	InsecureSkipVerify bool
	// ProxyURL routes all requests through an HTTP proxy when set.
	ProxyURL string

	// Transport replaces the default base transport; the token is still
	// attached on top of it.
	Transport http.RoundTripper
}

// Client talks to one Salesforce org.
type Client struct {
	rest    *httpds.Client // retries transient failures
	bulk    *httpds.Client // single attempt; callers own the retry policy
	tokens  oauth2.TokenSource
	base    string
	version string
	logger  *log.Logger

	global singleflight.Group
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	if cfg.InstanceURL == "" {
		return nil, errors.New("salesforce: instance URL is required")
	}
	u, err := url.Parse(cfg.InstanceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("salesforce: invalid instance URL %q", cfg.InstanceURL)
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("salesforce: access token is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	cfg.APIVersion = strings.TrimPrefix(cfg.APIVersion, "v")
	if logger == nil {
		logger = log.Default()
	}

	base := cfg.Transport
	if base == nil {
		tr := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
		if cfg.ProxyURL != "" {
			pu, err := url.Parse(cfg.ProxyURL)
			if err != nil {
				return nil, fmt.Errorf("salesforce: invalid proxy URL: %w", err)
			}
			tr.Proxy = http.ProxyURL(pu)
		}
		base = tr
	}

	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	rest := httpds.NewClient(httpds.Config{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Transport:  &oauth2.Transport{Source: tokens, Base: base},
	})

	return &Client{
		rest:    rest,
		bulk:    rest.NoRetry(),
		tokens:  tokens,
		base:    strings.TrimRight(cfg.InstanceURL, "/"),
		version: cfg.APIVersion,
		logger:  logger,
	}, nil
}

func (c *Client) dataURL(path string) string {
	return fmt.Sprintf("%s/services/data/v%s/%s", c.base, c.version, strings.TrimLeft(path, "/"))
}

func (c *Client) asyncURL(path string) string {
	return fmt.Sprintf("%s/services/async/%s/%s", c.base, c.version, strings.TrimLeft(path, "/"))
}

// sessionHeader returns the header the async API authenticates with.
func (c *Client) sessionHeader() (http.Header, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("salesforce: access token: %w", err)
	}
	return http.Header{"X-Sfdc-Session": {tok.AccessToken}}, nil
}
