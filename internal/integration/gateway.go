package integration

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/integrationgw/internal/cache"
	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

// API gateway identifiers.
const (
	// APIGatewayAuth is the service key of the token endpoint.
	APIGatewayAuth = "AUTENTICACAO_API_GATEWAY"

	// APIGatewayTokenKey is the shared cache key of the bearer token.
	APIGatewayTokenKey = "API_GATEWAY_TOKEN"

	// APIGatewayUnauthorized is the status that triggers a token refresh.
	APIGatewayUnauthorized = http.StatusUnauthorized

	// BearerTokens is the configuration document holding login credentials.
	BearerTokens = "BearerTokens"

	// APIGatewayBearerToken is the BearerTokens entry used for login.
	APIGatewayBearerToken = "API_GTW_BEARER_TOKEN"
)

// GatewayClient calls services behind the API gateway with a bearer token.
type GatewayClient struct {
	*Client

	token *string
}

// NewGatewayClient wraps base.
func NewGatewayClient(base *Client) *GatewayClient {
	return &GatewayClient{Client: base}
}

// ConsumeAPIGatewayService performs a JSON call with a bearer token. When
// either the token acquisition or the call answers 401, a fresh token is
// obtained and the call repeated once; the outcome of that second attempt
// is returned as is.
func (g *GatewayClient) ConsumeAPIGatewayService(ctx context.Context, in APIConsume) (*APIResponse, error) {
	resp, err := g.consumeWithToken(ctx, in)
	if err == nil || StatusOf(err) != APIGatewayUnauthorized {
		return resp, err
	}

	g.logger.Warn("api gateway answered unauthorized, logging in again",
		observability.String("code", in.ServiceKey))

	token, err := g.LoginAPIGateway(ctx)
	if err != nil {
		return nil, err
	}
	return g.ConsumeJSONAPI(ctx, bearer(in, token))
}

func (g *GatewayClient) consumeWithToken(ctx context.Context, in APIConsume) (*APIResponse, error) {
	token, err := g.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		if token, err = g.LoginAPIGateway(ctx); err != nil {
			return nil, err
		}
	}
	return g.ConsumeJSONAPI(ctx, bearer(in, token))
}

// LoginAPIGateway obtains a new token with the BearerTokens credential and
// stores it in the shared cache.
func (g *GatewayClient) LoginAPIGateway(ctx context.Context) (string, error) {
	credential, err := g.config.GetDefaultConfiguration(ctx, BearerTokens, APIGatewayBearerToken)
	if err != nil {
		return "", err
	}
	basic, _ := credential["token"].(string)
	if basic == "" {
		g.metrics.RecordTokenLogin(false)
		return "", &AuthError{Reason: fmt.Sprintf("credential %s.%s is missing", BearerTokens, APIGatewayBearerToken)}
	}

	resp, err := g.ConsumeJSONAPI(ctx, APIConsume{
		ServiceKey: APIGatewayAuth,
		Headers: map[string]string{
			HeaderAuthorization: "Basic " + basic,
			HeaderContentType:   ContentTypeForm,
		},
		Options: CallOptions{Method: http.MethodPost},
	})
	if err != nil {
		g.metrics.RecordTokenLogin(false)
		return "", err
	}

	data, _ := resp.Data.(map[string]any)
	token, _ := data["access_token"].(string)
	if token == "" {
		g.metrics.RecordTokenLogin(false)
		return "", &AuthError{Reason: "auth token does not exist"}
	}
	g.metrics.RecordTokenLogin(true)

	return g.CacheToken(ctx, token)
}

// GetToken returns the token held by this client, falling back to the
// shared cache. An empty string means no token is known.
func (g *GatewayClient) GetToken(ctx context.Context) (string, error) {
	g.logger.Debug("api token lookup",
		observability.String("code", "API_TOKEN"),
		observability.Bool("memoryCacheHit", g.token != nil))

	if g.token != nil {
		return *g.token, nil
	}

	value, found, err := g.cache.Get(ctx, APIGatewayTokenKey)
	if err != nil {
		return "", err
	}
	if found {
		g.token = &value
	}
	g.logger.Debug("api token lookup",
		observability.String("code", "API_TOKEN"),
		observability.Bool("redisCacheHit", found))

	return value, nil
}

// CacheToken stores token in the shared cache and in this client. A JWT
// expiring within the hour is cached only until it expires.
func (g *GatewayClient) CacheToken(ctx context.Context, token string) (string, error) {
	stored, err := g.cache.Set(ctx, APIGatewayTokenKey, token, tokenTTL(token, time.Now()))
	if err != nil {
		return "", err
	}
	g.token = &stored
	return stored, nil
}

// tokenTTL returns the shared cache TTL in seconds for token.
func tokenTTL(token string, now time.Time) int {
	parsed, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return cache.Hour
	}
	exp := parsed.Expiration()
	if exp.IsZero() {
		return cache.Hour
	}

	remaining := int(exp.Sub(now).Seconds())
	switch {
	case remaining >= cache.Hour:
		return cache.Hour
	case remaining < 1:
		return 1
	default:
		return remaining
	}
}

func bearer(in APIConsume, token string) APIConsume {
	in.Headers = map[string]string{
		HeaderAuthorization: "Bearer " + token,
		HeaderContentType:   ContentTypeJSON,
	}
	return in
}
