package server

import (
	"context"
	"crypto/subtle"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
)

const (
	headerAPIKey       = "X-API-Key"
	headerClientSecret = "X-Client-Secret"
)

// agentOperations lists the operations that client-secret callers may invoke.
var agentOperations = map[string]bool{
	OperationSubmitSnapshot: true,
	OperationPollCommands:   true,
}

// AuthMiddleware returns a Kratos middleware that authenticates requests by
// operation. Agent operations accept X-Client-Secret or X-API-Key and are
// open when clientSecret is empty. Every other operation requires X-API-Key
// and is open when apiSecret is empty.
// Swagger UI is unaffected because it's registered via HandlePrefix which
// bypasses the Kratos middleware chain.
func AuthMiddleware(apiSecret, clientSecret string) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req any) (any, error) {
			tr, ok := transport.FromServerContext(ctx)
			if !ok {
				return nil, errors.InternalServer("NO_TRANSPORT", "no transport in context")
			}

			apiKeyOK := matches(tr.RequestHeader().Get(headerAPIKey), apiSecret)
			clientOK := matches(tr.RequestHeader().Get(headerClientSecret), clientSecret)

			if agentOperations[tr.Operation()] {
				if clientSecret == "" || clientOK || apiKeyOK {
					return handler(ctx, req)
				}
				return nil, errors.Unauthorized("UNAUTHENTICATED", "missing or invalid X-Client-Secret")
			}

			if apiSecret == "" || apiKeyOK {
				return handler(ctx, req)
			}
			if clientOK {
				return nil, errors.Forbidden("PERMISSION_DENIED", "client secret not permitted for this operation")
			}
			if tr.RequestHeader().Get(headerAPIKey) == "" {
				return nil, errors.Unauthorized("UNAUTHENTICATED", "missing X-API-Key header")
			}
			return nil, errors.Unauthorized("UNAUTHENTICATED", "invalid X-API-Key")
		}
	}
}

// matches compares a presented credential with a configured secret in
// constant time. An empty secret never matches.
func matches(presented, secret string) bool {
	if secret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}
