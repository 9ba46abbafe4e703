package authcore

import "context"

type agentContextKey struct{}

// WithAgent attaches the caller's client descriptor (platform and build, e.g.
// "ios/3.2.1") to ctx. It is stamped into access-token claims and refresh
// family records for audit trails.
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, agentContextKey{}, agent)
}

func agentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	agent, _ := ctx.Value(agentContextKey{}).(string)
	return agent
}
