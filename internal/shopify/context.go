package shopify

import "context"

type credentialsKey struct{}

// WithCredentials attaches shop credentials to the context so graph nodes and
// tools can execute Admin API calls for the right shop.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFrom extracts shop credentials from the context.
func CredentialsFrom(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(credentialsKey{}).(Credentials)
	return creds, ok
}
