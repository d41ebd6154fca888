package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	appIDKey        contextKey = "app_id"
	keyPrefixKey    contextKey = "key_prefix"
	apiKeyScopesKey contextKey = "api_key_scopes"
	authInfoKey     contextKey = "auth_info"
)

// authInfo is a mutable holder installed by Logger before auth runs, so the
// request log line can carry the app id resolved further down the chain.
type authInfo struct {
	appID         uuid.UUID
	authenticated bool
}

func withAuthInfo(ctx context.Context) context.Context {
	return context.WithValue(ctx, authInfoKey, &authInfo{})
}

func markAuthenticated(ctx context.Context, id uuid.UUID) {
	if info, ok := ctx.Value(authInfoKey).(*authInfo); ok {
		info.appID = id
		info.authenticated = true
	}
}

func authenticatedAppID(ctx context.Context) (uuid.UUID, bool) {
	info, ok := ctx.Value(authInfoKey).(*authInfo)
	if !ok || !info.authenticated {
		return uuid.Nil, false
	}
	return info.appID, true
}

func SetAppID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, appIDKey, id)
}

func GetAppID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(appIDKey).(uuid.UUID)
	return id, ok
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

func setScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, apiKeyScopesKey, scopes)
}

func getScopes(r *http.Request) []string {
	scopes, _ := r.Context().Value(apiKeyScopesKey).([]string)
	return scopes
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
