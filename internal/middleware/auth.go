package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type callerKey struct{}

// APIKeyAuth 校验 Authorization: ApiKey <token>。
// 通过后把 key 的短指纹作为调用方标识写入 context，供日志与限流使用；
// 它不是文件归属的 owner id，owner 仍由请求参数提供。
func APIKeyAuth(validKeys []string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(validKeys))
	for _, key := range validKeys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			keys = append(keys, []byte(trimmed))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "ApiKey "
			header := r.Header.Get("Authorization")
			switch {
			case header == "":
				writeAuthError(w, "missing Authorization header")
				return
			case !strings.HasPrefix(header, prefix):
				writeAuthError(w, "invalid Authorization format, expected: ApiKey <token>")
				return
			}

			presented := []byte(strings.TrimSpace(strings.TrimPrefix(header, prefix)))
			if len(presented) == 0 {
				writeAuthError(w, "empty API key")
				return
			}
			if !matchesAny(keys, presented) {
				writeAuthError(w, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), callerKey{}, fingerprint(string(presented)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerID 返回鉴权后的调用方标识，未开启鉴权时为空。
func CallerID(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey{}).(string); ok {
		return v
	}
	return ""
}

func matchesAny(keys [][]byte, presented []byte) bool {
	found := false
	for _, key := range keys {
		if subtle.ConstantTimeCompare(key, presented) == 1 {
			found = true
		}
	}
	return found
}

func fingerprint(key string) string {
	if len(key) <= 4 {
		return "key:****"
	}
	return "key:…" + key[len(key)-4:]
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `ApiKey realm="fileops admin"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
