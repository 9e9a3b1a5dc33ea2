// Package middleware содержит HTTP middleware сервиса учёта баллонов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/mmeshcher/sodatrack/internal/validation"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

// OwnerTokenHeader - заголовок с подписанным идентификатором владельца.
const OwnerTokenHeader = "X-Owner-Token"

// AuthMiddleware проверяет подписанный токен владельца вида "<owner>.<hex hmac-sha256>".
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет токен и добавляет идентификатор владельца в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := a.ParseToken(r.Header.Get(OwnerTokenHeader))
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SignToken выпускает токен для владельца.
func (a *AuthMiddleware) SignToken(ownerID string) string {
	return ownerID + "." + a.signature(ownerID)
}

func (a *AuthMiddleware) signature(ownerID string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(ownerID))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseToken проверяет подпись токена и возвращает идентификатор владельца.
func (a *AuthMiddleware) ParseToken(token string) (string, bool) {
	idx := strings.LastIndexByte(token, '.')
	if idx <= 0 {
		return "", false
	}

	ownerID, signature := token[:idx], token[idx+1:]
	if !validation.IsValidOwnerID(ownerID) {
		return "", false
	}
	if !hmac.Equal([]byte(signature), []byte(a.signature(ownerID))) {
		return "", false
	}
	return ownerID, true
}

// GetOwnerIDFromContext извлекает идентификатор владельца из контекста запроса.
func GetOwnerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerIDKey).(string)
	return id, ok && id != ""
}

// WithOwnerID возвращает контекст с идентификатором владельца.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}
