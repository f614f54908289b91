package httpapi

import (
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"serotonyl.ru/wallet-bot/internal/common"
)

// Ключи контекста gin
const (
	ctxUserID = "user_id"
	ctxAdmin  = "admin"
)

// Claims: токен сервиса идентификации. sub: ID пользователя.
type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken подписывает токен для пользователя. Нужен сервису
// идентификации и тестам.
func IssueToken(secret string, userID int64, admin bool, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// authRequired проверяет Bearer-токен и кладёт user_id в контекст.
func authRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			abortWithError(c, common.ErrUnauthorized)
			return
		}
		claims, err := parseToken(secret, raw)
		if err != nil {
			abortWithError(c, common.ErrUnauthorized)
			return
		}
		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || userID <= 0 {
			abortWithError(c, common.ErrUnauthorized)
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxAdmin, claims.Admin)
		c.Next()
	}
}

// requireAdmin пропускает только токены с admin=true.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxAdmin) {
			abortWithError(c, common.ErrForbidden)
			return
		}
		c.Next()
	}
}

// webhookSecret проверяет заголовок X-Webhook-Secret.
func webhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Webhook-Secret")
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			abortWithError(c, common.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
