package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/domain"
)

const ctxKeyPrincipal = "principal"

// JWTClaims are the claims of a resource cloud token. The same shape serves
// users and worker processes; workers carry admin rights and the worker flag.
type JWTClaims struct {
	UserID            string   `json:"user_id"`
	Admin             bool     `json:"admin,omitempty"`
	ManagedWorkspaces []string `json:"managed_workspaces,omitempty"`
	Worker            bool     `json:"worker,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT signing configuration.
type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	ExpiresIn  time.Duration
}

// GenerateToken creates a signed HS256 token for the user.
func GenerateToken(cfg JWTConfig, user domain.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(cfg.ExpiresIn)

	claims := JWTClaims{
		UserID:            user.ID,
		Admin:             user.Admin,
		ManagedWorkspaces: user.ManagedWorkspaces,
		Worker:            user.Worker,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ValidateToken parses tokenString and returns its claims.
func (cfg JWTConfig) ValidateToken(tokenString string) (*JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is empty", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

// JWTAuth returns a Gin middleware that validates Bearer tokens and stores
// the caller's Principal on the context.
func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "invalid authorization header format",
			})
			return
		}

		claims, err := cfg.ValidateToken(parts[1])
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": msg,
			})
			return
		}

		c.Set(ctxKeyPrincipal, domain.User{
			ID:                claims.UserID,
			Admin:             claims.Admin,
			ManagedWorkspaces: claims.ManagedWorkspaces,
			Worker:            claims.Worker,
		})
		c.Request = c.Request.WithContext(SetUserContext(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// RequireAdmin rejects callers without admin rights. It must run after JWTAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := Principal(c)
		if !ok || !p.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "FORBIDDEN",
				"message": "admin rights required",
			})
			return
		}
		c.Next()
	}
}

// Principal returns the caller set by JWTAuth.
func Principal(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(ctxKeyPrincipal)
	if !ok {
		return nil, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}
