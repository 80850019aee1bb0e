package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/parqops/parking/pkg/parking"
)

const (
	actorContextKey   = "actor"
	roleClaimKey      = "role"
	bearerPrefix      = "Bearer "
	errMissingToken   = "missing bearer token"
	errInvalidToken   = "invalid token"
	errUnknownRole    = "unknown role claim"
	errMissingSubject = "token subject is required"
)

// bearerAuth validates an HS256 bearer token and stores the resulting
// Actor in the request context. Tokens carry the user id in the subject
// and the capability in the "role" claim.
func bearerAuth(signingKey []byte, issuer string) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		header := ginContext.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			abortWithError(ginContext, http.StatusUnauthorized, errMissingToken)
			return
		}
		rawToken := strings.TrimPrefix(header, bearerPrefix)

		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return signingKey, nil
		}, jwt.WithIssuer(issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !parsed.Valid {
			abortWithError(ginContext, http.StatusUnauthorized, errInvalidToken)
			return
		}

		subject, err := claims.GetSubject()
		if err != nil {
			abortWithError(ginContext, http.StatusUnauthorized, errMissingSubject)
			return
		}
		userID, err := parking.NewUserID(subject)
		if err != nil {
			abortWithError(ginContext, http.StatusUnauthorized, errMissingSubject)
			return
		}
		rawRole, _ := claims[roleClaimKey].(string)
		role, err := parking.ParseRole(rawRole)
		if err != nil {
			abortWithError(ginContext, http.StatusUnauthorized, errUnknownRole)
			return
		}

		ginContext.Set(actorContextKey, parking.Actor{UserID: userID, Role: role})
		ginContext.Next()
	}
}

func actorFromContext(ginContext *gin.Context) (parking.Actor, bool) {
	value, exists := ginContext.Get(actorContextKey)
	if !exists {
		return parking.Actor{}, false
	}
	actor, ok := value.(parking.Actor)
	return actor, ok
}
