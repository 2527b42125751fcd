package middleware

import (
	"event-scheduler/auth"
	"event-scheduler/internal/errors"
	"event-scheduler/redis"
	"strings"

	"github.com/gin-gonic/gin"
)

func AuthMiddleWare() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			ctx.Error(errors.Unauthorized("Authorization is not found!", nil))
			ctx.Abort()
			return
		}

		// verify token
		token := strings.TrimPrefix(authHeader, "Bearer ")
		parsedToken, err := auth.VerifyJWT(token)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid token!", err))
			ctx.Abort()
			return
		}

		userID, err := auth.UserIDFromToken(parsedToken)
		if err != nil {
			ctx.Error(errors.Unauthorized("Invalid token!", err))
			ctx.Abort()
			return
		}

		// check the session is still active
		exists, err := redis.TokenExists(ctx.Request.Context(), token)
		if err != nil || !exists {
			ctx.Error(errors.Unauthorized("Token expired or revoked", err))
			ctx.Abort()
			return
		}

		ctx.Set("user_id", userID)
		ctx.Set("jwt_token", token)
		ctx.Next()
	}
}
