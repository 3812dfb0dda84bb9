package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/munlink-zambales/claimdesk-api/internal/middleware"
	"github.com/munlink-zambales/claimdesk-api/internal/models"
	appErrors "github.com/munlink-zambales/claimdesk-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext builds the service actor from the verified token and the
// request metadata written to audit rows.
func actorFromContext(c *gin.Context) (models.Actor, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.Actor{}, appErrors.ErrUnauthorized
	}
	id, err := claims.UserID()
	if err != nil {
		return models.Actor{}, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token subject")
	}
	return models.Actor{
		UserID:         id,
		Role:           claims.Role,
		MunicipalityID: claims.MunicipalityID,
		IPAddress:      c.ClientIP(),
		UserAgent:      c.GetHeader("User-Agent"),
	}, nil
}

func requestIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid request id")
	}
	return id, nil
}
