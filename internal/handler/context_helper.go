package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	"github.com/noah-isme/volunteer-hours-api/internal/middleware"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
	"github.com/noah-isme/volunteer-hours-api/pkg/response"
)

// currentActor returns the authenticated actor or writes 401.
func currentActor(c *gin.Context) (authz.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok || actor.SubjectID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return authz.Actor{}, false
	}
	return actor, true
}

// bindJSON decodes the request body into dest or writes 400.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size
}
