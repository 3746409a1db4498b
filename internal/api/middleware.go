package api

import (
	"context"
	"strconv"
	"strings"
	"time"

	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/common/metrics"
	"submission-workflow/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	actorKey     = "actor"
	requestIDKey = "requestId"
)

// Authenticator turns a bearer token into an actor. auth.KeycloakClient
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Actor, error)
}

// DevAuthenticator reads "role:id[:agencyId]" tokens. It is only wired when
// auth is disabled in configuration.
type DevAuthenticator struct{}

func (DevAuthenticator) Authenticate(_ context.Context, token string) (models.Actor, error) {
	parts := strings.Split(token, ":")
	if len(parts) < 2 || parts[1] == "" {
		return models.Actor{}, apperrors.NewUnauthorizedError("expected role:id[:agencyId]")
	}
	switch models.Role(strings.ToUpper(parts[0])) {
	case models.RoleAdmin:
		return models.Actor{ID: parts[1], Role: models.RoleAdmin}, nil
	case models.RoleAgency:
		if len(parts) < 3 || parts[2] == "" {
			return models.Actor{}, apperrors.NewForbiddenError("agency token carries no agency id")
		}
		return models.Actor{ID: parts[1], Role: models.RoleAgency, AgencyID: parts[2]}, nil
	}
	return models.Actor{}, apperrors.NewForbiddenError("unknown role " + parts[0])
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"durationMs": elapsed.Milliseconds(),
			"requestId":  c.GetString(requestIDKey),
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.Last().Error()
		}
		switch {
		case status >= 500:
			log.Error("request failed", fields)
		case status >= 400:
			log.Warn("request rejected", fields)
		default:
			log.Debug("request served", fields)
		}
	}
}

func authenticate(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || token == header {
			respondError(c, apperrors.NewUnauthorizedError("bearer token required"))
			return
		}
		actor, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// requireRole admits only the listed roles.
func requireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		respondError(c, apperrors.NewForbiddenError("role "+string(actor.Role)+" may not perform this action"))
	}
}

func actorFrom(c *gin.Context) models.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(models.Actor); ok {
			return a
		}
	}
	return models.Actor{}
}
