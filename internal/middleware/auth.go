package middleware

import (
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gateprep/exam-service/internal/config"
	"github.com/gateprep/exam-service/internal/models"
	"github.com/gateprep/exam-service/internal/repositories"
	"github.com/gateprep/exam-service/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const actorKey = "actor"

// TokenParser verifies an access token and returns its claims. *casdoorsdk.Client
// satisfies it.
type TokenParser interface {
	ParseJwtToken(token string) (*casdoorsdk.Claims, error)
}

// NewCasdoorClient builds the SDK client that verifies tokens against the
// configured certificate.
func NewCasdoorClient(cfg config.CasdoorConfig) *casdoorsdk.Client {
	return casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Certificate,
		cfg.OrganizationName,
		cfg.ApplicationName,
	)
}

type errorBody struct {
	Message string `json:"message"`
}

// Authenticator turns a bearer token into a models.Actor and mirrors the identity
// into the users table the first time it is seen.
type Authenticator struct {
	parser TokenParser
	users  repositories.UserRepository
	logger utils.Logger

	seen sync.Map
}

func NewAuthenticator(parser TokenParser, users repositories.UserRepository, logger utils.Logger) *Authenticator {
	return &Authenticator{
		parser: parser,
		users:  users,
		logger: logger,
	}
}

// Authenticate rejects requests without a valid bearer token
func (a *Authenticator) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Message: "Missing bearer token"})
			return
		}

		claims, err := a.parser.ParseJwtToken(strings.TrimSpace(token))
		if err != nil {
			utils.GetLoggerFromContext(c).Debug("Token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Message: "Invalid or expired token"})
			return
		}

		actor := ActorFromClaims(claims)
		if err := a.remember(c, actor); err != nil {
			a.logger.LogError(err, "Failed to record user", "user_id", actor.ID)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Message: "Internal server error"})
			return
		}

		SetActor(c, actor)
		c.Next()
	}
}

func (a *Authenticator) remember(c *gin.Context, actor models.Actor) error {
	if known, ok := a.seen.Load(actor.ID); ok && known.(models.Actor) == actor {
		return nil
	}
	user := &models.User{ID: actor.ID, Name: actor.Name, Email: actor.Email, Role: actor.Role}
	if err := a.users.Upsert(c.Request.Context(), nil, user); err != nil {
		return err
	}
	a.seen.Store(actor.ID, actor)
	return nil
}

// ActorFromClaims maps a casdoor identity onto an Actor. Casdoor ids are usually
// uuids; anything else is hashed with the owner/name pair into a stable uuid.
func ActorFromClaims(claims *casdoorsdk.Claims) models.Actor {
	id, err := uuid.Parse(claims.Id)
	if err != nil {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(claims.Owner+"/"+claims.Name))
	}

	name := claims.DisplayName
	if name == "" {
		name = claims.Name
	}

	return models.Actor{
		ID:    id,
		Name:  name,
		Email: claims.Email,
		Role:  roleOf(claims),
	}
}

func roleOf(claims *casdoorsdk.Claims) models.UserRole {
	if claims.IsAdmin {
		return models.RoleAdmin
	}
	names := make([]string, 0, len(claims.Roles)+1)
	for _, r := range claims.Roles {
		if r != nil {
			names = append(names, strings.ToLower(r.Name))
		}
	}
	names = append(names, strings.ToLower(claims.Tag))

	switch {
	case slices.Contains(names, string(models.RoleAdmin)):
		return models.RoleAdmin
	case slices.Contains(names, string(models.RoleTeacher)):
		return models.RoleTeacher
	}
	return models.RoleStudent
}

// RequireRoles lets the request through only for the listed roles
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Message: "Unauthorized access"})
			return
		}
		if !slices.Contains(roles, actor.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Message: "Forbidden - insufficient permissions"})
			return
		}
		c.Next()
	}
}

func SetActor(c *gin.Context, actor models.Actor) {
	c.Set(actorKey, actor)
	c.Set("user_id", actor.ID.String())
}

func GetActor(c *gin.Context) (models.Actor, bool) {
	v, exists := c.Get(actorKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
