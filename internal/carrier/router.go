package carrier

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/roles"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RouterConfig bundles what SetupRouter needs to wire the demo HTTP
// surface.
type RouterConfig struct {
	Secret     string
	Hub        *Hub
	Lookup     *roles.JWTLookup
	Verifier   *roles.Verifier
	DefaultSet domain.RoleSet
}

// SetupRouter builds the demo gin.Engine: a session endpoint that
// mints a long-lived ulid session id and a signed role token, and a
// websocket endpoint that joins the caller to a container's Hub.
func SetupRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("synccore", store))

	api := r.Group("/api")

	api.POST("/session", func(c *gin.Context) {
		sessionID := ulid.Make().String()
		clientID := domain.ClientID(uuid.NewString())

		token, err := cfg.Lookup.Issue(clientID, cfg.DefaultSet)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		sess := sessions.Default(c)
		sess.Set("session_id", sessionID)
		if err := sess.Save(); err != nil {
			log.Error().Str("module", "carrier.router").Err(err).Msg("save session")
		}

		c.JSON(http.StatusOK, gin.H{
			"sessionId": sessionID,
			"clientId":  clientID,
			"token":     token,
		})
	})

	api.GET("/ws/:container", func(c *gin.Context) {
		containerID := domain.ContainerID(c.Param("container"))
		clientID := domain.ClientID(c.Query("client"))
		if clientID == "" {
			clientID = domain.ClientID(uuid.NewString())
		}

		if cfg.Verifier != nil {
			allowed, err := cfg.Verifier.VerifyAllowed(c.Request.Context(), clientID, cfg.DefaultSet)
			if err != nil || !allowed {
				c.JSON(http.StatusForbidden, gin.H{"error": "role verification failed"})
				return
			}
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Str("module", "carrier.router").Err(err).Msg("ws upgrade")
			return
		}
		cfg.Hub.Join(containerID, clientID, ws)
	})

	return r
}
