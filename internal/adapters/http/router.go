package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/confclient/internal/app/orch"
	"github.com/dkeye/confclient/internal/config"
	"github.com/dkeye/confclient/internal/domain"
)

// SetupRouter exposes the read-only status API of a running session.
func SetupRouter(cfg *config.Config, sess *orch.Session) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Int("port", cfg.StatusPort).Msg("status router setup")

	api := r.Group("/api")

	api.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"state":      sess.State().String(),
			"conference": sess.ConferenceID(),
			"self":       sess.LocalParticipantID(),
		})
	})

	api.GET("/participants", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"participants": sess.Participants()})
	})

	api.GET("/producers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"producers": sess.Producers()})
	})

	api.GET("/streams", func(c *gin.Context) {
		type streamView struct {
			ParticipantID domain.ParticipantID `json:"participantId"`
			Tracks        int                  `json:"tracks"`
		}
		streams := sess.Streams()
		out := make([]streamView, 0, len(streams))
		for _, s := range streams {
			out = append(out, streamView{ParticipantID: s.ParticipantID(), Tracks: len(s.Tracks())})
		}
		c.JSON(http.StatusOK, gin.H{"streams": out})
	})

	return r
}
