package devserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/artisan-platform/live-session/pkg/constants"
)

// NewRouter builds the HTTP router for the harness.
func NewRouter(
	exhibitions *ExhibitionHandler,
	ws *WSHandler,
	relay *MediaRelay,
	health *HealthHandler,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	// REST surface consumed by the live session
	ex := r.Group("/exhibitions")
	{
		ex.GET("/:id", exhibitions.GetExhibition)
		ex.POST("/:id/live-token", exhibitions.CreateToken)
		ex.POST("/:id/end-live", exhibitions.EndLive)
		ex.POST("/:id/recording", exhibitions.UploadRecording)
	}

	// signaling socket
	r.GET(constants.PathSignalingWS, ws.ServeWS)

	// media transport
	r.POST(constants.PathWHIP, relay.HandleWHIP)
	r.POST(constants.PathWHEP, relay.HandleWHEP)
	r.DELETE("/media/session/:id", relay.DeleteSession)

	return r
}
