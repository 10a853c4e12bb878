// Live nearby feed over WebSocket.
//
// This file exposes GET /ws/nearby, which upgrades to a WebSocket and streams
// feed snapshots: one immediately on connect, then one whenever the session
// refreshes (poll cadence or presence events). The client may re-center the
// view by sending a small JSON "move" message.
//
// Wire format (server -> client): services.FeedSnapshot as JSON.
// Wire format (client -> server): {"type":"move","lat":..,"lng":..}
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-nearby-backend/internal/geo"
	"github.com/tbourn/go-nearby-backend/internal/http/middleware"
	"github.com/tbourn/go-nearby-backend/internal/services"
	"github.com/tbourn/go-nearby-backend/internal/utils"
)

const (
	// wsWriteWait bounds a single snapshot write.
	wsWriteWait = 10 * time.Second
	// wsPongWait is how long a silent peer stays connected.
	wsPongWait = 60 * time.Second
	// wsPingPeriod must be shorter than wsPongWait.
	wsPingPeriod = 50 * time.Second
	// wsMaxMessageSize caps inbound control messages.
	wsMaxMessageSize = 512
)

// wsUpgrader performs the HTTP -> WebSocket upgrade. Cross-origin policy is
// enforced by the CORS middleware before the upgrade is attempted.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClientMessage is the inbound control message envelope.
type wsClientMessage struct {
	Type string   `json:"type"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

// NearbyFeedWS godoc
// @ID          nearbyFeedWS
// @Summary     Stream the nearby feed
// @Description Upgrades to a WebSocket and pushes feed snapshots for the given
// @Description viewpoint. Snapshots carry an is_stale flag when the store is
// @Description temporarily unreachable and older data is being served.
// @Tags        Nearby
//
// @Param       X-Entity-ID  header  string  false "Entity ID (excluded from results)"  example(user123)
// @Param       lat          query   number  true  "Center latitude"   example(28.5355)
// @Param       lng          query   number  true  "Center longitude"  example(77.3910)
// @Param       radius_km    query   number  false "Radius in km (server default when omitted)"  example(5)
//
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad coordinate or radius"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /ws/nearby [get]
func (h *Handlers) NearbyFeedWS(c *gin.Context) {
	if h.feed == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "live feed disabled")
		return
	}

	center, okc := centerFromQuery(c)
	if !okc {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "lat and lng query parameters are required")
		return
	}
	radius := utils.ParseFloatDefault(c.Query("radius_km"), 0)

	// Open the session before upgrading so feed errors still map onto a
	// normal HTTP error envelope.
	session, err := h.feed.Open(c.Request.Context(), entityID(c), center, radius)
	if err != nil {
		failNearby(c, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		session.Close()
		// Upgrade already wrote its own response.
		return
	}

	lg := middleware.LoggerFrom(c)
	go h.feedWritePump(conn, session)
	h.feedReadPump(conn, session, lg.With().Str("ws_session", session.ID).Logger())
}

// feedWritePump pushes the current snapshot on connect and after every
// refresh signal, plus periodic pings. It owns all writes to the socket and
// exits when the session or the connection goes away.
func (h *Handlers) feedWritePump(conn *websocket.Conn, session *services.FeedSession) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	defer conn.Close()

	send := func() bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(session.Snapshot()) == nil
	}
	if !send() {
		return
	}

	for {
		select {
		case _, okCh := <-session.Updates():
			if !okCh {
				return
			}
			if !send() {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if conn.WriteMessage(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// feedReadPump consumes inbound control messages until the peer disconnects,
// then tears the session down. It never writes to the socket.
func (h *Handlers) feedReadPump(conn *websocket.Conn, session *services.FeedSession, lg zerolog.Logger) {
	defer func() {
		session.Close()
		conn.Close()
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				lg.Debug().Err(err).Msg("feed socket closed unexpectedly")
			}
			return
		}
		if msg.Type == "move" && msg.Lat != nil && msg.Lng != nil {
			if err := session.Move(geo.Coordinate{Lat: *msg.Lat, Lng: *msg.Lng}); err != nil {
				lg.Debug().Float64("lat", *msg.Lat).Float64("lng", *msg.Lng).Msg("rejected move to invalid coordinate")
			}
		}
	}
}
