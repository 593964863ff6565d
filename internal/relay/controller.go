package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/signal"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type SignalWSController struct {
	Hub        *Hub
	ReadLimit  int64
	PingPeriod time.Duration
	QueueSize  int
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and binds the connection to the party
// named by the id query parameter, or to the client token when absent.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		id = c.GetString("client_token")
	}
	party, err := domain.NewParty(id, c.Query("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	l := log.With().Str("module", "relay.signal").Str("party", string(party.ID)).Logger()
	l.Info().Str("sid", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := signal.NewConn(ws, ctl.QueueSize)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Hub.Join(ctx, party, conn, cancel)

	go ctl.writePump(ctx, conn, l)
	go ctl.readPump(ctx, cancel, party, conn, l)
}

func (ctl *SignalWSController) writePump(ctx context.Context, conn *signal.Conn, l zerolog.Logger) {
	conn.WritePump(ctx, ctl.PingPeriod, l)
	conn.Close()
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, party domain.Party, conn *signal.Conn, l zerolog.Logger) {
	defer func() {
		l.Info().Msg("readPump closing")
		cancel()
		conn.Close()
		ctl.Hub.Leave(context.Background(), party.ID, conn)
	}()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	err := conn.ReadPump(ctl.ReadLimit, ctl.PingPeriod, func(data []byte) {
		if err := ctl.Hub.Deliver(ctx, party, data); err != nil {
			l.Debug().Err(err).Msg("frame not delivered")
		}
	})
	if ctx.Err() == nil {
		l.Info().Err(err).Msg("readPump read error")
	}
}
