package websocket

import (
	"context"
	"time"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/trentd187/chat-relay/internal/realtime"
)

// Hub is what a socket talks to: the realtime.Hub in production.
// Connect and Disconnect bracket the connection's lifetime, and Dispatch runs each frame.
type Hub interface {
	Connect(conn realtime.Conn)
	Disconnect(id realtime.ConnID)
	Dispatch(ctx context.Context, conn realtime.Conn, in realtime.Inbound)
}

// RequireUpgrade rejects plain HTTP requests to the socket endpoint with 426.
// It must run before Handler: the contrib upgrader expects the request to be a
// websocket handshake.
func RequireUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "websocket upgrade required",
		})
	}
}

// Handler upgrades the connection and serves it until it closes.
// A client may authenticate in the handshake with "?token=..." instead of sending an
// authenticate frame afterwards; both paths produce the same "authenticated" reply.
func Handler(hub Hub, cfg Config, log zerolog.Logger) fiber.Handler {
	return fiberws.New(func(conn *fiberws.Conn) {
		serve(hub, conn, conn.Query("token"), cfg, log)
	})
}

// serve runs one connection: it starts the write pump, processes frames on the
// calling goroutine, and removes the connection from the hub when reading stops.
func serve(hub Hub, conn wireConn, token string, cfg Config, log zerolog.Logger) {
	client := newClient(conn, cfg, log)

	// ctx is cancelled once the write pump stops, so a lookup still running for a
	// socket that can no longer be written to gives up early
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub.Connect(client)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		client.writePump()
	}()

	if token != "" {
		hub.Dispatch(ctx, client, realtime.Inbound{
			Type: realtime.InboundAuthenticate,
			Data: realtime.InboundData{Token: token},
		})
	}

	started := time.Now()
	err := client.readPump(
		func(in realtime.Inbound) { hub.Dispatch(ctx, client, in) },
		func(err error) {
			if sendErr := client.Send(realtime.ErrorEvent(err)); sendErr != nil {
				client.log.Debug().Err(sendErr).Msg("error reply not delivered")
			}
		},
	)
	if fiberws.IsUnexpectedCloseError(err, fiberws.CloseGoingAway, fiberws.CloseNormalClosure, fiberws.CloseNoStatusReceived) {
		client.log.Warn().Err(err).Msg("unexpected websocket close")
	}

	// Unregister first so nothing new is routed here, then flush and close
	hub.Disconnect(client.ID())
	client.Close()
	<-writerDone

	client.log.Debug().Dur("duration", time.Since(started)).Msg("connection closed")
}
