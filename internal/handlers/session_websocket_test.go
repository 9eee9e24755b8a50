package handlers

import (
	"net"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyforge/internal/middleware"
	"studyforge/internal/models"
	"studyforge/internal/services"
	"studyforge/pkg/auth"
)

// startSessionStream serves /ws/session on a loopback port
func startSessionStream(t *testing.T, bus *services.SessionEventBus, jwtAuth *auth.LocalJWTAuth) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws/session", middleware.OptionalLocalAuthMiddleware(jwtAuth))
	app.Get("/ws/session", websocket.New(NewSessionWebSocketHandler(bus).Handle))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/ws/session"
}

func readFrame(t *testing.T, conn *fastws.Conn) SessionServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg SessionServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSessionWebSocket_Anonymous(t *testing.T) {
	jwtAuth, err := auth.NewLocalJWTAuth("test-secret", 0, 0)
	require.NoError(t, err)
	url := startSessionStream(t, services.NewSessionEventBus(), jwtAuth)

	conn, _, err := fastws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readFrame(t, conn)
	assert.Equal(t, "session", msg.Type)
	assert.Equal(t, "anonymous", msg.Level)
	assert.Nil(t, msg.Session)
}

func TestSessionWebSocket_PushesEvents(t *testing.T) {
	jwtAuth, err := auth.NewLocalJWTAuth("test-secret", 0, 0)
	require.NoError(t, err)
	bus := services.NewSessionEventBus()
	url := startSessionStream(t, bus, jwtAuth)

	accessToken, _, err := jwtAuth.GenerateTokens(unverified, 1)
	require.NoError(t, err)

	conn, _, err := fastws.DefaultDialer.Dial(url+"?token="+accessToken, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readFrame(t, conn)
	assert.Equal(t, "session", msg.Type)
	assert.Equal(t, "authenticated_unverified", msg.Level)

	require.Eventually(t, func() bool { return bus.SubscriberCount(unverified.ID) == 1 }, 2*time.Second, 10*time.Millisecond)
	bus.Publish(unverified.ID, models.SessionEvent{
		Type:    models.SessionTokenRefreshed,
		Session: &models.Session{UserID: unverified.ID, Email: unverified.Email, EmailVerified: true},
	})

	msg = readFrame(t, conn)
	assert.Equal(t, models.SessionTokenRefreshed, msg.Type)
	assert.Equal(t, "authenticated_verified", msg.Level)

	require.NoError(t, conn.WriteJSON(SessionClientMessage{Type: "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}
