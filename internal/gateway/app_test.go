package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relaylabs/chatrelay/internal/auth"
	"github.com/relaylabs/chatrelay/internal/config"
	"github.com/relaylabs/chatrelay/internal/directory"
	"github.com/relaylabs/chatrelay/internal/server"
	"github.com/relaylabs/chatrelay/internal/stats"
	"github.com/relaylabs/chatrelay/internal/storage"
	"github.com/relaylabs/chatrelay/internal/testutil"
)

type appMocks struct {
	verifier *auth.MockVerifier
	repo     *storage.MockMessageRepository
}

func newTestApp(t *testing.T) (*httptest.Server, *appMocks) {
	t.Helper()

	logger := testutil.TestLogger(t)

	mocks := &appMocks{
		verifier: &auth.MockVerifier{},
		repo:     &storage.MockMessageRepository{},
	}

	membership := &directory.MockMembershipLookup{}
	membership.On("RoomsOf", mock.Anything, mock.Anything).Return([]string{}, nil).Maybe()
	mirror := &directory.MockPresenceMirror{}
	mirror.On("SetOnline", mock.Anything, mock.Anything).Return(nil).Maybe()
	mirror.On("SetOffline", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	statsProvider := &stats.MockProvider{}
	statsProvider.On("RegisterMetric", mock.Anything).Maybe()
	statsProvider.On("Incr", mock.Anything).Maybe()
	statsProvider.On("Decr", mock.Anything).Maybe()

	table := NewClientTable(logger)
	mgr := server.NewManager(
		logger,
		server.ManagerConfig{
			TypingTTL:        5 * time.Second,
			HeartbeatTimeout: time.Minute,
			SweepInterval:    time.Minute,
		},
		mocks.verifier,
		mocks.repo,
		membership,
		mirror,
		table,
		statsProvider,
	)

	mux := http.NewServeMux()
	app := NewApp(mux, logger, mgr, table, mocks.verifier, mocks.repo, &config.Config{ServerAddr: "localhost:0"})

	ts := httptest.NewServer(app.Handler())
	t.Cleanup(ts.Close)

	return ts, mocks
}

func dialWs(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "failed to dial websocket")
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *server.ServerEvent {
	t.Helper()

	var ev server.ServerEvent
	require.NoError(t, conn.ReadJSON(&ev), "failed to read event")
	return &ev
}

func TestApp_ConnectAndJoin(t *testing.T) {
	ts, mocks := newTestApp(t)
	mocks.verifier.On("Verify", "good").Return("u1", nil).Once()

	conn := dialWs(t, ts, "good")

	welcome := readEvent(t, conn)
	require.NotNil(t, welcome.Response, "expected a welcome response")
	assert.Equal(t, http.StatusOK, welcome.Response.ResponseCode)
	assert.NotEmpty(t, welcome.Response.Data["connection_id"], "expected connection id in welcome")

	require.NoError(t, conn.WriteJSON(server.ClientEvent{
		BaseEvent: server.BaseEvent{Id: 1},
		Join:      &server.JoinRequest{RoomId: "general"},
	}))

	joined := readEvent(t, conn)
	require.NotNil(t, joined.Response, "expected a join response")
	assert.Equal(t, 1, joined.Id, "expected response to echo the request id")
	assert.Equal(t, http.StatusOK, joined.Response.ResponseCode)
	assert.EqualValues(t, 1, joined.Response.Data["member_count"])
}

func TestApp_PublishFansOutAfterPersistence(t *testing.T) {
	ts, mocks := newTestApp(t)
	mocks.verifier.On("Verify", "good").Return("u1", nil).Once()
	mocks.repo.On("CreateMessage", mock.Anything, "general", "u1", "hi").
		Return(storage.Message{Id: "m1", RoomId: "general", UserId: "u1", Content: "hi", CreatedAt: server.Now()}, nil).Once()

	conn := dialWs(t, ts, "good")
	readEvent(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(server.ClientEvent{
		BaseEvent: server.BaseEvent{Id: 1},
		Join:      &server.JoinRequest{RoomId: "general"},
	}))
	readEvent(t, conn) // join response

	require.NoError(t, conn.WriteJSON(server.ClientEvent{
		BaseEvent: server.BaseEvent{Id: 2},
		Publish:   &server.PublishRequest{RoomId: "general", Content: "hi"},
	}))

	accepted := readEvent(t, conn)
	require.NotNil(t, accepted.Response)
	assert.Equal(t, http.StatusAccepted, accepted.Response.ResponseCode)
	assert.Equal(t, "m1", accepted.Response.Data["message_id"])

	// the sender is a room member, so it receives its own message
	broadcast := readEvent(t, conn)
	require.NotNil(t, broadcast.Message)
	assert.Equal(t, "hi", broadcast.Message.Content)
	assert.Equal(t, "u1", broadcast.Message.UserId)

	mocks.repo.AssertExpectations(t)
}

func TestApp_AuthFailureClosesConnection(t *testing.T) {
	ts, mocks := newTestApp(t)
	mocks.verifier.On("Verify", "bad").Return("", auth.ErrInvalidCredential).Once()

	conn := dialWs(t, ts, "bad")

	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected the server to close the connection")
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation),
		"expected a policy violation close code, got %v", err)
}

func TestApp_Healthz(t *testing.T) {
	ts, _ := newTestApp(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
