package router_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamMessage struct {
	Event    string `json:"event"`
	Action   string `json:"action"`
	Accepted bool   `json:"accepted"`
	Verdict  string `json:"verdict"`
	Code     string `json:"code"`
	Session  struct {
		Stage            string            `json:"stage"`
		AttemptID        string            `json:"attempt_id"`
		Answers          map[string]string `json:"answers"`
		Warning          bool              `json:"warning"`
		VisibilityLosses int               `json:"visibility_losses"`
		Status           string            `json:"status"`
	} `json:"session"`
}

func dialStream(t *testing.T, s *testServer, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(s.engine)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/session/stream?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

// readUntil reads stream messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(streamMessage) bool) streamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg streamMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		if match(msg) {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, action, optionID string) {
	t.Helper()
	req := map[string]string{"action": action}
	if optionID != "" {
		req["option_id"] = optionID
	}
	require.NoError(t, conn.WriteJSON(req))
}

func ackFor(action string) func(streamMessage) bool {
	return func(m streamMessage) bool { return m.Event == "ack" && m.Action == action }
}

// readAckAndSnapshot waits for the ack of action and for a pushed snapshot
// matching state. The two arrive in either order.
func readAckAndSnapshot(t *testing.T, conn *websocket.Conn, action string, state func(streamMessage) bool) (streamMessage, streamMessage) {
	t.Helper()
	var ack, snap *streamMessage
	readUntil(t, conn, func(m streamMessage) bool {
		switch {
		case ack == nil && ackFor(action)(m):
			ack = &m
		case snap == nil && m.Event == "snapshot" && state(m):
			snap = &m
		}
		return ack != nil && snap != nil
	})
	return *ack, *snap
}

func TestSessionStream_RejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	_, resp, err := dialStream(t, s, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionStream_ActionsAndSnapshots(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodPost, "/api/v1/session/start", `{"pack_id":"pack-1"}`, s.token)
	require.Equal(t, http.StatusOK, code)
	started := decode[snapshotJSON](t, env.Data)
	s.clk.Advance(5 * time.Second)

	conn, _, err := dialStream(t, s, s.token)
	require.NoError(t, err)
	defer conn.Close()

	first := readUntil(t, conn, func(m streamMessage) bool { return true })
	assert.Equal(t, "snapshot", first.Event)
	assert.Equal(t, "IN_PROGRESS", first.Session.Stage)
	assert.Equal(t, started.AttemptID, first.Session.AttemptID)

	send(t, conn, "select", "a")
	ack := readUntil(t, conn, ackFor("select"))
	assert.True(t, ack.Accepted)

	send(t, conn, "visibility_lost", "")
	ack, warned := readAckAndSnapshot(t, conn, "visibility_lost", func(m streamMessage) bool {
		return m.Session.Warning
	})
	assert.True(t, ack.Accepted)
	assert.Equal(t, "warn", ack.Verdict)
	assert.Equal(t, 1, warned.Session.VisibilityLosses)
	assert.Len(t, warned.Session.Answers, 1)

	send(t, conn, "dismiss_warning", "")
	ack = readUntil(t, conn, ackFor("dismiss_warning"))
	assert.True(t, ack.Accepted)

	send(t, conn, "ping", "")
	pong := readUntil(t, conn, func(m streamMessage) bool { return m.Event == "pong" })
	assert.Equal(t, "pong", pong.Event)

	send(t, conn, "teleport", "")
	failed := readUntil(t, conn, func(m streamMessage) bool { return m.Event == "error" })
	assert.Equal(t, "INVALID_PAYLOAD", failed.Code)

	send(t, conn, "visibility_lost", "")
	ack, cancelled := readAckAndSnapshot(t, conn, "visibility_lost", func(m streamMessage) bool {
		return m.Session.Stage == "FINISHED"
	})
	assert.Equal(t, "cancel", ack.Verdict)
	assert.Equal(t, "CANCELLED_CHEAT", cancelled.Session.Status)
}
