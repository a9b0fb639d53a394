package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mdpviz/grid_world"
	"mdpviz/models"
	"mdpviz/reinforcement"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver records commands and rejects unknown names and out of range actions as the driver does.
type fakeDriver struct {
	mu   sync.Mutex
	cmds []reinforcement.Command
}

func (fd *fakeDriver) Send(ctx context.Context, cmd reinforcement.Command) error {
	switch cmd.Name {
	case reinforcement.CMD_STEP, reinforcement.CMD_RESET, reinforcement.CMD_FULL_RESET,
		reinforcement.CMD_PLAY, reinforcement.CMD_PAUSE:
	case reinforcement.CMD_ACT:
		if cmd.Action < 0 || cmd.Action >= 4 {
			return fmt.Errorf("%w: %d", grid_world.ErrInvalidAction, cmd.Action)
		}
	default:
		return fmt.Errorf("%w: %q", reinforcement.ErrUnknownCommand, cmd.Name)
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.cmds = append(fd.cmds, cmd)
	return nil
}

func (fd *fakeDriver) sent() []reinforcement.Command {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return append([]reinforcement.Command(nil), fd.cmds...)
}

type fixedStats struct{}

func (fixedStats) Snapshot() reinforcement.StatsSnapshot {
	return reinforcement.StatsSnapshot{Episodes: 3, Steps: 42, TotalReward: -1.5}
}

type fixture struct {
	server *Server
	driver *fakeDriver
	frames chan models.Frame
	http   *httptest.Server
	cancel context.CancelFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		driver: &fakeDriver{},
		frames: make(chan models.Frame, 1),
	}
	fx.server = NewServer("", fx.driver, fx.frames, fixedStats{})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		fx.server.hub.run(ctx)
	}()
	fx.http = httptest.NewServer(fx.server.Handler())
	fx.cancel = cancel

	t.Cleanup(func() {
		cancel()
		<-stopped
		fx.http.Close()
	})
	return fx
}

// publish sends a frame and waits for the hub to take it.
func (fx *fixture) publish(t *testing.T, seq int64) {
	t.Helper()
	fx.frames <- models.Frame{RunID: "run", Seq: seq, Width: 2, Height: 1}
	require.Eventually(t, func() bool {
		update, ok := fx.server.hub.latest()
		return ok && update.Frame.Seq == seq
	}, time.Second, 5*time.Millisecond)
}

func (fx *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(fx.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestFrameAndStats(t *testing.T) {
	fx := newFixture(t)

	t.Run("No frame before the driver publishes", func(t *testing.T) {
		resp, err := http.Get(fx.http.URL + "/frame")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("The latest frame is served", func(t *testing.T) {
		fx.publish(t, 1)
		fx.publish(t, 2)

		resp, err := http.Get(fx.http.URL + "/frame")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var frame models.Frame
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&frame))
		assert.Equal(t, int64(2), frame.Seq)
		assert.Equal(t, "run", frame.RunID)
		assert.Equal(t, 2, frame.Width)
	})

	t.Run("Stats are served", func(t *testing.T) {
		resp, err := http.Get(fx.http.URL + "/stats")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var snap reinforcement.StatsSnapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		assert.Equal(t, int64(3), snap.Episodes)
		assert.Equal(t, int64(42), snap.Steps)
		assert.Equal(t, -1.5, snap.TotalReward)
	})

	t.Run("Frames are read only", func(t *testing.T) {
		resp := fx.post(t, "/frame", "")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestCommands(t *testing.T) {
	fx := newFixture(t)

	t.Run("Simple commands are forwarded", func(t *testing.T) {
		for _, name := range []string{"step", "play", "pause", "reset", "full-reset"} {
			resp := fx.post(t, "/commands/"+name, "")
			assert.Equal(t, http.StatusNoContent, resp.StatusCode, name)
		}
		sent := fx.driver.sent()
		require.Len(t, sent, 5)
		assert.Equal(t, reinforcement.CMD_STEP, sent[0].Name)
		assert.Equal(t, reinforcement.CMD_FULL_RESET, sent[4].Name)
	})

	t.Run("Act takes an action by name, index or body", func(t *testing.T) {
		before := len(fx.driver.sent())
		assert.Equal(t, http.StatusNoContent, fx.post(t, "/commands/act?action=down", "").StatusCode)
		assert.Equal(t, http.StatusNoContent, fx.post(t, "/commands/act?action=0", "").StatusCode)
		assert.Equal(t, http.StatusNoContent, fx.post(t, "/commands/act", `{"action":"up"}`).StatusCode)

		sent := fx.driver.sent()[before:]
		require.Len(t, sent, 3)
		assert.Equal(t, int(grid_world.Down), sent[0].Action)
		assert.Equal(t, int(grid_world.Left), sent[1].Action)
		assert.Equal(t, int(grid_world.Up), sent[2].Action)
	})

	t.Run("Bad actions are rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, fx.post(t, "/commands/act?action=sideways", "").StatusCode)
		assert.Equal(t, http.StatusBadRequest, fx.post(t, "/commands/act?action=7", "").StatusCode)
		assert.Equal(t, http.StatusBadRequest, fx.post(t, "/commands/act", `{"action":`).StatusCode)
	})

	t.Run("Unknown commands are not found", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, fx.post(t, "/commands/jump", "").StatusCode)
	})
}

func TestWebsocket(t *testing.T) {
	fx := newFixture(t)
	fx.publish(t, 1)

	url := "ws" + strings.TrimPrefix(fx.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	t.Run("A new client receives the latest update", func(t *testing.T) {
		var update Update
		require.NoError(t, conn.ReadJSON(&update))
		assert.Equal(t, int64(1), update.Frame.Seq)
		assert.Equal(t, int64(42), update.Stats.Steps)
	})

	t.Run("Later frames are pushed", func(t *testing.T) {
		fx.publish(t, 2)
		var update Update
		require.NoError(t, conn.ReadJSON(&update))
		assert.Equal(t, int64(2), update.Frame.Seq)
	})

	t.Run("Client messages become commands", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(commandRequest{Command: "jump"}))
		require.NoError(t, conn.WriteJSON(commandRequest{Command: "act", Action: "right"}))
		require.Eventually(t, func() bool {
			return len(fx.driver.sent()) == 1
		}, time.Second, 5*time.Millisecond)
		sent := fx.driver.sent()
		assert.Equal(t, reinforcement.CMD_ACT, sent[0].Name)
		assert.Equal(t, int(grid_world.Right), sent[0].Action)
	})

	t.Run("Stopping the hub disconnects the client", func(t *testing.T) {
		fx.cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		require.Eventually(t, func() bool {
			return fx.server.hub.subscribers() == 0
		}, time.Second, 5*time.Millisecond)
	})
}

func TestHub(t *testing.T) {
	frames := make(chan models.Frame)
	h := newHub(frames, fixedStats{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		h.run(ctx)
	}()

	t.Run("A slow subscriber only keeps the newest update", func(t *testing.T) {
		sub, unsubscribe := h.subscribe()
		defer unsubscribe()
		for seq := int64(1); seq <= 3; seq++ {
			frames <- models.Frame{Seq: seq}
		}
		require.Eventually(t, func() bool {
			update, ok := h.latest()
			return ok && update.Frame.Seq == 3
		}, time.Second, 5*time.Millisecond)

		update := <-sub
		assert.Equal(t, int64(3), update.Frame.Seq)
		select {
		case extra := <-sub:
			t.Fatalf("unexpected update %d", extra.Frame.Seq)
		default:
		}
	})

	t.Run("Unsubscribing closes the channel once", func(t *testing.T) {
		sub, unsubscribe := h.subscribe()
		assert.Equal(t, 1, h.subscribers())
		<-sub
		unsubscribe()
		unsubscribe()
		_, ok := <-sub
		assert.False(t, ok)
		assert.Equal(t, 0, h.subscribers())
	})

	t.Run("A closed frame source closes subscribers", func(t *testing.T) {
		sub, _ := h.subscribe()
		<-sub
		close(frames)
		<-stopped
		_, ok := <-sub
		assert.False(t, ok)

		late, _ := h.subscribe()
		_, ok = <-late
		assert.False(t, ok)
	})
}
