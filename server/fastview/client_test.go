package fastview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

type testUpdate struct {
	Seq int `json:"seq"`
}

func TestClient(t *testing.T) {
	Convey("Given a client served over a test server", t, func() {
		updates := make(chan testUpdate, 8)
		messages := make(chan string, 8)
		synced := make(chan error, 1)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cli, err := NewClient[testUpdate](updates, func(_ context.Context, msg []byte) error {
				messages <- string(msg)
				return nil
			}, w, r)
			if err != nil {
				synced <- err
				return
			}
			synced <- cli.Sync(r.Context())
		}))
		defer srv.Close()

		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		So(err, ShouldBeNil)
		defer conn.Close()
		So(conn.SetReadDeadline(time.Now().Add(5*time.Second)), ShouldBeNil)

		Convey("Updates sent in a burst arrive as the first and the last", func() {
			for seq := 1; seq <= 5; seq++ {
				updates <- testUpdate{Seq: seq}
			}

			var first, last testUpdate
			So(conn.ReadJSON(&first), ShouldBeNil)
			So(first.Seq, ShouldEqual, 1)
			So(conn.ReadJSON(&last), ShouldBeNil)
			So(last.Seq, ShouldEqual, 5)
		})

		Convey("Client messages are handed to the callback", func() {
			So(conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"step"}`)), ShouldBeNil)
			select {
			case msg := <-messages:
				So(msg, ShouldEqual, `{"command":"step"}`)
			case <-time.After(2 * time.Second):
				So("no message", ShouldBeEmpty)
			}
		})

		Convey("Closing the updates ends the session without error", func() {
			close(updates)
			select {
			case err := <-synced:
				So(err, ShouldBeNil)
			case <-time.After(2 * time.Second):
				So("not synced", ShouldBeEmpty)
			}
			_, _, err := conn.ReadMessage()
			So(websocket.IsCloseError(err, websocket.CloseNormalClosure), ShouldBeTrue)
		})
	})
}

func TestResetTimer(t *testing.T) {
	Convey("Given a timer that fired without being received", t, func() {
		timer := time.NewTimer(time.Millisecond)
		defer timer.Stop()
		time.Sleep(20 * time.Millisecond)

		Convey("Rearming it drops the stale tick", func() {
			resetTimer(timer, 200*time.Millisecond)
			select {
			case <-timer.C:
				So("stale tick delivered", ShouldBeEmpty)
			case <-time.After(50 * time.Millisecond):
			}
			select {
			case <-timer.C:
			case <-time.After(2 * time.Second):
				So("rearmed timer never fired", ShouldBeEmpty)
			}
		})
	})

	Convey("Given a running timer", t, func() {
		timer := time.NewTimer(time.Hour)
		defer timer.Stop()

		Convey("Rearming it shortens the wait", func() {
			resetTimer(timer, time.Millisecond)
			select {
			case <-timer.C:
			case <-time.After(2 * time.Second):
				So("timer never fired", ShouldBeEmpty)
			}
		})
	})
}
