package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"mdpviz/grid_world"
	"mdpviz/models"
	"mdpviz/reinforcement"
	"mdpviz/server/fastview"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Time allowed for in-flight requests when the server is stopped.
const shutdownWait = 5 * time.Second

// Commander runs driver commands. *reinforcement.Driver satisfies it.
type Commander interface {
	Send(ctx context.Context, cmd reinforcement.Command) error
}

// StatsReader reports running training statistics. *reinforcement.Stats satisfies it.
type StatsReader interface {
	Snapshot() reinforcement.StatsSnapshot
}

// Server exposes the driver over http: the latest frame and stats can be polled, commands
// posted, and a websocket at /ws streams every update and accepts commands from the client.
//
// Routes:
//
//	GET  /frame            latest frame
//	GET  /stats            training statistics
//	POST /commands/{name}  step, reset, full-reset, play, pause, act (?action=up)
//	GET  /ws               websocket of Updates
type Server struct {
	addr      string
	commander Commander
	stats     StatsReader
	hub       *hub
	router    *mux.Router
}

// NewServer builds the routes. Frames are read once Serve is called.
func NewServer(
	addr string,
	commander Commander,
	frames <-chan models.Frame,
	stats StatsReader,
) *Server {
	server := &Server{
		addr:      addr,
		commander: commander,
		stats:     stats,
		hub:       newHub(frames, stats),
	}

	router := mux.NewRouter()
	router.HandleFunc("/frame", server.serveFrame).Methods(http.MethodGet)
	router.HandleFunc("/stats", server.serveStats).Methods(http.MethodGet)
	router.HandleFunc("/commands/{name}", server.serveCommand).Methods(http.MethodPost)
	router.HandleFunc("/ws", server.serveWebsocket)
	server.router = router
	return server
}

func (server *Server) Handler() http.Handler { return server.router }

// Serve listens until ctx is done, then shuts down gracefully. Websocket clients are tied to ctx
// and leave with it.
func (server *Server) Serve(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:        server.addr,
		Handler:     server.router,
		BaseContext: func(net.Listener) context.Context { return groupCtx },
	}

	group.Go(func() error {
		server.hub.run(groupCtx)
		return nil
	})
	group.Go(func() error {
		log.WithField("addr", server.addr).Info("serving")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return group.Wait()
}

func (server *Server) serveFrame(w http.ResponseWriter, r *http.Request) {
	update, ok := server.hub.latest()
	if !ok {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, update.Frame)
}

func (server *Server) serveStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, server.stats.Snapshot())
}

// commandRequest is the optional json body of a command post, and the websocket message format.
type commandRequest struct {
	Command string `json:"command,omitempty"`
	Action  string `json:"action,omitempty"`
}

func (server *Server) serveCommand(w http.ResponseWriter, r *http.Request) {
	req := commandRequest{
		Command: mux.Vars(r)["name"],
		Action:  r.URL.Query().Get("action"),
	}
	if r.Body != nil && r.ContentLength != 0 {
		var body commandRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("bad body: %v", err), http.StatusBadRequest)
			return
		}
		if body.Action != "" {
			req.Action = body.Action
		}
	}

	err := server.run(r.Context(), req)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, reinforcement.ErrUnknownCommand):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, grid_world.ErrInvalidAction):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.WithError(err).WithField("command", req.Command).Error("command failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// run converts a request into a driver command. The action is only parsed for act.
func (server *Server) run(ctx context.Context, req commandRequest) error {
	cmd := reinforcement.Command{Name: req.Command}
	if req.Command == reinforcement.CMD_ACT {
		action, err := grid_world.ParseAction(req.Action)
		if err != nil {
			return err
		}
		cmd.Action = int(action)
	}
	return server.commander.Send(ctx, cmd)
}

func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe := server.hub.subscribe()
	defer unsubscribe()

	cli, err := fastview.NewClient(updates, server.onMessage, w, r)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	if err = cli.Sync(r.Context()); err != nil {
		log.WithError(err).WithField("client", cli.ID()).Warn("client failed")
	}
}

// onMessage runs a client's command. Rejected commands are logged and the client stays
// connected; only a stopped driver ends the session.
func (server *Server) onMessage(ctx context.Context, msg []byte) error {
	var req commandRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		log.WithError(err).Warn("bad client message")
		return nil
	}
	err := server.run(ctx, req)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err != nil {
		log.WithError(err).WithField("command", req.Command).Warn("client command rejected")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("write response")
	}
}
