// fastview publishes a stream of idempotent updates to a web client over a websocket and
// hands the client's own messages back to the caller.
package fastview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// The rate at which updates will be sent to the client, so as not to overburden.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// The number of pings to tolerate losing before concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// MessageFunc receives each message the client sends. Returning an error tears the client down.
type MessageFunc func(ctx context.Context, msg []byte) error

// Client publishes updates to one websocket peer. Updates are idempotent: when they arrive
// faster than the publish rate the intervening ones are dropped, and the next one sent carries
// the full client state. The last dropped update is flushed once the rate allows.
type Client[T any] struct {
	id        string
	updates   <-chan T
	onMessage MessageFunc
	ws        *websock
	rootCtx   context.Context
}

// NewClient upgrades the request to a websocket. onMessage may be nil, in which case client
// messages are read and discarded.
func NewClient[T any](
	updates <-chan T,
	onMessage MessageFunc,
	w http.ResponseWriter,
	r *http.Request,
) (*Client[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	ws.SetReadLimit(maxMessageSize)

	return &Client[T]{
		id:        uuid.NewString(),
		updates:   updates,
		onMessage: onMessage,
		ws:        NewWebSocket(ws),
		rootCtx:   r.Context(),
	}, nil
}

func (cli *Client[T]) ID() string { return cli.id }

// Sync runs the read, ping and publish routines until the peer leaves, ctx ends, or one of them
// fails. It returns nil on a normal disconnect.
func (cli *Client[T]) Sync(ctx context.Context) error {
	logger := log.WithField("client", cli.id)
	logger.Debug("client connected")
	defer cli.ws.Close()

	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	// Tie the client to the caller's lifetime as well as the request's, and unblock the pending
	// read once any routine stops.
	group.Go(func() (err error) {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-groupCtx.Done():
		}
		_ = cli.ws.Conn().UnderlyingConn().SetReadDeadline(time.Now())
		return
	})
	group.Go(func() error {
		return cli.readMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})

	err := group.Wait()
	if isClosure(err) || errors.Is(err, context.Canceled) || errors.Is(err, errUpdatesClosed) {
		err = nil
	}
	logger.WithError(err).Debug("client disconnected")
	return err
}

var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// errUpdatesClosed stops the client when its source is exhausted.
var errUpdatesClosed = errors.New("updates closed")

// pingPong runs the liveness check. It relies on readMessages running, since pong handlers are
// only invoked from reads.
func (cli *Client[T]) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *Client[T]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				err = fmt.Errorf("ping failed: %w", err)
			}
			return
		})
}

// readMessages forwards client messages to onMessage. Errors returned by websocket reads are
// permanent, hence any error must trigger full teardown.
func (cli *Client[T]) readMessages(ctx context.Context) error {
	for {
		var msg []byte
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, msg, readErr = ws.ReadMessage()
				return
			})
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if cli.onMessage != nil && len(msg) > 0 {
			if err = cli.onMessage(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (cli *Client[T]) publish(ctx context.Context) error {
	var (
		lastSync time.Time
		pending  *T
	)
	flush := time.NewTimer(pubResolution)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-cli.updates:
			if !ok {
				return errUpdatesClosed
			}
			// Hold updates received too quickly; only the newest survives.
			if time.Since(lastSync) < pubResolution {
				pending = &update
				resetTimer(flush, pubResolution-time.Since(lastSync))
				continue
			}
			pending = nil
			lastSync = time.Now()
			if err := cli.send(ctx, update); err != nil {
				return err
			}
		case <-flush.C:
			if pending == nil {
				continue
			}
			if wait := pubResolution - time.Since(lastSync); wait > 0 {
				resetTimer(flush, wait)
				continue
			}
			update := *pending
			pending = nil
			lastSync = time.Now()
			if err := cli.send(ctx, update); err != nil {
				return err
			}
		}
	}
}

// resetTimer rearms t, discarding a tick that fired but was never received.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (cli *Client[T]) send(ctx context.Context, update T) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (writeErr error) {
			if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
				return fmt.Errorf("failed to set deadline: %w", writeErr)
			}
			if writeErr = ws.WriteJSON(update); writeErr != nil {
				writeErr = fmt.Errorf("publish failed: %w", writeErr)
			}
			return
		})
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
