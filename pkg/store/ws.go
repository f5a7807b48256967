package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/loomhq/loomsync/internal/codec"
	"github.com/loomhq/loomsync/internal/rand"
	"github.com/loomhq/loomsync/pkg/constants"
	"github.com/loomhq/loomsync/pkg/logger"
	logslog "github.com/loomhq/loomsync/pkg/logger/slog"
)

// DefaultDialer is the gorilla dialer used by WebSocketStore. Compression is
// enabled and both supported frame codecs are offered; the server picks one.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
	Subprotocols:      []string{"json", "cbor"},
}

// Option mutates a WebSocketStore during Connect.
type Option func(ws *WebSocketStore) error

// WebSocketStore implements Store over a websocket RPC connection.
//
// One goroutine reads frames and dispatches them: responses go to the
// per-request channel registered before the request was written,
// notifications go to the callback registered for their subscription id.
type WebSocketStore struct {
	baseURL     string
	marshaler   codec.Marshaler
	unmarshaler codec.Unmarshaler
	logger      logger.Logger

	conn     *gorilla.Conn
	connLock sync.Mutex

	// Timeout bounds each RPC after the request was written. Zero disables
	// the bound, leaving cancellation entirely to the caller's context.
	Timeout time.Duration
	Option  []Option

	responseChannels     map[string]chan RPCResponse
	responseChannelsLock sync.RWMutex

	listeners     map[string]func(json.RawMessage)
	listenersLock sync.RWMutex

	closeChan  chan struct{}
	closeError error
	closeOnce  sync.Once
}

// NewWebSocketStore builds a store client for the given ws:// or wss:// URL.
// Connect must be called before use.
func NewWebSocketStore(baseURL string) *WebSocketStore {
	return &WebSocketStore{
		baseURL:     baseURL,
		marshaler:   codec.JSONCodec{},
		unmarshaler: codec.JSONCodec{},
		logger:      logslog.New(slog.NewJSONHandler(os.Stdout, nil)),

		responseChannels: make(map[string]chan RPCResponse),
		listeners:        make(map[string]func(json.RawMessage)),

		Timeout:   constants.DefaultWSTimeout,
		closeChan: make(chan struct{}),
	}
}

// SetTimeout overrides the per-RPC timeout.
func (ws *WebSocketStore) SetTimeout(timeout time.Duration) *WebSocketStore {
	ws.Option = append(ws.Option, func(ws *WebSocketStore) error {
		ws.Timeout = timeout
		return nil
	})
	return ws
}

// Logger replaces the default stdout slog handler.
func (ws *WebSocketStore) Logger(l logger.Logger) *WebSocketStore {
	ws.logger = l
	return ws
}

// Codec replaces the frame codec. The store still expects values inside
// frames to be JSON documents.
func (ws *WebSocketStore) Codec(m codec.Marshaler, u codec.Unmarshaler) *WebSocketStore {
	ws.marshaler = m
	ws.unmarshaler = u
	return ws
}

// Connect dials the store and starts the read loop.
func (ws *WebSocketStore) Connect(ctx context.Context) error {
	if ws.baseURL == "" {
		return constants.ErrNoBaseURL
	}
	if ws.marshaler == nil {
		return constants.ErrNoMarshaler
	}
	if ws.unmarshaler == nil {
		return constants.ErrNoUnmarshaler
	}

	conn, res, err := DefaultDialer.DialContext(ctx, ws.baseURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", constants.ErrStoreUnavailable, err)
	}
	defer res.Body.Close()

	ws.conn = conn

	for _, option := range ws.Option {
		if err := option(ws); err != nil {
			return err
		}
	}

	go ws.readLoop()
	return nil
}

// Close sends a close frame and tears the connection down. The context
// bounds the close handshake only; local resources are released regardless.
func (ws *WebSocketStore) Close(ctx context.Context) error {
	ws.connLock.Lock()
	defer ws.connLock.Unlock()

	ws.closeOnce.Do(func() {
		ws.closeError = constants.ErrClosed
		close(ws.closeChan)
	})

	writeErr := make(chan error, 1)
	go func() {
		msg := gorilla.FormatCloseMessage(constants.CloseMessageCode, "")
		writeErr <- ws.conn.WriteMessage(gorilla.CloseMessage, msg)
	}()

	select {
	case err := <-writeErr:
		if err != nil {
			ws.logger.Error("failed to write close message", "error", err)
		}
	case <-ctx.Done():
	}

	return ws.conn.Close()
}

// Authenticate presents the bearer token for this session. Every later
// operation runs under the identity the server derives from it.
func (ws *WebSocketStore) Authenticate(ctx context.Context, token string) error {
	return ws.send(ctx, nil, methodAuth, token)
}

func (ws *WebSocketStore) Read(ctx context.Context, path string) (json.RawMessage, error) {
	var value json.RawMessage
	if err := ws.send(ctx, &value, methodGet, path); err != nil {
		return nil, err
	}
	if isJSONNull(value) {
		return nil, nil
	}
	return value, nil
}

func (ws *WebSocketStore) Write(ctx context.Context, path string, value any) error {
	return ws.send(ctx, nil, methodPut, path, value)
}

func (ws *WebSocketStore) PushKey(string) string {
	return NewPushKey()
}

// Subscribe registers a listener for path. The server sends the current
// value as the first notification, then the full value again on every
// change. Stop detaches the listener both locally and remotely.
func (ws *WebSocketStore) Subscribe(ctx context.Context, path string, fn func(json.RawMessage)) (*Subscription, error) {
	sub := newSubscription(path, nil)
	id := sub.ID.String()

	ws.listenersLock.Lock()
	ws.listeners[id] = fn
	ws.listenersLock.Unlock()

	if err := ws.send(ctx, nil, methodListen, path, id); err != nil {
		ws.listenersLock.Lock()
		delete(ws.listeners, id)
		ws.listenersLock.Unlock()
		return nil, err
	}

	sub.stop = func() {
		ws.listenersLock.Lock()
		delete(ws.listeners, id)
		ws.listenersLock.Unlock()

		// Detaching is best effort: the server drops the listener with the
		// connection anyway if this races a shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultWSTimeout)
		defer cancel()
		if err := ws.send(ctx, nil, methodUnlisten, id); err != nil {
			ws.logger.Warn("failed to detach listener", "path", path, "error", err)
		}
	}
	return sub, nil
}

func (ws *WebSocketStore) send(ctx context.Context, dest *json.RawMessage, method string, params ...any) error {
	if ws.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ws.Timeout)
		defer cancel()
	}

	select {
	case <-ws.closeChan:
		return ws.closeError
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	id := rand.NewRequestID(constants.RequestIDLength)
	request := &RPCRequest{
		ID:     id,
		Method: method,
		Params: params,
	}

	responseChan, err := ws.createResponseChannel(id)
	if err != nil {
		return err
	}
	defer ws.removeResponseChannel(id)

	if err := ws.write(request); err != nil {
		return fmt.Errorf("%w: %v", constants.ErrStoreUnavailable, err)
	}

	select {
	case <-ctx.Done():
		if ws.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s", constants.ErrTimeout, method, ws.baseURL)
		}
		return ctx.Err()
	case <-ws.closeChan:
		return ws.closeError
	case res, open := <-responseChan:
		if !open {
			return errors.New("response channel closed")
		}
		if res.Error != nil {
			return fmt.Errorf("%w: %v", constants.ErrStoreUnavailable, res.Error)
		}
		if dest != nil {
			*dest = res.Result
		}
		return nil
	}
}

func (ws *WebSocketStore) write(v any) error {
	data, err := ws.marshaler.Marshal(v)
	if err != nil {
		return err
	}

	ws.connLock.Lock()
	defer ws.connLock.Unlock()
	return ws.conn.WriteMessage(gorilla.TextMessage, data)
}

func (ws *WebSocketStore) readLoop() {
	for {
		select {
		case <-ws.closeChan:
			return
		default:
			_, data, err := ws.conn.ReadMessage()
			if err != nil {
				if ws.handleError(err) {
					return
				}
				continue
			}
			ws.handleFrame(data)
		}
	}
}

func (ws *WebSocketStore) handleError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		ws.closeOnce.Do(func() {
			ws.closeError = net.ErrClosed
			close(ws.closeChan)
		})
		return true
	}
	if gorilla.IsUnexpectedCloseError(err) {
		ws.closeOnce.Do(func() {
			ws.closeError = io.ErrClosedPipe
			close(ws.closeChan)
		})
		return true
	}

	ws.logger.Error(err.Error())
	return false
}

func (ws *WebSocketStore) handleFrame(data []byte) {
	var res RPCResponse
	if err := ws.unmarshaler.Unmarshal(data, &res); err != nil {
		ws.logger.Error("unparsable frame", "error", err)
		return
	}

	if res.ID != "" {
		responseChan, ok := ws.getResponseChannel(res.ID)
		if !ok {
			ws.logger.Error("response for unknown request", "id", res.ID)
			return
		}
		defer close(responseChan)
		responseChan <- res
		return
	}

	var notification Notification
	if err := ws.unmarshaler.Unmarshal(res.Result, &notification); err != nil {
		ws.logger.Error("unparsable notification", "error", err)
		return
	}

	ws.listenersLock.RLock()
	fn, ok := ws.listeners[notification.SubscriptionID]
	ws.listenersLock.RUnlock()
	if !ok {
		// Stop raced an in-flight notification; drop it.
		ws.logger.Debug("notification for detached listener", "subscription", notification.SubscriptionID)
		return
	}

	data = notification.Data
	if isJSONNull(data) {
		// Absent subtree; normalized so callers see the same nil a Read
		// would return.
		data = nil
	}
	fn(data)
}

func (ws *WebSocketStore) createResponseChannel(id string) (chan RPCResponse, error) {
	ws.responseChannelsLock.Lock()
	defer ws.responseChannelsLock.Unlock()

	if _, ok := ws.responseChannels[id]; ok {
		return nil, fmt.Errorf("%w: %v", constants.ErrIDInUse, id)
	}

	ch := make(chan RPCResponse, 1)
	ws.responseChannels[id] = ch

	return ch, nil
}

func (ws *WebSocketStore) removeResponseChannel(id string) {
	ws.responseChannelsLock.Lock()
	defer ws.responseChannelsLock.Unlock()
	delete(ws.responseChannels, id)
}

func (ws *WebSocketStore) getResponseChannel(id string) (chan RPCResponse, bool) {
	ws.responseChannelsLock.RLock()
	defer ws.responseChannelsLock.RUnlock()
	ch, ok := ws.responseChannels[id]
	return ch, ok
}

func isJSONNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

var _ Store = (*WebSocketStore)(nil)
