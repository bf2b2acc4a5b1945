package capability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// streamingTransport speaks JSON-RPC over a persistent websocket connection.
type streamingTransport struct {
	url    string
	header http.Header

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func newStreamingTransport(url string, header http.Header) *streamingTransport {
	return &streamingTransport{
		url:    url,
		header: header,
	}
}

func (t *streamingTransport) start() error {
	if t.conn != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", t.url, err)
	}

	t.conn = conn
	return nil
}

func (t *streamingTransport) write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.conn == nil {
		return fmt.Errorf("streaming transport not started")
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *streamingTransport) read() ([]byte, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("streaming transport not started")
	}
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *streamingTransport) close() error {
	if t.conn == nil {
		return nil
	}

	t.writeMu.Lock()
	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	return t.conn.Close()
}
