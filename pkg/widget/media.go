package widget

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MediaSession is the live transport audio frames are published into while
// recording, so real-time listeners hear the visitor as they speak.
type MediaSession interface {
	Connect(ctx context.Context, serverURL, token string) error
	PublishAudio(frame []byte) error
	Close() error
}

// WSMediaSession publishes audio over a websocket signaling connection
// authenticated with the issued session credential.
type WSMediaSession struct {
	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}

	writeTimeout time.Duration
	pingInterval time.Duration
}

// NewWSMediaSession 创建基于 WebSocket 的媒体会话。
func NewWSMediaSession() *WSMediaSession {
	return &WSMediaSession{
		writeTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
	}
}

// Connect dials the media server with the access token. The previous
// connection, if any, is closed first.
func (s *WSMediaSession) Connect(ctx context.Context, serverURL, token string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("parse media server url: %w", err)
	}
	query := u.Query()
	query.Set("access_token", token)
	u.RawQuery = query.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial media server: %w", err)
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		close(s.done)
	}
	s.conn = conn
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.keepAlive(conn, done)
	return nil
}

// PublishAudio sends one audio frame as a binary message.
func (s *WSMediaSession) PublishAudio(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("media session not connected")
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Close tears down the connection. Safe to call when not connected.
func (s *WSMediaSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := s.conn.Close()
	s.conn = nil
	close(s.done)
	return err
}

func (s *WSMediaSession) keepAlive(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.conn != conn {
				s.mu.Unlock()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			conn.WriteMessage(websocket.PingMessage, nil)
			s.mu.Unlock()
		}
	}
}
