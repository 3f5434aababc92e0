package websocketPkg

import (
	"EmotionLens/internal/entity"
	"EmotionLens/pkg/detector"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"os"
	"sync"
	"time"
)

const defaultEmotionURL = "ws://localhost:8000/api/v1/emotion/ws"

var ErrServiceReported = errors.New("emotion service reported an error")

type IWebsocket interface {
	Name() string
	Detect(ctx context.Context, frame []byte) ([]entity.DetectedFace, error)
	IsConnected() bool
	Reconnect() error
	Close()
}

type webSocketClient struct {
	url          string
	log          *logrus.Logger
	conn         *websocket.Conn
	mu           sync.Mutex
	callMu       sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// serviceFace is one entry of the AI service reply, which follows the DeepFace analyze format.
type serviceFace struct {
	Region struct {
		X int `json:"x"`
		Y int `json:"y"`
		W int `json:"w"`
		H int `json:"h"`
	} `json:"region"`
	Emotion         map[string]float64 `json:"emotion"`
	DominantEmotion string             `json:"dominant_emotion"`
}

type serviceReply struct {
	Faces []serviceFace `json:"faces"`
	Error string        `json:"error"`
}

func NewAIWebSocketClient(logger *logrus.Logger) IWebsocket {
	url := os.Getenv("AI_EMOTION_DETECTION_URL")
	if url == "" {
		url = defaultEmotionURL
	}

	client := newClient(url, logger)
	go client.connectInBackground()

	return client
}

func newClient(url string, logger *logrus.Logger) *webSocketClient {
	return &webSocketClient{
		url:          url,
		log:          logger,
		pingInterval: 30 * time.Second,
		readTimeout:  10 * time.Second,
		writeTimeout: 5 * time.Second,
	}
}

func (c *webSocketClient) Name() string {
	return "websocket"
}

func (c *webSocketClient) connectInBackground() {
	if err := c.Reconnect(); err != nil {
		c.log.Warnf("Initial connection to emotion service failed: %v. Will retry on demand.", err)
		return
	}
	c.log.Infof("Successfully connected to emotion service at %s", c.url)
}

func (c *webSocketClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *webSocketClient) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.log.Debugf("Connecting to emotion service at %s", c.url)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout)); err != nil {
			c.log.Warnf("Error sending pong: %v", err)
		}
		return nil
	})

	c.conn = conn
	go c.keepAlive(conn)

	return nil
}

func (c *webSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *webSocketClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout)); err != nil {
			c.log.Warnf("Ping failed for emotion service, marking connection as dead: %v", err)
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}

		c.mu.Unlock()
	}
}

func (c *webSocketClient) getConnection() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, errors.New("not connected to emotion service")
	}
	return c.conn, nil
}

func (c *webSocketClient) dropConnection(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

// Detect sends one JPEG frame and waits for the matching reply. Calls are
// serialised because the service answers frames in order on a single connection.
func (c *webSocketClient) Detect(ctx context.Context, frame []byte) ([]entity.DetectedFace, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	conn, err := c.getConnection()
	if err != nil {
		if err := c.Reconnect(); err != nil {
			return nil, fmt.Errorf("cannot connect to emotion service: %w", err)
		}
		conn, err = c.getConnection()
		if err != nil {
			return nil, err
		}
	}

	writeDeadline := deadline(ctx, c.writeTimeout)
	readDeadline := deadline(ctx, c.readTimeout)

	conn.SetWriteDeadline(writeDeadline)
	c.log.Debugf("Sending emotion frame of size: %d bytes", len(frame))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.dropConnection(conn)
		return nil, fmt.Errorf("error sending emotion frame: %w", err)
	}

	conn.SetReadDeadline(readDeadline)
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.dropConnection(conn)
		return nil, fmt.Errorf("error reading emotion message: %w", err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	faces, err := parseEmotionReply(message)
	if err != nil {
		return nil, err
	}

	c.log.Debugf("Emotion service returned %d face(s)", len(faces))
	return faces, nil
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

// parseEmotionReply accepts either a bare array of faces, an object with a
// "faces" array, or an error object.
func parseEmotionReply(message []byte) ([]entity.DetectedFace, error) {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) == 0 {
		return nil, errors.New("empty reply from emotion service")
	}

	var raw []serviceFace
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("error unmarshaling emotion response: %w", err)
		}
	} else {
		var reply serviceReply
		if err := json.Unmarshal(trimmed, &reply); err != nil {
			return nil, fmt.Errorf("error unmarshaling emotion response: %w", err)
		}
		if reply.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrServiceReported, reply.Error)
		}
		raw = reply.Faces
	}

	faces := make([]entity.DetectedFace, 0, len(raw))
	for _, f := range raw {
		faces = append(faces, entity.DetectedFace{
			BoundingBox: entity.BoundingBox{
				X:      f.Region.X,
				Y:      f.Region.Y,
				Width:  f.Region.W,
				Height: f.Region.H,
			},
			EmotionScores: detector.NormalizeScores(f.Emotion),
		})
	}

	return faces, nil
}
