package feed

import (
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Manage the websocket connection and call handlePayload for each sample
// broadcast by radman_server. Blocks until the connection is given up on or
// an interrupt arrives.
func StartListener(host string, secure bool, handlePayload func(payload *SamplePayload)) {
	const (
		maxRetries     = 10
		baseRetryDelay = 2 * time.Second
		maxRetryDelay  = 60 * time.Second
	)

	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/ws"}

	// Channel to handle interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	retryCount := 0

	for {
		select {
		case <-interrupt:
			logrus.Info("Interrupt received, shutting down...")
			return
		default:
			// Calculate retry delay with exponential backoff
			retryDelay := time.Duration(1<<retryCount) * baseRetryDelay
			if retryDelay > maxRetryDelay {
				retryDelay = maxRetryDelay
			}

			if retryCount > 0 {
				logrus.Infof("Retrying connection in %v... (attempt %d/%d)", retryDelay, retryCount+1, maxRetries)
				select {
				case <-time.After(retryDelay):
				case <-interrupt:
					logrus.Info("Interrupt received during retry wait, shutting down...")
					return
				}
			}

			logrus.Infof("Connecting to %s", u.String())

			dialer := websocket.DefaultDialer
			dialer.HandshakeTimeout = 10 * time.Second
			c, _, err := dialer.Dial(u.String(), nil)
			if err != nil {
				logrus.Errorf("Connection failed: %v", err)
				retryCount++
				if retryCount >= maxRetries {
					logrus.Errorf("Max retries (%d) reached. Giving up.", maxRetries)
					return
				}
				continue
			}

			logrus.Info("Connected! Accepting measurement samples.")

			// Reset retry count on successful connection
			retryCount = 0

			// Handle the connection until it breaks or we're interrupted
			connectionBroken := handleConnection(c, interrupt, handlePayload)

			c.Close()

			if !connectionBroken {
				// Clean shutdown requested
				return
			}

			logrus.Warn("Connection lost, will retry...")
		}
	}
}

func handleConnection(
	c *websocket.Conn,
	interrupt chan os.Signal,
	handlePayload func(payload *SamplePayload),
) bool {
	done := make(chan struct{})

	// Samples arrive about once per second; a silent connection is dead.
	c.SetReadDeadline(time.Now().Add(10 * time.Second))

	// Goroutine to read messages
	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Errorf("WebSocket error: %v", err)
				} else {
					logrus.Infof("Connection closed: %v", err)
				}
				return
			}

			// Reset read deadline on successful message
			c.SetReadDeadline(time.Now().Add(10 * time.Second))

			// We only expect SamplePayload messages
			if messageType == websocket.TextMessage {
				if payload := SamplePayloadFromJsonBytes(message); payload != nil {
					handlePayload(payload)
				} else {
					logrus.Errorf("Failed to parse sample payload: %s", string(message))
				}
			} else {
				logrus.Warnf("Received unexpected message type: %d", messageType)
			}
		}
	}()

	// Goroutine to send periodic pings to keep connection alive
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					logrus.Errorf("Failed to send ping: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Wait for connection to break or interrupt signal
	select {
	case <-done:
		// Connection broke
		return true
	case <-interrupt:
		logrus.Info("Interrupt received, closing connection...")

		// Send close message
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			logrus.Errorf("Error sending close message: %v", err)
		}

		// Wait for close confirmation or timeout
		select {
		case <-done:
		case <-time.After(time.Second):
		}

		// Clean shutdown
		return false
	}
}
