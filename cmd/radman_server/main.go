// RadMan server reads the monitor over its serial link and re-broadcasts
// every measurement sample to WebSocket clients.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/radman-monitor/pkg/config"
	"github.com/NotCoffee418/radman-monitor/pkg/feed"
	"github.com/NotCoffee418/radman-monitor/pkg/metrics"
	"github.com/NotCoffee418/radman-monitor/pkg/radhaz"
	"github.com/NotCoffee418/radman-monitor/pkg/radman"
)

var session *radman.Session

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Anyone may watch the live feed
	},
}

// ws clients for broadcasting live samples
var (
	wsClients                   = make(map[*websocket.Conn]bool)
	wsClientsMutex sync.RWMutex = sync.RWMutex{}
)

var (
	latestPayload      *feed.SamplePayload
	latestPayloadMutex sync.RWMutex
)

// sampleBroadcaster owns the conversion state for the sample path: the
// resolved limit standard and the configured frequency.
type sampleBroadcaster struct {
	standard     radhaz.Standard
	frequencyMhz float64
}

func (b *sampleBroadcaster) HandleSample(sample *radman.MeasurementSample) {
	payload := feed.NewSamplePayload(sample, b.standard, b.frequencyMhz)

	latestPayloadMutex.Lock()
	latestPayload = payload
	latestPayloadMutex.Unlock()

	metrics.ObserveSample(payload.EFieldPercentage, payload.HFieldPercentage, payload.BatteryPercentage)

	BroadcastToWebSockets(payload)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load config
	if err := config.LoadServerConfig(); err != nil {
		logrus.Fatalf("Failed to load server config: %v", err)
	}
	cfg := config.ActiveServerConfig

	var err error
	session, err = radman.Connect(cfg.SerialDevice, cfg.Baudrate)
	if err != nil {
		logrus.Fatalf("Could not connect to RadMan: %v", err)
	}

	broadcaster := &sampleBroadcaster{
		standard:     radhaz.ChooseStandard(session.ProbeInfo.StandardName),
		frequencyMhz: cfg.FrequencyMhz,
	}
	if broadcaster.standard != nil && cfg.FrequencyMhz > 0 {
		logrus.Infof("Using RADHAZ Standard '%s', for %g MHz.", broadcaster.standard.Name(), cfg.FrequencyMhz)
	} else {
		logrus.Info("Broadcasting raw percentages without field conversion")
	}

	if err := session.StartMeasurement(broadcaster.HandleSample); err != nil {
		logrus.Fatalf("Could not start measurement: %v", err)
	}

	// Put the device back to idle on shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		logrus.Info("Shutting down, stopping measurement...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := session.Close(ctx); err != nil {
			logrus.Errorf("Could not close session: %v", err)
		}
		os.Exit(0)
	}()

	if cfg.MetricsAddress != "" {
		metrics.Serve(cfg.MetricsAddress)
	}

	// Setup HTTP handlers
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		status := feed.ServerStatus{
			Message:      "RadMan Monitor API",
			Status:       "running",
			FrequencyMhz: broadcaster.frequencyMhz,
		}
		if broadcaster.standard != nil {
			status.StandardName = broadcaster.standard.Name()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	http.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		latestPayloadMutex.RLock()
		payload := latestPayload
		latestPayloadMutex.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if payload == nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "No samples received yet",
			})
			return
		}

		json.NewEncoder(w).Encode(payload)
	})

	http.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session.DeviceInfo)
	})

	http.HandleFunc("/probe", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session.ProbeInfo)
	})

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.Errorf("WebSocket upgrade error: %v", err)
			return
		}

		AddWebSocketClient(conn)

		// Send the current sample immediately if available
		latestPayloadMutex.RLock()
		payload := latestPayload
		latestPayloadMutex.RUnlock()
		if payload != nil {
			conn.WriteMessage(websocket.TextMessage, payload.ToJsonBytes())
		}

		// Keep connection alive
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				RemoveWebSocketClient(conn)
				break
			}
		}
	})

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)

	logrus.Infof("Starting RadMan server on %s", listener)
	logrus.Fatal(http.ListenAndServe(listener, nil))
}

func BroadcastToWebSockets(payload *feed.SamplePayload) {
	wsClientsMutex.RLock()
	clients := make([]*websocket.Conn, 0, len(wsClients))
	for client := range wsClients {
		clients = append(clients, client)
	}
	wsClientsMutex.RUnlock()

	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, payload.ToJsonBytes()); err != nil {
			RemoveWebSocketClient(client)
		}
	}
}

func AddWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	wsClients[conn] = true
	metrics.WebsocketClients.Set(float64(len(wsClients)))
	wsClientsMutex.Unlock()
}

func RemoveWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	delete(wsClients, conn)
	metrics.WebsocketClients.Set(float64(len(wsClients)))
	wsClientsMutex.Unlock()
	conn.Close()
}
