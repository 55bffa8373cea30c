// Records the live measurement feed to disk and registers sessions in the
// local database. Depends on the radman server being online.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/radman-monitor/pkg/config"
	"github.com/NotCoffee418/radman-monitor/pkg/feed"
	"github.com/NotCoffee418/radman-monitor/pkg/radhaz"
	"github.com/NotCoffee418/radman-monitor/pkg/radman"
	"github.com/NotCoffee418/radman-monitor/pkg/recorder"
	"github.com/NotCoffee418/radman-monitor/pkg/sessiondb"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := config.LoadCollectorConfig(); err != nil {
		logrus.Fatalf("Failed to load collector config: %v", err)
	}
	cfg := config.ActiveCollectorConfig

	// Initialize database
	sessiondb.InitializeDatabase()
	store := sessiondb.Open()

	scheme := "http"
	if cfg.TLSEnabled {
		scheme = "https"
	}

	// A recording opened before the server answers would miss the device
	// identity in its header, so wait for the host first.
	waitForServer(cfg.ServerHost)

	// Mirror the server's identity and conversion setup so the recording
	// header matches what the feed carries.
	var deviceInfo *radman.DeviceInfo
	var probeInfo *radman.ProbeInfo
	var status feed.ServerStatus
	fetchJson(fmt.Sprintf("%s://%s/device", scheme, cfg.ServerHost), &deviceInfo)
	fetchJson(fmt.Sprintf("%s://%s/probe", scheme, cfg.ServerHost), &probeInfo)
	fetchJson(fmt.Sprintf("%s://%s/", scheme, cfg.ServerHost), &status)

	standard := radhaz.ChooseStandard(status.StandardName)

	rec, err := recorder.Create(cfg.RecordingDir, deviceInfo, probeInfo, standard, status.FrequencyMhz)
	if err != nil {
		logrus.Fatalf("Could not open recording file: %v", err)
	}

	record := sessiondb.NewSessionRecord(cfg.ServerHost, deviceInfo, probeInfo, status.StandardName, status.FrequencyMhz)
	if err := store.InsertSession(record); err != nil {
		logrus.Errorf("Could not register session: %v", err)
	}

	// Subscribe to websocket with revive
	feed.StartListener(cfg.ServerHost, cfg.TLSEnabled, func(payload *feed.SamplePayload) {
		if err := rec.WriteSample(payload); err != nil {
			logrus.Errorf("Could not record sample: %v", err)
		}
	})

	// StartListener only returns once the server is gone for good.
	if err := store.CloseSession(record.Uuid, time.Now().Unix()); err != nil {
		logrus.Errorf("Could not close session: %v", err)
	}
	rec.Close()
	logrus.Infof("Recording ended: %s", rec.Path())
}

// waitForServer pings the server host until it responds or attempts run out.
// The websocket listener retries on its own; this only covers the boot-order
// race where the collector starts before the server host is reachable.
func waitForServer(host string) {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}

	for attempt := 0; attempt < 5; attempt++ {
		ok, rtt, err := ping(hostname)
		if ok {
			logrus.Debugf("Server host %s responded in %s", hostname, rtt)
			return
		}
		if err != nil {
			logrus.Debugf("Ping attempt %d failed: %v", attempt+1, err)
		}
		time.Sleep(2 * time.Second)
	}
	logrus.Warnf("Server host %s is not responding to pings, continuing anyway", hostname)
}

func ping(host string) (bool, time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, 0, err
	}

	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false) // UDP-based, no root needed

	if err := pinger.Run(); err != nil {
		return false, 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv > 0 {
		return true, stats.AvgRtt, nil
	}

	return false, 0, fmt.Errorf("no response")
}

// fetchJson decodes the server response into target. Failures are logged and
// tolerated; the feed still records raw percentages without identity data.
func fetchJson(url string, target any) {
	resp, err := http.Get(url)
	if err != nil {
		logrus.Warnf("Could not reach %s: %v", url, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logrus.Warnf("Unexpected status from %s: %s", url, resp.Status)
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		logrus.Warnf("Could not decode %s response: %v", url, err)
	}
}
