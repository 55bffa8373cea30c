// Package recorder appends measurement samples to headed CSV log files, one
// file per recording run.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/radman-monitor/pkg/feed"
	"github.com/NotCoffee418/radman-monitor/pkg/radhaz"
	"github.com/NotCoffee418/radman-monitor/pkg/radman"
)

type Recorder struct {
	file *os.File
	path string

	// Whether rows carry the converted e_field/h_field columns.
	withFieldData bool
}

// Create opens a timestamped log file in dir and writes the comment header
// block. standard may be nil, in which case only percentages are recorded.
func Create(dir string, deviceInfo *radman.DeviceInfo, probeInfo *radman.ProbeInfo, standard radhaz.Standard, frequencyMhz float64) (*Recorder, error) {
	filename := time.Now().UTC().Format("20060102-150405") + ".log"
	path := filepath.Join(dir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create log file: %w", err)
	}

	r := &Recorder{file: file, path: path}

	deviceJson, _ := json.Marshal(deviceInfo)
	probeJson, _ := json.Marshal(probeInfo)
	fmt.Fprintf(file, "# Device Info: %s\n", deviceJson)
	fmt.Fprintf(file, "# Probe Info: %s\n", probeJson)

	if standard != nil && frequencyMhz > 0 {
		efieldLimit, eErr := standard.EFieldLimit(frequencyMhz)
		hfieldLimit, hErr := standard.HFieldLimit(frequencyMhz)
		if eErr == nil && hErr == nil {
			fmt.Fprintf(file, "# Using RADHAZ Standard '%s', for %g MHz.\n", standard.Name(), frequencyMhz)
			fmt.Fprintf(file, "# Limits: %.3f V/m, %.3f A/m\n", efieldLimit, hfieldLimit)
			r.withFieldData = true
		}
	}

	if r.withFieldData {
		fmt.Fprintln(file, "timestamp,e_field_percent,h_field_percent,battery,e_field,h_field")
	} else {
		fmt.Fprintln(file, "timestamp,e_field_percent,h_field_percent,battery")
	}

	logrus.Infof("Opened log file: %s", path)
	return r, nil
}

// WriteSample appends one row. Rows hit the file immediately; there is no
// buffering to lose on an unclean exit.
func (r *Recorder) WriteSample(payload *feed.SamplePayload) error {
	var line string
	if r.withFieldData {
		line = fmt.Sprintf("%s,%.2f,%.2f,%g,%s,%s\n",
			payload.Timestamp,
			payload.EFieldPercentage,
			payload.HFieldPercentage,
			payload.BatteryPercentage,
			formatLevel(payload.EFieldVm),
			formatLevel(payload.HFieldAm))
	} else {
		line = fmt.Sprintf("%s,%.2f,%.2f,%g\n",
			payload.Timestamp,
			payload.EFieldPercentage,
			payload.HFieldPercentage,
			payload.BatteryPercentage)
	}

	logrus.Debugf("Logged line: %s", strings.TrimSpace(line))
	if _, err := r.file.WriteString(line); err != nil {
		return fmt.Errorf("could not write log line: %w", err)
	}
	return nil
}

func (r *Recorder) Path() string {
	return r.path
}

func (r *Recorder) Close() error {
	return r.file.Close()
}

func formatLevel(level *float64) string {
	if level == nil {
		return ""
	}
	return fmt.Sprintf("%.3f", *level)
}
