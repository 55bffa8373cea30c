package radman

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrProtocol wraps replies that do not match the device's documented format.
	ErrProtocol = errors.New("unexpected reply from device")
	// ErrReadTimeout is returned when no full line arrives within the read deadline.
	ErrReadTimeout = errors.New("read timed out")
)

// Mode is the session state. The device accepts synchronous commands in
// ModeIdle and ModeRemote; while ModeMeasuring it streams measurement lines
// and the synchronous command path is disabled.
type Mode int32

const (
	ModeIdle Mode = iota
	ModeRemote
	ModeMeasuring
)

// SampleHandler receives every parsed measurement sample, inline on the
// reader goroutine and in arrival order. A slow handler delays the next read.
type SampleHandler func(sample *MeasurementSample)

// Session drives a Narda RadMan 2XT over its serial command protocol.
type Session struct {
	transport Transport
	mode      atomic.Int32
	loopDone  chan struct{}

	latestSample *MeasurementSample
	sampleMutex  sync.RWMutex

	DeviceInfo *DeviceInfo
	ProbeInfo  *ProbeInfo
}

// DeviceInfo is the DEVICE_INFO? reply, one field per comma-separated column.
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	ProductionId    string `json:"production_id"`
	SerialNumber    string `json:"serial_number"`
	DeviceId        string `json:"device_id"`
	DeviceType      string `json:"device_type"`
	FirmwareVersion string `json:"firmware_version"`
	CalibrationDate string `json:"calibration_date"`
	CalibrationDue  string `json:"calibration_due"`
	NumOptions      string `json:"num_options"`
	OptionsName     string `json:"options_name"`
}

// ProbeInfo is the Probe_INFO? reply. The first six columns are mandatory;
// the frequency ranges and shaping columns are best effort and stay nil or
// empty when the probe does not report them.
type ProbeInfo struct {
	ProductName     string `json:"product_name"`
	ProductionId    string `json:"production_id"`
	SerialNumber    string `json:"serial_number"`
	CalibrationDate string `json:"calibration_date"`
	CalibrationDue  string `json:"calibration_due"`
	FieldType       string `json:"field_type"`

	EFieldLowerFrequencyHz *float64 `json:"e_field_lower_frequency_hz,omitempty"`
	EFieldUpperFrequencyHz *float64 `json:"e_field_upper_frequency_hz,omitempty"`
	HFieldLowerFrequencyHz *float64 `json:"h_field_lower_frequency_hz,omitempty"`
	HFieldUpperFrequencyHz *float64 `json:"h_field_upper_frequency_hz,omitempty"`
	Shaped                 string   `json:"shaped,omitempty"`
	StandardName           string   `json:"standard_name,omitempty"`
}

// MeasurementSample is one parsed line of the continuous measurement stream.
// E and H field values are fractions of the active limit standard (the device
// reports them multiplied by 100); battery is a plain percentage as sent.
type MeasurementSample struct {
	Timestamp string `json:"timestamp"`

	EFieldPercentage float64 `json:"e_field_percentage"`
	HFieldPercentage float64 `json:"h_field_percentage"`
	Unknown          string  `json:"unknown"`
	EFieldStatus     string  `json:"e_field_status"`
	HFieldStatus     string  `json:"h_field_status"`

	BatteryPercentage float64 `json:"battery_percentage"`
}
