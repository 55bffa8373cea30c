package sessiondb

import (
	"time"

	"github.com/google/uuid"

	"github.com/NotCoffee418/radman-monitor/pkg/radman"
)

// SessionRecord is one measurement session: which device and probe hung off
// which port, when, and under which limit standard. EndedAt stays 0 while
// the session is open.
type SessionRecord struct {
	Uuid      string `db:"uuid"`
	Port      string `db:"port"`
	StartedAt int64  `db:"started_at"`
	EndedAt   int64  `db:"ended_at"`

	DeviceProductName     string `db:"device_product_name"`
	DeviceSerialNumber    string `db:"device_serial_number"`
	DeviceFirmwareVersion string `db:"device_firmware_version"`
	DeviceCalibrationDue  string `db:"device_calibration_due"`

	ProbeProductName    string `db:"probe_product_name"`
	ProbeSerialNumber   string `db:"probe_serial_number"`
	ProbeFieldType      string `db:"probe_field_type"`
	ProbeCalibrationDue string `db:"probe_calibration_due"`

	StandardName string  `db:"standard_name"`
	FrequencyMhz float64 `db:"frequency_mhz"`
}

// NewSessionRecord describes a measurement session starting now. device and
// probe may be nil when identity could not be fetched.
func NewSessionRecord(port string, device *radman.DeviceInfo, probe *radman.ProbeInfo, standardName string, frequencyMhz float64) *SessionRecord {
	record := &SessionRecord{
		Uuid:         uuid.NewString(),
		Port:         port,
		StartedAt:    time.Now().Unix(),
		StandardName: standardName,
		FrequencyMhz: frequencyMhz,
	}

	if device != nil {
		record.DeviceProductName = device.ProductName
		record.DeviceSerialNumber = device.SerialNumber
		record.DeviceFirmwareVersion = device.FirmwareVersion
		record.DeviceCalibrationDue = device.CalibrationDue
	}
	if probe != nil {
		record.ProbeProductName = probe.ProductName
		record.ProbeSerialNumber = probe.SerialNumber
		record.ProbeFieldType = probe.FieldType
		record.ProbeCalibrationDue = probe.CalibrationDue
	}

	return record
}
