package feed

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/radman-monitor/pkg/radhaz"
	"github.com/NotCoffee418/radman-monitor/pkg/radman"
)

// ServerStatus is the radman_server "/" response. StandardName and
// FrequencyMhz describe the server's active conversion setup so collectors
// can mirror it.
type ServerStatus struct {
	Message      string  `json:"message"`
	Status       string  `json:"status"`
	StandardName string  `json:"standard_name,omitempty"`
	FrequencyMhz float64 `json:"frequency_mhz,omitempty"`
}

// SamplePayload is the wire form of one measurement sample as broadcast by
// radman_server. The absolute field levels are present only when the server
// has an active limit standard and a conversion frequency.
type SamplePayload struct {
	Timestamp string `json:"timestamp"`

	EFieldPercentage  float64 `json:"e_field_percentage"`
	HFieldPercentage  float64 `json:"h_field_percentage"`
	Unknown           string  `json:"unknown"`
	EFieldStatus      string  `json:"e_field_status"`
	HFieldStatus      string  `json:"h_field_status"`
	BatteryPercentage float64 `json:"battery_percentage"`

	// Converted levels in V/m and A/m
	EFieldVm *float64 `json:"e_field_vm,omitempty"`
	HFieldAm *float64 `json:"h_field_am,omitempty"`
}

// NewSamplePayload wraps a parsed sample for broadcast. When standard is
// non-nil and frequencyMhz is set, the percentage readings are additionally
// converted to absolute field levels at that frequency.
func NewSamplePayload(sample *radman.MeasurementSample, standard radhaz.Standard, frequencyMhz float64) *SamplePayload {
	payload := &SamplePayload{
		Timestamp:         sample.Timestamp,
		EFieldPercentage:  sample.EFieldPercentage,
		HFieldPercentage:  sample.HFieldPercentage,
		Unknown:           sample.Unknown,
		EFieldStatus:      sample.EFieldStatus,
		HFieldStatus:      sample.HFieldStatus,
		BatteryPercentage: sample.BatteryPercentage,
	}

	if standard == nil || frequencyMhz <= 0 {
		return payload
	}

	if efield, err := standard.PercentageToEField(sample.EFieldPercentage, frequencyMhz); err == nil {
		payload.EFieldVm = &efield
	} else {
		logrus.Debugf("E-field conversion failed: %v", err)
	}
	if hfield, err := standard.PercentageToHField(sample.HFieldPercentage, frequencyMhz); err == nil {
		payload.HFieldAm = &hfield
	} else {
		logrus.Debugf("H-field conversion failed: %v", err)
	}

	return payload
}

func (p *SamplePayload) ToJsonBytes() []byte {
	data, err := json.Marshal(p)
	if err != nil {
		logrus.Errorf("Could not marshal sample payload: %v", err)
		return []byte("{}")
	}
	return data
}

// SamplePayloadFromJsonBytes decodes a broadcast message, or returns nil
// when the bytes are not a valid payload.
func SamplePayloadFromJsonBytes(data []byte) *SamplePayload {
	var payload SamplePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return &payload
}
