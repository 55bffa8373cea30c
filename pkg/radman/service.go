package radman

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/radman-monitor/pkg/metrics"
)

// How long the device may keep transmitting after MEAS_STOP_CIB before the
// port is safe to close.
const settleDelay = 5 * time.Second

// Connect opens the serial port and queries the device for its identity.
// A port that cannot be opened is fatal; there is no retry.
func Connect(device string, baudrate uint) (*Session, error) {
	logrus.Infof("Attempting to connect to RadMan on %s, at %d baud...", device, baudrate)

	transport, err := openSerialTransport(device, baudrate)
	if err != nil {
		return nil, err
	}

	return newSession(transport)
}

// newSession runs the identity queries against an already open transport.
func newSession(transport Transport) (*Session, error) {
	s := &Session{transport: transport}

	deviceReply, err := s.Command("DEVICE_INFO?")
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("device info query failed: %w", err)
	}
	s.DeviceInfo, err = parseDeviceInfo(deviceReply)
	if err != nil {
		transport.Close()
		return nil, err
	}

	probeReply, err := s.Command("Probe_INFO?")
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("probe info query failed: %w", err)
	}
	probeInfo, warnings, err := parseProbeInfo(probeReply)
	if err != nil {
		transport.Close()
		return nil, err
	}
	for _, warning := range warnings {
		logrus.Warnf("Probe info: %s", warning)
	}
	s.ProbeInfo = probeInfo

	logrus.Infof("Connected to %s (serial %s, firmware %s)",
		s.DeviceInfo.ProductName, s.DeviceInfo.SerialNumber, s.DeviceInfo.FirmwareVersion)

	return s, nil
}

// Mode reports the current session state.
func (s *Session) Mode() Mode {
	return Mode(s.mode.Load())
}

// Command sends a command and returns the device's reply. While a
// measurement is running the synchronous path is disabled: nothing is
// written and an empty reply is returned, so ad-hoc commands never collide
// with the measurement stream.
func (s *Session) Command(command string) (string, error) {
	if s.Mode() == ModeMeasuring {
		return "", nil
	}

	if err := s.transport.WriteCommand(command); err != nil {
		return "", err
	}

	return s.transport.ReadLine()
}

// send issues a command the device does not reply to.
func (s *Session) send(command string) error {
	return s.transport.WriteCommand(command)
}

// SetRemoteMode switches the device in or out of remote mode. The device
// only accepts measurement commands while remote.
func (s *Session) SetRemoteMode(enabled bool) error {
	command := "REMOTE OFF"
	if enabled {
		command = "REMOTE ON"
	}

	reply, err := s.Command(command)
	if err != nil {
		return fmt.Errorf("%s failed: %w", command, err)
	}
	if reply != "0;" {
		return fmt.Errorf("%w: %s refused with %q", ErrProtocol, command, reply)
	}

	if enabled {
		s.mode.Store(int32(ModeRemote))
	} else {
		s.mode.Store(int32(ModeIdle))
	}
	return nil
}

// StartMeasurement puts the device in remote mode and starts the continuous
// measurement stream. Samples are delivered to handle inline from a single
// reader goroutine. Calling it while a measurement is already running does
// nothing.
func (s *Session) StartMeasurement(handle SampleHandler) error {
	if s.Mode() == ModeMeasuring {
		return nil
	}

	if err := s.SetRemoteMode(true); err != nil {
		return fmt.Errorf("could not enter remote mode: %w", err)
	}

	if err := s.send("MEAS_START_CIB"); err != nil {
		return fmt.Errorf("could not start measurement: %w", err)
	}

	s.mode.Store(int32(ModeMeasuring))
	s.loopDone = make(chan struct{})
	go s.measurementLoop(handle)

	return nil
}

// StopMeasurement halts the continuous stream. The reader loop observes the
// mode change on its next read tick and exits.
func (s *Session) StopMeasurement() error {
	if s.Mode() != ModeMeasuring {
		return nil
	}

	s.mode.Store(int32(ModeIdle))

	if err := s.send("MEAS_STOP_CIB"); err != nil {
		return fmt.Errorf("could not stop measurement: %w", err)
	}
	return nil
}

// GetLatestSample returns the most recent parsed sample, or nil before the
// first line arrives.
func (s *Session) GetLatestSample() *MeasurementSample {
	s.sampleMutex.RLock()
	defer s.sampleMutex.RUnlock()
	return s.latestSample
}

// Close stops any running measurement and closes the transport. The device
// keeps transmitting for a moment after MEAS_STOP_CIB, so a running session
// waits a settle period before the port closes; ctx bounds that wait.
func (s *Session) Close(ctx context.Context) error {
	wasMeasuring := s.Mode() == ModeMeasuring

	if err := s.StopMeasurement(); err != nil {
		logrus.Warnf("Could not stop measurement cleanly: %v", err)
	}

	if wasMeasuring {
		settle := time.NewTimer(settleDelay)
		defer settle.Stop()
		select {
		case <-settle.C:
		case <-ctx.Done():
			logrus.Debugf("Settle wait canceled: %v", ctx.Err())
		}
	}

	return s.transport.Close()
}

// measurementLoop reads measurement lines until the session leaves
// ModeMeasuring. Read timeouts are the cancellation poll; malformed lines
// are dropped and logged. Repeated transport failures stop the loop.
func (s *Session) measurementLoop(handle SampleHandler) {
	defer close(s.loopDone)

	// Tolerance before the loop gives up on the transport.
	consecutiveErrors := 0
	maxErrors := 10

	for s.Mode() == ModeMeasuring {
		line, err := s.transport.ReadLine()
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				continue
			}
			consecutiveErrors++
			metrics.ReadErrors.Inc()
			logrus.Errorf("Error reading measurement line (%d/%d): %v", consecutiveErrors, maxErrors, err)
			if consecutiveErrors >= maxErrors {
				logrus.Errorf("Too many consecutive read errors, stopping measurement loop")
				s.mode.Store(int32(ModeIdle))
				return
			}
			continue
		}
		consecutiveErrors = 0

		sample, err := parseMeasurementLine(line)
		if err != nil {
			metrics.LinesDropped.Inc()
			logrus.Errorf("Could not parse measurement line %q: %v", line, err)
			continue
		}
		metrics.LinesParsed.Inc()

		s.sampleMutex.Lock()
		s.latestSample = sample
		s.sampleMutex.Unlock()

		handle(sample)
	}
}

func parseDeviceInfo(reply string) (*DeviceInfo, error) {
	fields := strings.Split(strings.TrimSuffix(reply, ";"), ",")
	if len(fields) != 10 {
		return nil, fmt.Errorf("%w: expected 10 device info fields, got %d", ErrProtocol, len(fields))
	}

	return &DeviceInfo{
		ProductName:     fields[0],
		ProductionId:    fields[1],
		SerialNumber:    fields[2],
		DeviceId:        fields[3],
		DeviceType:      fields[4],
		FirmwareVersion: fields[5],
		CalibrationDate: fields[6],
		CalibrationDue:  fields[7],
		NumOptions:      fields[8],
		OptionsName:     fields[9],
	}, nil
}

// parseProbeInfo requires the six identity fields and parses the rest best
// effort: an unparsable frequency yields a warning and a nil field, never an
// error.
func parseProbeInfo(reply string) (*ProbeInfo, []string, error) {
	fields := strings.Split(strings.TrimSuffix(reply, ";"), ",")
	if len(fields) != 12 {
		return nil, nil, fmt.Errorf("%w: expected 12 probe info fields, got %d", ErrProtocol, len(fields))
	}

	info := &ProbeInfo{
		ProductName:     fields[0],
		ProductionId:    fields[1],
		SerialNumber:    fields[2],
		CalibrationDate: fields[3],
		CalibrationDue:  fields[4],
		FieldType:       fields[5],
	}

	var warnings []string
	parseHz := func(raw string, target **float64, label string) {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("could not parse %s %q", label, raw))
			return
		}
		*target = &value
	}
	parseHz(fields[6], &info.EFieldLowerFrequencyHz, "e-field lower frequency")
	parseHz(fields[7], &info.EFieldUpperFrequencyHz, "e-field upper frequency")
	parseHz(fields[8], &info.HFieldLowerFrequencyHz, "h-field lower frequency")
	parseHz(fields[9], &info.HFieldUpperFrequencyHz, "h-field upper frequency")

	info.Shaped = fields[10]
	info.StandardName = fields[11]

	return info, warnings, nil
}

// parseMeasurementLine parses one stream line of the form
// "0,8,0,OK,OK,100;". The e/h columns arrive as percentage-of-limit times
// 100 and are scaled down; battery is already a plain percentage and is not.
func parseMeasurementLine(line string) (*MeasurementSample, error) {
	fields := strings.Split(strings.TrimSuffix(line, ";"), ",")
	if len(fields) != 6 {
		return nil, fmt.Errorf("expected 6 fields, got %d", len(fields))
	}

	efield, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("bad e-field percentage %q: %w", fields[0], err)
	}
	hfield, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("bad h-field percentage %q: %w", fields[1], err)
	}
	battery, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return nil, fmt.Errorf("bad battery percentage %q: %w", fields[5], err)
	}

	return &MeasurementSample{
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		EFieldPercentage:  efield / 100.0,
		HFieldPercentage:  hfield / 100.0,
		Unknown:           fields[2],
		EFieldStatus:      fields[3],
		HFieldStatus:      fields[4],
		BatteryPercentage: battery,
	}, nil
}
