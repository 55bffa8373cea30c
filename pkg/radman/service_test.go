package radman

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	deviceInfoLine = "RadMan 2XT,2245/101,A-0042,17,RADMAN2,1.4.2,2023-06-01,2025-06-01,1,XT;"
	probeInfoLine  = "RadMan 2XT E+H,2245/90.31,B-0077,2023-06-01,2025-06-01,E+H,100000,60000000000,300000,1000000000,YES,NARDA / FCC 96-326 / Occupational / E+H;"
)

// fakeTransport replays a scripted list of reply lines and records every
// command written to it. An empty script behaves like a quiet serial line.
type fakeTransport struct {
	mu       sync.Mutex
	replies  []string
	commands []string
	readErr  error
	closed   bool
}

func (f *fakeTransport) WriteCommand(command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakeTransport) ReadLine() (string, error) {
	f.mu.Lock()
	if f.readErr != nil {
		err := f.readErr
		f.mu.Unlock()
		return "", err
	}
	if len(f.replies) > 0 {
		line := f.replies[0]
		f.replies = f.replies[1:]
		f.mu.Unlock()
		return line, nil
	}
	f.mu.Unlock()

	time.Sleep(time.Millisecond)
	return "", ErrReadTimeout
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeTransport) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func waitForSample(t *testing.T, samples chan *MeasurementSample) *MeasurementSample {
	t.Helper()
	select {
	case sample := <-samples:
		return sample
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sample")
		return nil
	}
}

func waitForLoopExit(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.loopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the measurement loop to exit")
	}
}

func TestNewSessionQueriesIdentity(t *testing.T) {
	fake := &fakeTransport{replies: []string{deviceInfoLine, probeInfoLine}}

	s, err := newSession(fake)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}

	commands := fake.sentCommands()
	if len(commands) != 2 || commands[0] != "DEVICE_INFO?" || commands[1] != "Probe_INFO?" {
		t.Errorf("Expected the two identity queries, got %v", commands)
	}

	if s.DeviceInfo.ProductName != "RadMan 2XT" {
		t.Errorf("Expected product name RadMan 2XT, got %q", s.DeviceInfo.ProductName)
	}
	if s.DeviceInfo.SerialNumber != "A-0042" {
		t.Errorf("Expected serial A-0042, got %q", s.DeviceInfo.SerialNumber)
	}
	if s.DeviceInfo.FirmwareVersion != "1.4.2" {
		t.Errorf("Expected firmware 1.4.2, got %q", s.DeviceInfo.FirmwareVersion)
	}
	if s.DeviceInfo.OptionsName != "XT" {
		t.Errorf("Expected options name XT, got %q", s.DeviceInfo.OptionsName)
	}

	if s.ProbeInfo.FieldType != "E+H" {
		t.Errorf("Expected field type E+H, got %q", s.ProbeInfo.FieldType)
	}
	if s.ProbeInfo.EFieldLowerFrequencyHz == nil || *s.ProbeInfo.EFieldLowerFrequencyHz != 100000 {
		t.Errorf("Expected e-field lower frequency 100000 Hz, got %v", s.ProbeInfo.EFieldLowerFrequencyHz)
	}
	if s.ProbeInfo.StandardName != "NARDA / FCC 96-326 / Occupational / E+H" {
		t.Errorf("Unexpected standard name %q", s.ProbeInfo.StandardName)
	}

	if s.Mode() != ModeIdle {
		t.Errorf("Expected a fresh session to be idle, got mode %d", s.Mode())
	}
}

func TestNewSessionRejectsShortDeviceInfo(t *testing.T) {
	// One field short of the required 10
	fake := &fakeTransport{replies: []string{"RadMan 2XT,2245/101,A-0042,17,RADMAN2,1.4.2,2023-06-01,2025-06-01,1;"}}

	_, err := newSession(fake)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Expected ErrProtocol for a 9-field device info reply, got %v", err)
	}
	if !fake.wasClosed() {
		t.Error("Expected the transport to be closed after failed setup")
	}
}

func TestParseProbeInfoBestEffort(t *testing.T) {
	line := "RadMan 2XT E+H,2245/90.31,B-0077,2023-06-01,2025-06-01,E+H,,60000000000,n/a,1000000000,YES,Unshaped;"

	info, warnings, err := parseProbeInfo(line)
	if err != nil {
		t.Fatalf("parseProbeInfo: %v", err)
	}

	if info.SerialNumber != "B-0077" {
		t.Errorf("Expected serial B-0077, got %q", info.SerialNumber)
	}
	if info.EFieldLowerFrequencyHz != nil {
		t.Errorf("Expected blank e-field lower frequency to stay nil, got %v", *info.EFieldLowerFrequencyHz)
	}
	if info.HFieldLowerFrequencyHz != nil {
		t.Errorf("Expected unparsable h-field lower frequency to stay nil, got %v", *info.HFieldLowerFrequencyHz)
	}
	if info.EFieldUpperFrequencyHz == nil || *info.EFieldUpperFrequencyHz != 60000000000 {
		t.Errorf("Expected e-field upper frequency 60 GHz, got %v", info.EFieldUpperFrequencyHz)
	}

	if len(warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0], "e-field lower frequency") {
		t.Errorf("Unexpected first warning %q", warnings[0])
	}
}

func TestParseProbeInfoWrongFieldCount(t *testing.T) {
	line := "RadMan 2XT E+H,2245/90.31,B-0077,2023-06-01,2025-06-01,E+H,100000,60000000000,300000,1000000000,YES;"

	_, _, err := parseProbeInfo(line)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Expected ErrProtocol for an 11-field probe reply, got %v", err)
	}
}

func TestSetRemoteMode(t *testing.T) {
	fake := &fakeTransport{replies: []string{"0;"}}
	s := &Session{transport: fake}

	if err := s.SetRemoteMode(true); err != nil {
		t.Fatalf("SetRemoteMode: %v", err)
	}
	if s.Mode() != ModeRemote {
		t.Errorf("Expected remote mode after 0; reply, got mode %d", s.Mode())
	}

	refused := &fakeTransport{replies: []string{"1;"}}
	s = &Session{transport: refused}
	if err := s.SetRemoteMode(true); !errors.Is(err, ErrProtocol) {
		t.Fatalf("Expected ErrProtocol when the device refuses, got %v", err)
	}
	if s.Mode() != ModeIdle {
		t.Errorf("Expected mode to stay idle after refusal, got %d", s.Mode())
	}
}

func TestCommandDisabledWhileMeasuring(t *testing.T) {
	fake := &fakeTransport{replies: []string{"0;"}}
	s := &Session{transport: fake}
	s.mode.Store(int32(ModeMeasuring))

	reply, err := s.Command("DEVICE_INFO?")
	if err != nil || reply != "" {
		t.Fatalf("Expected a silent no-op while measuring, got %q, %v", reply, err)
	}
	if len(fake.sentCommands()) != 0 {
		t.Error("Expected no bytes written while measuring")
	}
}

func TestParseMeasurementLine(t *testing.T) {
	sample, err := parseMeasurementLine("0,8,0,OK,OK,100;")
	if err != nil {
		t.Fatalf("parseMeasurementLine: %v", err)
	}

	if sample.EFieldPercentage != 0 {
		t.Errorf("Expected e-field 0, got %f", sample.EFieldPercentage)
	}
	if sample.HFieldPercentage != 0.08 {
		t.Errorf("Expected h-field 0.08, got %f", sample.HFieldPercentage)
	}
	if sample.BatteryPercentage != 100 {
		t.Errorf("Expected battery to stay unscaled at 100, got %f", sample.BatteryPercentage)
	}
	if sample.Unknown != "0" {
		t.Errorf("Expected the third column to pass through as-is, got %q", sample.Unknown)
	}
	if sample.EFieldStatus != "OK" || sample.HFieldStatus != "OK" {
		t.Errorf("Expected OK status columns, got %q and %q", sample.EFieldStatus, sample.HFieldStatus)
	}
	if _, err := time.Parse(time.RFC3339, sample.Timestamp); err != nil {
		t.Errorf("Expected an RFC3339 receipt timestamp, got %q", sample.Timestamp)
	}
}

func TestParseMeasurementLineRejectsMalformed(t *testing.T) {
	lines := []string{
		"0,8,0,OK,OK;",
		"0,8,0,OK,OK,100,7;",
		"x,8,0,OK,OK,100;",
		"0,8,0,OK,OK,full;",
		"",
	}
	for _, line := range lines {
		if _, err := parseMeasurementLine(line); err == nil {
			t.Errorf("Expected parse of %q to fail", line)
		}
	}
}

func TestStartMeasurementStreamsSamples(t *testing.T) {
	fake := &fakeTransport{replies: []string{
		"0;",
		"0,8,0,OK,OK,100;",
		"10,20,0,OK,OK,99;",
	}}
	s := &Session{transport: fake}

	samples := make(chan *MeasurementSample, 4)
	err := s.StartMeasurement(func(sample *MeasurementSample) { samples <- sample })
	if err != nil {
		t.Fatalf("StartMeasurement: %v", err)
	}
	if s.Mode() != ModeMeasuring {
		t.Fatalf("Expected measuring mode, got %d", s.Mode())
	}

	first := waitForSample(t, samples)
	if first.EFieldPercentage != 0 || first.HFieldPercentage != 0.08 || first.BatteryPercentage != 100 {
		t.Errorf("Unexpected first sample %+v", first)
	}
	second := waitForSample(t, samples)
	if second.EFieldPercentage != 0.1 || second.HFieldPercentage != 0.2 || second.BatteryPercentage != 99 {
		t.Errorf("Unexpected second sample %+v", second)
	}

	if err := s.StopMeasurement(); err != nil {
		t.Fatalf("StopMeasurement: %v", err)
	}
	waitForLoopExit(t, s)
	if s.Mode() != ModeIdle {
		t.Errorf("Expected idle mode after stop, got %d", s.Mode())
	}

	latest := s.GetLatestSample()
	if latest == nil || latest.BatteryPercentage != 99 {
		t.Errorf("Expected the latest sample to be retained, got %+v", latest)
	}

	commands := fake.sentCommands()
	want := []string{"REMOTE ON", "MEAS_START_CIB", "MEAS_STOP_CIB"}
	if len(commands) != len(want) {
		t.Fatalf("Expected commands %v, got %v", want, commands)
	}
	for i := range want {
		if commands[i] != want[i] {
			t.Errorf("Expected command %d to be %q, got %q", i, want[i], commands[i])
		}
	}
}

func TestStartMeasurementIdempotent(t *testing.T) {
	fake := &fakeTransport{}
	s := &Session{transport: fake}
	s.mode.Store(int32(ModeMeasuring))

	if err := s.StartMeasurement(func(*MeasurementSample) {}); err != nil {
		t.Fatalf("StartMeasurement while measuring: %v", err)
	}
	if len(fake.sentCommands()) != 0 {
		t.Error("Expected no commands when a measurement is already running")
	}
}

func TestStartMeasurementRemoteRefused(t *testing.T) {
	fake := &fakeTransport{replies: []string{"ERR;"}}
	s := &Session{transport: fake}

	err := s.StartMeasurement(func(*MeasurementSample) {})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Expected ErrProtocol when remote mode is refused, got %v", err)
	}
	for _, command := range fake.sentCommands() {
		if command == "MEAS_START_CIB" {
			t.Error("Expected no measurement start after a remote mode refusal")
		}
	}
	if s.Mode() == ModeMeasuring {
		t.Error("Expected the session not to enter measuring mode")
	}
}

func TestMeasurementLoopDropsMalformedLines(t *testing.T) {
	fake := &fakeTransport{replies: []string{
		"0;",
		"garbage",
		"10,20,0,OK,OK,99;",
	}}
	s := &Session{transport: fake}

	samples := make(chan *MeasurementSample, 4)
	if err := s.StartMeasurement(func(sample *MeasurementSample) { samples <- sample }); err != nil {
		t.Fatalf("StartMeasurement: %v", err)
	}

	sample := waitForSample(t, samples)
	if sample.BatteryPercentage != 99 {
		t.Errorf("Expected the sample after the malformed line, got %+v", sample)
	}
	if s.Mode() != ModeMeasuring {
		t.Error("Expected the loop to survive a malformed line")
	}

	if err := s.StopMeasurement(); err != nil {
		t.Fatalf("StopMeasurement: %v", err)
	}
	waitForLoopExit(t, s)
}

func TestMeasurementLoopStopsAfterRepeatedErrors(t *testing.T) {
	fake := &fakeTransport{readErr: errors.New("port gone")}
	s := &Session{transport: fake}
	s.mode.Store(int32(ModeMeasuring))
	s.loopDone = make(chan struct{})

	go s.measurementLoop(func(*MeasurementSample) {
		t.Error("Expected no samples from a broken transport")
	})

	waitForLoopExit(t, s)
	if s.Mode() != ModeIdle {
		t.Errorf("Expected the loop to give up and go idle, got mode %d", s.Mode())
	}
}

func TestCloseBoundsSettleWait(t *testing.T) {
	fake := &fakeTransport{replies: []string{"0;"}}
	s := &Session{transport: fake}

	if err := s.StartMeasurement(func(*MeasurementSample) {}); err != nil {
		t.Fatalf("StartMeasurement: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= settleDelay {
		t.Errorf("Expected the context to bound the settle wait, took %v", elapsed)
	}

	if !fake.wasClosed() {
		t.Error("Expected the transport to be closed")
	}
	commands := fake.sentCommands()
	if len(commands) == 0 || commands[len(commands)-1] != "MEAS_STOP_CIB" {
		t.Errorf("Expected a trailing MEAS_STOP_CIB, got %v", commands)
	}
}

func TestCloseWithoutMeasurement(t *testing.T) {
	fake := &fakeTransport{}
	s := &Session{transport: fake}

	start := time.Now()
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Expected no settle wait for an idle session")
	}
	if !fake.wasClosed() {
		t.Error("Expected the transport to be closed")
	}
}
