// Interactive RadMan client: connects to the device, prints its identity,
// then streams measurements to the console with optional CSV recording.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/radman-monitor/pkg/config"
	"github.com/NotCoffee418/radman-monitor/pkg/feed"
	"github.com/NotCoffee418/radman-monitor/pkg/pathing"
	"github.com/NotCoffee418/radman-monitor/pkg/radhaz"
	"github.com/NotCoffee418/radman-monitor/pkg/radman"
	"github.com/NotCoffee418/radman-monitor/pkg/recorder"
	"github.com/NotCoffee418/radman-monitor/pkg/rfunits"
)

// sampleContext carries everything the sample path needs, built once at
// startup.
type sampleContext struct {
	standard     radhaz.Standard
	frequencyMhz float64
	recorder     *recorder.Recorder
}

func main() {
	logToFile := flag.Bool("log", false, "Record samples to a timestamped CSV log file")
	frequency := flag.Float64("frequency", 0, "Convert percentages to E/H field levels for this frequency (MHz)")
	verbose := flag.Bool("v", false, "Enable debug output")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	// Load config
	if err := config.LoadMonitorConfig(); err != nil {
		logrus.Fatalf("Failed to load monitor config: %v", err)
	}
	cfg := config.ActiveMonitorConfig

	// Flags override the config file
	port := cfg.SerialDevice
	if flag.NArg() > 0 {
		port = flag.Arg(0)
	}
	frequencyMhz := cfg.FrequencyMhz
	if *frequency > 0 {
		frequencyMhz = *frequency
	}

	session, err := radman.Connect(port, cfg.Baudrate)
	if err != nil {
		logrus.Fatalf("Could not connect to RadMan: %v", err)
	}

	printDeviceInfo(session.DeviceInfo)
	printProbeInfo(session.ProbeInfo)

	sc := &sampleContext{
		standard:     radhaz.ChooseStandard(session.ProbeInfo.StandardName),
		frequencyMhz: frequencyMhz,
	}
	if sc.standard != nil && frequencyMhz > 0 {
		efieldLimit, _ := sc.standard.EFieldLimit(frequencyMhz)
		hfieldLimit, _ := sc.standard.HFieldLimit(frequencyMhz)
		logrus.Infof("Using RADHAZ Standard '%s', for %g MHz.", sc.standard.Name(), frequencyMhz)
		logrus.Infof("Limits: %.3f V/m, %.3f A/m", efieldLimit, hfieldLimit)
	}

	if *logToFile {
		rec, err := recorder.Create(pathing.GetRecordingDir(), session.DeviceInfo, session.ProbeInfo, sc.standard, frequencyMhz)
		if err != nil {
			logrus.Fatalf("Could not open log file: %v", err)
		}
		sc.recorder = rec
	}

	if err := session.StartMeasurement(sc.handleSample); err != nil {
		logrus.Fatalf("Could not start measurement: %v", err)
	}

	// Stream until interrupted
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	logrus.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := session.Close(ctx); err != nil {
		logrus.Errorf("Could not close session: %v", err)
	}
	if sc.recorder != nil {
		sc.recorder.Close()
	}
}

func (sc *sampleContext) handleSample(sample *radman.MeasurementSample) {
	payload := feed.NewSamplePayload(sample, sc.standard, sc.frequencyMhz)

	if payload.EFieldVm != nil && payload.HFieldAm != nil {
		logrus.Infof("%s: E-Field: %.3f V/m (%.2f%%), H-Field: %.3f A/m (%.2f%%)",
			payload.Timestamp,
			*payload.EFieldVm, payload.EFieldPercentage,
			*payload.HFieldAm, payload.HFieldPercentage)
	} else {
		logrus.Infof("%s: E-Field: %.2f%%, H-Field: %.2f%%",
			payload.Timestamp, payload.EFieldPercentage, payload.HFieldPercentage)
	}

	if sc.recorder != nil {
		if err := sc.recorder.WriteSample(payload); err != nil {
			logrus.Errorf("Could not write log line: %v", err)
		}
	}
}

func printDeviceInfo(info *radman.DeviceInfo) {
	logrus.Infof("Device Information for %s", info.ProductName)
	logrus.Infof("\tProduct Name: %s", info.ProductName)
	logrus.Infof("\tProduction ID: %s", info.ProductionId)
	logrus.Infof("\tSerial Number: %s", info.SerialNumber)
	logrus.Infof("\tDevice ID: %s", info.DeviceId)
	logrus.Infof("\tDevice Type: %s", info.DeviceType)
	logrus.Infof("\tFirmware Version: %s", info.FirmwareVersion)
	logrus.Infof("\tCalibration Date: %s", info.CalibrationDate)
	logrus.Infof("\tCalibration Due: %s", info.CalibrationDue)
}

func printProbeInfo(info *radman.ProbeInfo) {
	logrus.Infof("Probe Information for %s", info.ProductName)
	logrus.Infof("\tProduct Name: %s", info.ProductName)
	logrus.Infof("\tProduction ID: %s", info.ProductionId)
	logrus.Infof("\tSerial Number: %s", info.SerialNumber)
	logrus.Infof("\tCalibration Date: %s", info.CalibrationDate)
	logrus.Infof("\tCalibration Due: %s", info.CalibrationDue)
	if info.EFieldLowerFrequencyHz != nil && info.EFieldUpperFrequencyHz != nil {
		logrus.Infof("\tE-Field Range: %g - %g MHz",
			rfunits.HzToMhz(*info.EFieldLowerFrequencyHz),
			rfunits.HzToMhz(*info.EFieldUpperFrequencyHz))
	}
	if info.HFieldLowerFrequencyHz != nil && info.HFieldUpperFrequencyHz != nil {
		logrus.Infof("\tH-Field Range: %g - %g MHz",
			rfunits.HzToMhz(*info.HFieldLowerFrequencyHz),
			rfunits.HzToMhz(*info.HFieldUpperFrequencyHz))
	}
	logrus.Infof("\tShaped Probe: %s", info.Shaped)
	logrus.Infof("\tShaping Standard: %s", info.StandardName)
}
