package daynight

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/divinus-go/camerad/internal/gpio"
	"github.com/divinus-go/camerad/internal/hal"
)

// ispLumaSource is §4.I priority 1: the HAL's own average-luma reader,
// sampled once per check_interval_s.
type ispLumaSource struct {
	device hal.Device
	low, high float64
}

func (s *ispLumaSource) Sample() (float64, error) {
	if s.device == nil {
		return 0, hal.ErrNotAvailable
	}
	return s.device.ReadISPAverageLuma()
}

func (s *ispLumaSource) Thresholds() (float64, float64) { return s.low, s.high }
func (s *ispLumaSource) Close() error                   { return nil }

// adcSource is §4.I priority 2: an analog light sensor on a character
// device, averaged over 12 samples per interval ("average 12 samples per
// interval").
type adcSource struct {
	path      string
	threshold float64
}

const adcSampleCount = 12

func (s *adcSource) Sample() (float64, error) {
	var sum float64
	for i := 0; i < adcSampleCount; i++ {
		v, err := readAdcOnce(s.path)
		if err != nil {
			return 0, fmt.Errorf("daynight: adc read %s: %w", s.path, err)
		}
		sum += v
	}
	return sum / adcSampleCount, nil
}

func readAdcOnce(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse adc value %q: %w", string(data), err)
	}
	return v, nil
}

func (s *adcSource) Thresholds() (float64, float64) { return s.threshold, s.threshold }
func (s *adcSource) Close() error                   { return nil }

// gpioSource is §4.I priority 3: a digital light-sensor pin, read as a
// binary level and collapsed to 0 (dark) or 100 (light) so it shares the
// same luma-threshold comparison as the other sources.
type gpioSource struct {
	line      *gpio.InputLine
	threshold float64
}

func (s *gpioSource) Sample() (float64, error) {
	level, err := s.line.GetValue()
	if err != nil {
		return 0, err
	}
	if level {
		return 100, nil
	}
	return 0, nil
}

func (s *gpioSource) Thresholds() (float64, float64) { return s.threshold, s.threshold }

func (s *gpioSource) Close() error { return s.line.Close() }

// idleSource is §4.I priority 4: no automatic transitions.
type idleSource struct{}

func (idleSource) Sample() (float64, error)      { return 0, nil }
func (idleSource) Thresholds() (float64, float64) { return 0, 0 }
func (idleSource) Close() error                  { return nil }
