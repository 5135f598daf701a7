package gpio

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// sysfsLine drives a pin through /sys/class/gpio (global pin numbering,
// §6). Used when no /dev/gpiochipN node exists — older kernels, or a
// container without devtmpfs chardev nodes mounted in.
type sysfsLine struct {
	pin       int
	activeLow bool
	valuePath string
}

func openSysfs(pin int, activeLow bool) (Backend, error) {
	exportPath := "/sys/class/gpio/export"
	pinDir := fmt.Sprintf("/sys/class/gpio/gpio%d", pin)

	if _, err := os.Stat(pinDir); os.IsNotExist(err) {
		if werr := os.WriteFile(exportPath, []byte(strconv.Itoa(pin)), 0200); werr != nil {
			return nil, fmt.Errorf("gpio: export pin %d: %w", pin, werr)
		}
	}

	directionPath := pinDir + "/direction"
	if err := os.WriteFile(directionPath, []byte("out"), 0200); err != nil {
		return nil, fmt.Errorf("gpio: set direction for pin %d: %w", pin, err)
	}

	return &sysfsLine{pin: pin, activeLow: activeLow, valuePath: pinDir + "/value"}, nil
}

func (l *sysfsLine) SetValue(active bool) error {
	want := active
	if l.activeLow {
		want = !want
	}
	val := "0"
	if want {
		val = "1"
	}
	return os.WriteFile(l.valuePath, []byte(val), 0200)
}

func (l *sysfsLine) Close() error {
	return os.WriteFile("/sys/class/gpio/unexport", []byte(strconv.Itoa(l.pin)), 0200)
}

// sysfsInputLine is the input-mode counterpart of sysfsLine.
type sysfsInputLine struct {
	pin       int
	valuePath string
}

func openSysfsInput(pin int) (InputBackend, error) {
	exportPath := "/sys/class/gpio/export"
	pinDir := fmt.Sprintf("/sys/class/gpio/gpio%d", pin)

	if _, err := os.Stat(pinDir); os.IsNotExist(err) {
		if werr := os.WriteFile(exportPath, []byte(strconv.Itoa(pin)), 0200); werr != nil {
			return nil, fmt.Errorf("gpio: export pin %d: %w", pin, werr)
		}
	}

	directionPath := pinDir + "/direction"
	if err := os.WriteFile(directionPath, []byte("in"), 0200); err != nil {
		return nil, fmt.Errorf("gpio: set input direction for pin %d: %w", pin, err)
	}

	return &sysfsInputLine{pin: pin, valuePath: pinDir + "/value"}, nil
}

func (l *sysfsInputLine) GetValue() (bool, error) {
	data, err := os.ReadFile(l.valuePath)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

func (l *sysfsInputLine) Close() error {
	return os.WriteFile("/sys/class/gpio/unexport", []byte(strconv.Itoa(l.pin)), 0200)
}
