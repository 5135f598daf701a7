package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// gpioChipRange describes one /sys/class/gpio/gpiochipN entry's global pin
// window, used to map a legacy global pin number to (chip, offset) per §6:
// "chardev maps global -> chip,offset via
// /sys/class/gpio/gpiochipN/{base,ngpio} with a fallback of chip 0, offset
// = pin".
type gpioChipRange struct {
	chip  int
	base  int
	ngpio int
}

func listChipRanges() []gpioChipRange {
	entries, err := filepath.Glob("/sys/class/gpio/gpiochip*")
	if err != nil {
		return nil
	}
	var ranges []gpioChipRange
	for _, e := range entries {
		name := filepath.Base(e)
		chipStr := strings.TrimPrefix(name, "gpiochip")
		chip, err := strconv.Atoi(chipStr)
		if err != nil {
			continue
		}
		base := readIntFile(filepath.Join(e, "base"))
		ngpio := readIntFile(filepath.Join(e, "ngpio"))
		ranges = append(ranges, gpioChipRange{chip: chip, base: base, ngpio: ngpio})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].base < ranges[j].base })
	return ranges
}

func readIntFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return -1
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1
	}
	return v
}

// resolveChipOffset maps a global pin number to a (chip, offset) pair.
func resolveChipOffset(pin int) (chip, offset int) {
	for _, r := range listChipRanges() {
		if r.base < 0 || r.ngpio < 0 {
			continue
		}
		if pin >= r.base && pin < r.base+r.ngpio {
			return r.chip, pin - r.base
		}
	}
	return 0, pin // fallback: chip 0, offset = pin
}

// cdevLine is a GPIO line held open via the character-device ioctl ABI
// (linux/gpio.h GPIOHANDLE_*), accessed through golang.org/x/sys/unix's
// typed ioctl wrappers — the concern x/sys/unix exists to cover in this
// port's ambient stack.
type cdevLine struct {
	fd        int
	activeLow bool
}

func openCdev(pin int, activeLow bool) (Backend, error) {
	chip, offset := resolveChipOffset(pin)
	path := fmt.Sprintf("/dev/gpiochip%d", chip)

	chipFD, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("gpio: open %s: %w", path, err)
	}
	defer unix.Close(chipFD)

	req := unix.GpioHandleRequest{
		Lines:       1,
		Flags:       unix.GPIOHANDLE_REQUEST_OUTPUT,
		DefaultValues: [64]uint8{0: 0},
	}
	req.LineOffsets[0] = uint32(offset)
	copy(req.Consumer[:], "divinus-camerad")

	if err := unix.IoctlGpioGetLineHandle(chipFD, &req); err != nil {
		return nil, fmt.Errorf("gpio: get line handle (chip=%d offset=%d): %w", chip, offset, err)
	}

	return &cdevLine{fd: int(req.Fd), activeLow: activeLow}, nil
}

func (l *cdevLine) SetValue(active bool) error {
	v := uint8(0)
	want := active
	if l.activeLow {
		want = !want
	}
	if want {
		v = 1
	}
	data := unix.GpioHandleData{}
	data.Values[0] = v
	return unix.IoctlGpiohandleSetLineValues(l.fd, &data)
}

// cdevInputLine is an input-mode counterpart of cdevLine.
type cdevInputLine struct {
	fd int
}

func openCdevInput(pin int) (InputBackend, error) {
	chip, offset := resolveChipOffset(pin)
	path := fmt.Sprintf("/dev/gpiochip%d", chip)

	chipFD, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("gpio: open %s: %w", path, err)
	}
	defer unix.Close(chipFD)

	req := unix.GpioHandleRequest{
		Lines: 1,
		Flags: unix.GPIOHANDLE_REQUEST_INPUT,
	}
	req.LineOffsets[0] = uint32(offset)
	copy(req.Consumer[:], "divinus-camerad")

	if err := unix.IoctlGpioGetLineHandle(chipFD, &req); err != nil {
		return nil, fmt.Errorf("gpio: get input line handle (chip=%d offset=%d): %w", chip, offset, err)
	}

	return &cdevInputLine{fd: int(req.Fd)}, nil
}

func (l *cdevInputLine) GetValue() (bool, error) {
	data := unix.GpioHandleData{}
	if err := unix.IoctlGpiohandleGetLineValues(l.fd, &data); err != nil {
		return false, err
	}
	return data.Values[0] != 0, nil
}

func (l *cdevInputLine) Close() error {
	return unix.Close(l.fd)
}

func (l *cdevLine) Close() error {
	return unix.Close(l.fd)
}
