// Package watchdog keeps the kernel's hardware watchdog device fed so the
// system resets if the process hangs (§6 Environment, §4.J startup step
// 3/shutdown last-step). Grounded on the same raw-ioctl-via-unix.Syscall
// style as internal/gpio's cdev backend — the watchdog ioctl ABI
// (linux/watchdog.h) has no typed wrapper in golang.org/x/sys/unix, so the
// two constants this package needs are declared locally.
package watchdog

import (
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/divinus-go/camerad/internal/logger"
)

// linux/watchdog.h ioctl numbers (not exported by golang.org/x/sys/unix).
const (
	wdiocSetTimeout = 0xC0045706
	wdiocKeepalive  = 0x80045705
)

// candidatePaths is tried in order, per §6: "/dev/watchdog0 preferred,
// then /dev/watchdog".
var candidatePaths = []string{"/dev/watchdog0", "/dev/watchdog"}

// Watchdog periodically writes a keepalive to the hardware watchdog
// device. A zero-value Watchdog (timeout 0, disabled in config) is
// nil-safe across Start/Stop.
type Watchdog struct {
	log  *logger.Logger
	file *os.File

	mu     sync.Mutex
	cancel func()
	done   chan struct{}
}

// Open opens the first available watchdog device node and sets its
// timeout. timeoutSeconds==0 means disabled: Open returns a nil
// *Watchdog and no error, and every method on a nil Watchdog is a no-op.
func Open(log *logger.Logger, timeoutSeconds int) (*Watchdog, error) {
	if timeoutSeconds <= 0 {
		return nil, nil
	}
	if log == nil {
		log = logger.Default()
	}

	var f *os.File
	var lastErr error
	for _, path := range candidatePaths {
		fh, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err == nil {
			f = fh
			break
		}
		lastErr = err
	}
	if f == nil {
		return nil, fmt.Errorf("watchdog: no device node available: %w", lastErr)
	}

	timeout := int32(timeoutSeconds)
	if err := ioctlInt(f.Fd(), wdiocSetTimeout, &timeout); err != nil {
		log.Warn("watchdog: set timeout failed, continuing with device default", "error", err)
	}

	return &Watchdog{log: log, file: f}, nil
}

// Start launches a goroutine that kicks the watchdog at interval/3 (a
// safety margin so a late tick doesn't trip the timeout).
func (w *Watchdog) Start(interval time.Duration) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return
	}
	done := make(chan struct{})
	stop := make(chan struct{})
	w.done = done
	w.cancel = func() { close(stop) }

	period := interval / 3
	if period <= 0 {
		period = time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				w.kick()
			}
		}
	}()
}

func (w *Watchdog) kick() {
	var dummy int32
	if err := ioctlInt(w.file.Fd(), wdiocKeepalive, &dummy); err != nil {
		w.log.Warn("watchdog: keepalive ioctl failed", "error", err)
	}
}

// Stop halts the keepalive goroutine and closes the device with the magic
// close character so a graceful shutdown doesn't trigger a reset.
func (w *Watchdog) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	if w.file != nil {
		_, _ = w.file.Write([]byte("V")) // magic close char disarms the timer.
		_ = w.file.Close()
	}
}

func ioctlInt(fd uintptr, req uintptr, val *int32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(val)))
	if errno != 0 {
		return errno
	}
	return nil
}
