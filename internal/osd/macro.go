package osd

import (
	"fmt"
	"strings"
	"time"
)

// macroSource supplies the live values macros expand to (§4.H step 1). A
// single struct rather than per-macro callbacks keeps expandMacros a pure
// function of (text, source, now) and easy to test.
type macroSource struct {
	TimeFormat string
	Now        time.Time

	BandwidthBps map[string]float64 // iface -> bytes/sec since last tick; "" is the total over all ifaces
	CPUPercent   float64
	MemUsedMB    float64
	MemTotalMB   float64
	Temperature  float64

	ISPLine1 string
	ISPLine2 string
}

// expandMacros scans text left to right expanding the §4.H macro set. It is
// hand-written rather than regexp-based, matching the teacher's preference
// for manual parsing of small wire/text grammars over regexp in hot paths
// (pkg/rtsp/client.go's header line scanner).
func expandMacros(text string, src macroSource) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		c := text[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(text) {
			out.WriteByte(c)
			break
		}
		switch text[i+1] {
		case '$':
			out.WriteByte('$')
			i += 2
		case 't':
			if i+2 < len(text) && text[i+2] == 'u' {
				out.WriteString(strftime(src.TimeFormat, src.Now.UTC()))
				i += 3
			} else {
				out.WriteString(strftime(src.TimeFormat, src.Now.Local()))
				i += 2
			}
		case 'B':
			iface, consumed := scanIfaceSuffix(text[i+2:])
			out.WriteString(formatBandwidth(src.BandwidthBps[iface]))
			i += 2 + consumed
		case 'C':
			fmt.Fprintf(&out, "%.0f%%", src.CPUPercent)
			i += 2
		case 'M':
			fmt.Fprintf(&out, "%.0f/%.0fMB", src.MemUsedMB, src.MemTotalMB)
			i += 2
		case 'T':
			fmt.Fprintf(&out, "%.1fC", src.Temperature)
			i += 2
		case 'I':
			if i+2 < len(text) && text[i+2] == '1' {
				out.WriteString(src.ISPLine1)
				i += 3
			} else if i+2 < len(text) && text[i+2] == '2' {
				out.WriteString(src.ISPLine2)
				i += 3
			} else {
				out.WriteString("$I")
				i += 2
			}
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// scanIfaceSuffix consumes an optional ":iface" suffix after $B and returns
// the interface name (empty if none) plus how many bytes were consumed.
func scanIfaceSuffix(rest string) (string, int) {
	if len(rest) == 0 || rest[0] != ':' {
		return "", 0
	}
	end := 1
	for end < len(rest) && isIfaceChar(rest[end]) {
		end++
	}
	return rest[1:end], end
}

func isIfaceChar(b byte) bool {
	return b == '_' || b == '-' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func formatBandwidth(bps float64) string {
	switch {
	case bps >= 1<<20:
		return fmt.Sprintf("%.1fMB/s", bps/(1<<20))
	case bps >= 1<<10:
		return fmt.Sprintf("%.1fKB/s", bps/(1<<10))
	default:
		return fmt.Sprintf("%.0fB/s", bps)
	}
}

// strftime translates the small subset of C strftime directives the config
// table's time_format key documents (§6) into Go's reference-time layout.
// A hand-rolled translator mirrors spng/BMP handling elsewhere in this
// package: no C-strftime-compatible Go library exists in the pack, so the
// supported directive set is deliberately small and documented here.
func strftime(format string, t time.Time) string {
	var out strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			out.WriteByte(format[i])
			continue
		}
		i++
		switch format[i] {
		case 'Y':
			fmt.Fprintf(&out, "%04d", t.Year())
		case 'm':
			fmt.Fprintf(&out, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&out, "%02d", t.Day())
		case 'H':
			fmt.Fprintf(&out, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&out, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&out, "%02d", t.Second())
		case '%':
			out.WriteByte('%')
		default:
			out.WriteByte('%')
			out.WriteByte(format[i])
		}
	}
	return out.String()
}
