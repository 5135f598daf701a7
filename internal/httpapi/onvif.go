package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ONVIF support is a canned SOAP responder, not a conformance-tested
// Profile S implementation (§9 Open Question, decision recorded in
// DESIGN.md): it answers just enough of GetCapabilities/GetDeviceInformation
// /GetSystemDateAndTime (device_service) and GetProfiles/GetStreamUri/
// GetSnapshotUri/GetVideoSources (media_service) for an ONVIF client to
// locate the RTSP stream.

const soapEnvelopeHeader = `<?xml version="1.0" encoding="UTF-8"?>
<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">
<s:Body>`

const soapEnvelopeFooter = `
</s:Body>
</s:Envelope>`

func (s *Server) handleONVIFDevice(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	action := detectSOAPAction(string(body))

	var resp string
	switch {
	case strings.Contains(action, "GetSystemDateAndTime"):
		now := time.Now().UTC()
		resp = fmt.Sprintf(`<tds:GetSystemDateAndTimeResponse xmlns:tds="http://www.onvif.org/ver10/device/wsdl">
<tds:SystemDateAndTime>
<tt:UTCDateTime xmlns:tt="http://www.onvif.org/ver10/schema">
<tt:Time><tt:Hour>%d</tt:Hour><tt:Minute>%d</tt:Minute><tt:Second>%d</tt:Second></tt:Time>
<tt:Date><tt:Year>%d</tt:Year><tt:Month>%d</tt:Month><tt:Day>%d</tt:Day></tt:Date>
</tt:UTCDateTime>
</tds:SystemDateAndTime>
</tds:GetSystemDateAndTimeResponse>`, now.Hour(), now.Minute(), now.Second(), now.Year(), int(now.Month()), now.Day())
	case strings.Contains(action, "GetDeviceInformation"):
		manufacturer, model := "divinus", "camerad"
		if s.deps.Device != nil {
			if id, err := s.deps.Device.Identify(); err == nil {
				model = id.ChipID
			}
		}
		resp = fmt.Sprintf(`<tds:GetDeviceInformationResponse xmlns:tds="http://www.onvif.org/ver10/device/wsdl">
<tds:Manufacturer>%s</tds:Manufacturer>
<tds:Model>%s</tds:Model>
<tds:FirmwareVersion>1.0</tds:FirmwareVersion>
<tds:SerialNumber>0</tds:SerialNumber>
<tds:HardwareId>0</tds:HardwareId>
</tds:GetDeviceInformationResponse>`, manufacturer, model)
	default:
		resp = `<tds:GetCapabilitiesResponse xmlns:tds="http://www.onvif.org/ver10/device/wsdl">
<tds:Capabilities>
<tds:Media><tt:XAddr xmlns:tt="http://www.onvif.org/ver10/schema">/onvif/media_service</tt:XAddr></tds:Media>
</tds:Capabilities>
</tds:GetCapabilitiesResponse>`
	}

	writeSOAP(w, resp)
}

func (s *Server) handleONVIFMedia(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	action := detectSOAPAction(string(body))

	s.deps.ConfigMu.Lock()
	rtspPort := s.deps.Config.RTSP.Port
	s.deps.ConfigMu.Unlock()
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	hostOnly := host
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		hostOnly = host[:idx]
	}
	rtspURL := fmt.Sprintf("rtsp://%s:%d/live", hostOnly, rtspPort)

	var resp string
	switch {
	case strings.Contains(action, "GetStreamUri"):
		resp = fmt.Sprintf(`<trt:GetStreamUriResponse xmlns:trt="http://www.onvif.org/ver10/media/wsdl">
<trt:MediaUri xmlns:tt="http://www.onvif.org/ver10/schema">
<tt:Uri>%s</tt:Uri>
</trt:MediaUri>
</trt:GetStreamUriResponse>`, rtspURL)
	case strings.Contains(action, "GetSnapshotUri"):
		resp = fmt.Sprintf(`<trt:GetSnapshotUriResponse xmlns:trt="http://www.onvif.org/ver10/media/wsdl">
<trt:MediaUri xmlns:tt="http://www.onvif.org/ver10/schema">
<tt:Uri>http://%s/image.jpg</tt:Uri>
</trt:MediaUri>
</trt:GetSnapshotUriResponse>`, host)
	case strings.Contains(action, "GetVideoSources"):
		resp = `<trt:GetVideoSourcesResponse xmlns:trt="http://www.onvif.org/ver10/media/wsdl">
<trt:VideoSources token="video_src_0" xmlns:tt="http://www.onvif.org/ver10/schema">
<tt:Framerate>30</tt:Framerate>
</trt:VideoSources>
</trt:GetVideoSourcesResponse>`
	default: // GetProfiles
		resp = `<trt:GetProfilesResponse xmlns:trt="http://www.onvif.org/ver10/media/wsdl">
<trt:Profiles token="profile_0" fixed="true" xmlns:tt="http://www.onvif.org/ver10/schema">
<tt:Name>MainStream</tt:Name>
</trt:Profiles>
</trt:GetProfilesResponse>`
	}

	writeSOAP(w, resp)
}

func writeSOAP(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, soapEnvelopeHeader+body+soapEnvelopeFooter)
}

// detectSOAPAction returns the request from its "<s:Body>" (or any
// ":Body>") tag onward, or the whole request when no such tag is found;
// callers match operation names in it with strings.Contains instead of a
// full XML parse.
func detectSOAPAction(body string) string {
	start := strings.Index(body, "<s:Body>")
	if start < 0 {
		start = strings.Index(body, ":Body>")
	}
	if start < 0 {
		return body
	}
	return body[start:]
}
