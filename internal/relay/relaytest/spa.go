// Package relaytest provides a simulated spa behind an in-process relay
// endpoint, for tests that exercise the real relay client.
package relaytest

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/thatsimonsguy/spa-controller/internal/decoder"
	"github.com/thatsimonsguy/spa-controller/internal/model"
)

const PanelLength = 32

type request struct {
	XMLName    xml.Name `xml:"sci_request"`
	FileSystem *struct {
		Devices []struct {
			ID string `xml:"id,attr"`
		} `xml:"targets>device"`
		Files []struct {
			Path string `xml:"path,attr"`
		} `xml:"commands>get_file"`
	} `xml:"file_system"`
	DataService *struct {
		Devices []struct {
			ID string `xml:"id,attr"`
		} `xml:"targets>device"`
		Requests []struct {
			TargetName string `xml:"target_name,attr"`
			Value      string `xml:",chardata"`
		} `xml:"requests>device_request"`
	} `xml:"data_service"`
}

// Spa is a fake relay that owns the state of one simulated spa. Jet buttons
// advance the jet state machines; LED presses are only counted, the LED code
// rendered into the panel is whatever SetLEDCode last installed.
type Spa struct {
	mu sync.Mutex

	server *httptest.Server

	unitCode     byte
	heatModeCode byte
	ledCode      byte
	current      int
	target       int
	jet1         model.JetSpeed
	jet2         model.JetSpeed
	jetOverride  *byte
	setTemps     []string
	presses      map[model.ButtonCommand]int
	failures     int
	failStatus   int
	omitConfig   bool
	omitPanel    bool
	requests     [][]byte
	buttonHook   func(model.ButtonCommand)
	authRequired bool
	username     string
	password     string
}

func NewSpa(t testing.TB) *Spa {
	t.Helper()
	s := &Spa{
		unitCode: 0x02,
		current:  100,
		target:   102,
		presses:  make(map[model.ButtonCommand]int),
	}
	s.server = httptest.NewServer(s)
	t.Cleanup(s.server.Close)
	return s
}

func (s *Spa) URL() string {
	return s.server.URL
}

// RequireAuth makes the relay reject requests without these basic credentials.
func (s *Spa) RequireAuth(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authRequired = true
	s.username = username
	s.password = password
}

// FailNext makes the next n requests fail with the given status before reaching the spa.
func (s *Spa) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.failStatus = status
}

func (s *Spa) SetJets(jet1, jet2 model.JetSpeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jet1, s.jet2 = jet1, jet2
	s.jetOverride = nil
}

// SetJetCode renders a raw jet-info byte regardless of the jet state machines.
func (s *Spa) SetJetCode(code byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jetOverride = &code
}

func (s *Spa) Jets() (model.JetSpeed, model.JetSpeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jet1, s.jet2
}

func (s *Spa) SetLEDCode(code byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledCode = code
}

func (s *Spa) SetTemperatures(current, target int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current, s.target = current, target
}

func (s *Spa) SetUnitCode(code byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unitCode = code
}

// OmitFiles drops the given files from subsequent get_file replies.
func (s *Spa) OmitFiles(panel, config bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitPanel = panel
	s.omitConfig = config
}

// OnButton installs a hook that runs before each press is applied. The hook
// runs without the spa lock held and may block.
func (s *Spa) OnButton(hook func(model.ButtonCommand)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttonHook = hook
}

func (s *Spa) Presses(button model.ButtonCommand) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presses[button]
}

func (s *Spa) SetTempRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.setTemps...)
}

// Requests returns every request body that reached the relay, including failed ones.
func (s *Spa) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.requests...)
}

// Panel renders the current PanelUpdate.txt contents.
func (s *Spa) Panel() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelLocked()
}

func (s *Spa) panelLocked() []byte {
	panel := make([]byte, PanelLength)
	panel[decoder.OffsetCurrentTemperature] = byte(s.current * 2)
	panel[decoder.OffsetTargetTemperature] = byte(s.target * 2)
	panel[decoder.OffsetTemperatureUnit] = s.unitCode
	panel[decoder.OffsetHeatMode] = s.heatModeCode
	panel[decoder.OffsetLED] = s.ledCode

	if s.jetOverride != nil {
		panel[decoder.OffsetJetInfo] = *s.jetOverride
	} else if code, ok := decoder.JetCode(s.jet1, s.jet2); ok {
		v, _ := strconv.ParseUint(code, 16, 8)
		panel[decoder.OffsetJetInfo] = byte(v)
	}
	return panel
}

func (s *Spa) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, body)
	if s.failures > 0 {
		s.failures--
		status := s.failStatus
		s.mu.Unlock()
		http.Error(w, "Too Many Requests", status)
		return
	}
	if s.authRequired {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.username || pass != s.password {
			s.mu.Unlock()
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}
	s.mu.Unlock()

	var req request
	if err := xml.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	switch {
	case req.FileSystem != nil && len(req.FileSystem.Devices) > 0:
		fmt.Fprint(w, s.fileReply(req.FileSystem.Devices[0].ID))
	case req.DataService != nil && len(req.DataService.Devices) > 0 && len(req.DataService.Requests) > 0:
		id := req.DataService.Devices[0].ID
		dr := req.DataService.Requests[0]
		s.apply(dr.TargetName, dr.Value)
		fmt.Fprintf(w, `<sci_reply version="1.0"><data_service><device id="%s"><requests><device_request target_name="%s" status="0">%s</device_request></requests></device></data_service></sci_reply>`,
			id, dr.TargetName, dr.Value)
	default:
		http.Error(w, "unsupported sci_request", http.StatusBadRequest)
	}
}

func (s *Spa) fileReply(deviceID string) string {
	s.mu.Lock()
	panel := s.panelLocked()
	omitPanel, omitConfig := s.omitPanel, s.omitConfig
	s.mu.Unlock()

	config := []byte{0x1E, 0x02, 0x05, 0x00}
	reply := fmt.Sprintf(`<sci_reply version="1.0"><file_system><device id="%s"><commands>`, deviceID)
	if omitPanel {
		reply += `<get_file path="PanelUpdate.txt"><error id="1"><desc>file unavailable</desc></error></get_file>`
	} else {
		reply += fmt.Sprintf(`<get_file path="PanelUpdate.txt"><data>%s</data></get_file>`, base64.StdEncoding.EncodeToString(panel))
	}
	if omitConfig {
		reply += `<get_file path="DeviceConfiguration.txt"><error id="1"><desc>file unavailable</desc></error></get_file>`
	} else {
		reply += fmt.Sprintf(`<get_file path="DeviceConfiguration.txt"><data>%s</data></get_file>`, base64.StdEncoding.EncodeToString(config))
	}
	return reply + `</commands></device></file_system></sci_reply>`
}

func (s *Spa) apply(targetName, value string) {
	switch targetName {
	case "Button":
		code, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		button := model.ButtonCommand(code)

		s.mu.Lock()
		hook := s.buttonHook
		s.mu.Unlock()
		if hook != nil {
			hook(button)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.presses[button]++
		switch button {
		case model.ButtonJet1:
			s.jet1 = (s.jet1 + 1) % 3
		case model.ButtonJet2:
			if s.jet2 == model.JetOff {
				s.jet2 = model.JetLow
			} else {
				s.jet2 = model.JetOff
			}
		}
	case "SetTemp":
		v, err := strconv.ParseFloat(value, 64)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.setTemps = append(s.setTemps, value)
		if err == nil {
			s.target = int(v)
		}
	}
}
