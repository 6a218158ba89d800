package relay

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/spa-controller/internal/model"
)

const (
	sciVersion = "1.0"

	PanelUpdateFile         = "PanelUpdate.txt"
	DeviceConfigurationFile = "DeviceConfiguration.txt"

	targetButton  = "Button"
	targetSetTemp = "SetTemp"

	fileSyncTimeoutSeconds = 15
)

var ErrMalformedReply = errors.New("malformed relay reply")

type sciRequest struct {
	XMLName     xml.Name     `xml:"sci_request"`
	Version     string       `xml:"version,attr"`
	FileSystem  *fileSystem  `xml:"file_system,omitempty"`
	DataService *dataService `xml:"data_service,omitempty"`
}

type target struct {
	ID string `xml:"id,attr"`
}

type fileSystem struct {
	Cache       string    `xml:"cache,attr"`
	SyncTimeout int       `xml:"syncTimeout,attr"`
	Targets     []target  `xml:"targets>device"`
	Commands    []getFile `xml:"commands>get_file"`
}

type getFile struct {
	Path string `xml:"path,attr"`
}

type dataService struct {
	Targets  []target        `xml:"targets>device"`
	Requests []deviceRequest `xml:"requests>device_request"`
}

type deviceRequest struct {
	TargetName string `xml:"target_name,attr"`
	Value      string `xml:",chardata"`
}

type sciReply struct {
	XMLName     xml.Name          `xml:"sci_reply"`
	Version     string            `xml:"version,attr"`
	FileSystem  *fileSystemReply  `xml:"file_system"`
	DataService *dataServiceReply `xml:"data_service"`
}

type fileSystemReply struct {
	Devices []fileSystemDevice `xml:"device"`
}

type fileSystemDevice struct {
	ID       string          `xml:"id,attr"`
	Error    *replyError     `xml:"error"`
	GetFiles []getFileResult `xml:"commands>get_file"`
}

type getFileResult struct {
	Path  string      `xml:"path,attr"`
	Data  *string     `xml:"data"`
	Error *replyError `xml:"error"`
}

type dataServiceReply struct {
	Devices []dataServiceDevice `xml:"device"`
}

type dataServiceDevice struct {
	ID       string                `xml:"id,attr"`
	Error    *replyError           `xml:"error"`
	Requests []deviceRequestResult `xml:"requests>device_request"`
}

type deviceRequestResult struct {
	TargetName string      `xml:"target_name,attr"`
	Status     string      `xml:"status,attr"`
	Value      string      `xml:",chardata"`
	Error      *replyError `xml:"error"`
}

type replyError struct {
	ID   string `xml:"id,attr"`
	Desc string `xml:"desc"`
	Text string `xml:",chardata"`
}

func (e *replyError) String() string {
	desc := strings.TrimSpace(e.Desc)
	if desc == "" {
		desc = strings.TrimSpace(e.Text)
	}
	return fmt.Sprintf("error %s: %s", e.ID, desc)
}

// FileRequest asks the relay for both device files in one envelope.
func FileRequest(deviceID string) []byte {
	return marshal(sciRequest{
		Version: sciVersion,
		FileSystem: &fileSystem{
			Cache:       "false",
			SyncTimeout: fileSyncTimeoutSeconds,
			Targets:     []target{{ID: deviceID}},
			Commands: []getFile{
				{Path: PanelUpdateFile},
				{Path: DeviceConfigurationFile},
			},
		},
	})
}

// ButtonRequest simulates one press of a panel button.
func ButtonRequest(deviceID string, button model.ButtonCommand) []byte {
	return deviceRequestDoc(deviceID, targetButton, strconv.Itoa(int(button)))
}

// SetTemperatureRequest sets the target temperature in the device's own unit.
func SetTemperatureRequest(deviceID string, value float64) []byte {
	return deviceRequestDoc(deviceID, targetSetTemp, strconv.FormatFloat(value, 'f', 6, 64))
}

func deviceRequestDoc(deviceID, targetName, value string) []byte {
	return marshal(sciRequest{
		Version: sciVersion,
		DataService: &dataService{
			Targets:  []target{{ID: deviceID}},
			Requests: []deviceRequest{{TargetName: targetName, Value: value}},
		},
	})
}

func marshal(req sciRequest) []byte {
	out, err := xml.Marshal(req)
	if err != nil {
		// every field is a plain string or int
		panic(fmt.Sprintf("marshal sci_request: %v", err))
	}
	return out
}

// Files holds the decoded get_file results. A nil buffer means the relay did
// not return that file in this reply.
type Files struct {
	Panel  model.RawBuffer
	Config model.RawBuffer
}

func DecodeFiles(body []byte) (Files, error) {
	reply, err := decodeReply(body)
	if err != nil {
		return Files{}, err
	}
	if reply.FileSystem == nil || len(reply.FileSystem.Devices) == 0 {
		return Files{}, fmt.Errorf("%w: no file_system device in reply", ErrMalformedReply)
	}

	var files Files
	device := reply.FileSystem.Devices[0]
	for i, result := range device.GetFiles {
		if result.Data == nil {
			continue
		}
		name := fileName(result, i)
		buf, err := model.ParseRawBuffer(*result.Data)
		if err != nil {
			// treated like a missing file so the other one still lands
			log.Warn().Err(err).Str("file", name).Msg("Skipping undecodable device file")
			continue
		}
		switch name {
		case PanelUpdateFile:
			files.Panel = buf
		case DeviceConfigurationFile:
			files.Config = buf
		}
	}
	return files, nil
}

// fileName falls back to the request order when the relay omits the path attribute.
func fileName(result getFileResult, index int) string {
	if result.Path != "" {
		return result.Path
	}
	switch index {
	case 0:
		return PanelUpdateFile
	case 1:
		return DeviceConfigurationFile
	default:
		return ""
	}
}

// DecodeDeviceRequest checks a data_service reply and returns the echoed value.
func DecodeDeviceRequest(body []byte) (string, error) {
	reply, err := decodeReply(body)
	if err != nil {
		return "", err
	}
	if reply.DataService == nil || len(reply.DataService.Devices) == 0 {
		return "", fmt.Errorf("%w: no data_service device in reply", ErrMalformedReply)
	}
	device := reply.DataService.Devices[0]
	if device.Error != nil {
		return "", fmt.Errorf("device %s rejected request: %s", device.ID, device.Error)
	}
	if len(device.Requests) == 0 {
		return "", fmt.Errorf("%w: no device_request in reply", ErrMalformedReply)
	}
	req := device.Requests[0]
	if req.Error != nil {
		return "", fmt.Errorf("device %s rejected %s: %s", device.ID, req.TargetName, req.Error)
	}
	return strings.TrimSpace(req.Value), nil
}

func decodeReply(body []byte) (sciReply, error) {
	var reply sciReply
	if err := xml.Unmarshal(body, &reply); err != nil {
		return sciReply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return reply, nil
}
