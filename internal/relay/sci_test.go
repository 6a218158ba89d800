package relay

import (
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/spa-controller/internal/model"
)

func TestFileRequest(t *testing.T) {
	doc := string(FileRequest("00000000-00000000-001527FF-FF0000AA"))

	assert.Contains(t, doc, `<sci_request version="1.0">`)
	assert.Contains(t, doc, `<file_system cache="false" syncTimeout="15">`)
	assert.Contains(t, doc, `<targets><device id="00000000-00000000-001527FF-FF0000AA"></device></targets>`)
	assert.Contains(t, doc, `<get_file path="PanelUpdate.txt"></get_file>`)
	assert.Contains(t, doc, `<get_file path="DeviceConfiguration.txt"></get_file>`)
	assert.NotContains(t, doc, "data_service")
}

func TestButtonRequest(t *testing.T) {
	doc := string(ButtonRequest("dev-1", model.ButtonLED))

	assert.Contains(t, doc, `<data_service>`)
	assert.Contains(t, doc, `<device id="dev-1">`)
	assert.Contains(t, doc, `<device_request target_name="Button">17</device_request>`)
	assert.NotContains(t, doc, "file_system")
}

func TestSetTemperatureRequest(t *testing.T) {
	doc := string(SetTemperatureRequest("dev-1", 101))
	assert.Contains(t, doc, `<device_request target_name="SetTemp">101.000000</device_request>`)
}

func filesReply(panel, config string) []byte {
	return []byte(fmt.Sprintf(`<sci_reply version="1.0"><file_system><device id="dev-1"><commands>%s%s</commands></device></file_system></sci_reply>`, panel, config))
}

func TestDecodeFiles(t *testing.T) {
	panel := base64.StdEncoding.EncodeToString([]byte{0x01, 0xC8})
	config := base64.StdEncoding.EncodeToString([]byte{0xAA})

	files, err := DecodeFiles(filesReply(
		fmt.Sprintf(`<get_file path="PanelUpdate.txt"><data>%s</data></get_file>`, panel),
		fmt.Sprintf(`<get_file path="DeviceConfiguration.txt"><data>%s</data></get_file>`, config),
	))
	require.NoError(t, err)
	assert.Equal(t, model.RawBuffer{"01", "C8"}, files.Panel)
	assert.Equal(t, model.RawBuffer{"AA"}, files.Config)
}

func TestDecodeFiles_MissingFile(t *testing.T) {
	panel := base64.StdEncoding.EncodeToString([]byte{0x01})

	files, err := DecodeFiles(filesReply(
		fmt.Sprintf(`<get_file path="PanelUpdate.txt"><data>%s</data></get_file>`, panel),
		`<get_file path="DeviceConfiguration.txt"><error id="1"><desc>timeout</desc></error></get_file>`,
	))
	require.NoError(t, err)
	assert.Equal(t, model.RawBuffer{"01"}, files.Panel)
	assert.Nil(t, files.Config)
}

func TestDecodeFiles_PositionalFallback(t *testing.T) {
	panel := base64.StdEncoding.EncodeToString([]byte{0x02})
	config := base64.StdEncoding.EncodeToString([]byte{0x03})

	files, err := DecodeFiles(filesReply(
		fmt.Sprintf(`<get_file><data>%s</data></get_file>`, panel),
		fmt.Sprintf(`<get_file><data>%s</data></get_file>`, config),
	))
	require.NoError(t, err)
	assert.Equal(t, model.RawBuffer{"02"}, files.Panel)
	assert.Equal(t, model.RawBuffer{"03"}, files.Config)
}

func TestDecodeFiles_BadPayloadSkipsOnlyThatFile(t *testing.T) {
	config := base64.StdEncoding.EncodeToString([]byte{0xAA})

	files, err := DecodeFiles(filesReply(
		`<get_file path="PanelUpdate.txt"><data>!!!</data></get_file>`,
		fmt.Sprintf(`<get_file path="DeviceConfiguration.txt"><data>%s</data></get_file>`, config),
	))
	require.NoError(t, err)
	assert.Nil(t, files.Panel)
	assert.Equal(t, model.RawBuffer{"AA"}, files.Config)
}

func TestDecodeFiles_Malformed(t *testing.T) {
	tests := map[string][]byte{
		"not xml":    []byte("<<<"),
		"wrong root": []byte(`<html><body>maintenance</body></html>`),
		"no device":  []byte(`<sci_reply version="1.0"><file_system></file_system></sci_reply>`),
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFiles(body)
			assert.ErrorIs(t, err, ErrMalformedReply)
		})
	}
}

func TestDecodeDeviceRequest(t *testing.T) {
	value, err := DecodeDeviceRequest([]byte(`<sci_reply version="1.0"><data_service><device id="dev-1"><requests><device_request target_name="Button" status="0">4</device_request></requests></device></data_service></sci_reply>`))
	require.NoError(t, err)
	assert.Equal(t, "4", value)
}

func TestDecodeDeviceRequest_Errors(t *testing.T) {
	_, err := DecodeDeviceRequest([]byte(`<sci_reply version="1.0"><data_service><device id="dev-1"><error id="2"><desc>device not connected</desc></error></device></data_service></sci_reply>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device not connected")

	_, err = DecodeDeviceRequest([]byte(`<sci_reply version="1.0"><data_service><device id="dev-1"><requests><device_request target_name="SetTemp"><error id="3">bad value</error></device_request></requests></device></data_service></sci_reply>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad value")

	_, err = DecodeDeviceRequest([]byte(`<sci_reply version="1.0"></sci_reply>`))
	assert.ErrorIs(t, err, ErrMalformedReply)
}
