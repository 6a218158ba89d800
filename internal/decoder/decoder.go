package decoder

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/thatsimonsguy/spa-controller/internal/model"
)

// Byte offsets within PanelUpdate.txt.
const (
	OffsetCurrentTemperature = 6
	OffsetHeatMode           = 9
	OffsetTemperatureUnit    = 13
	OffsetJetInfo            = 15
	OffsetLED                = 18
	OffsetTargetTemperature  = 24
)

var (
	ErrUnknownLEDCode = errors.New("unknown LED code")
	ErrBadTemperature = errors.New("malformed temperature field")
	ErrShortBuffer    = model.ErrFieldOutOfRange
)

type jetPair struct {
	jet1 model.JetSpeed
	jet2 model.JetSpeed
}

var jetCodes = map[string]jetPair{
	"00": {model.JetOff, model.JetOff},
	"01": {model.JetLow, model.JetOff},
	"02": {model.JetHigh, model.JetOff},
	"08": {model.JetOff, model.JetLow},
	"09": {model.JetLow, model.JetLow},
	"0A": {model.JetHigh, model.JetLow},
}

var ledCodes = map[string]model.LEDState{
	"00": model.LEDOff,
	"03": model.LEDCycle,
}

// Decode maps the panel-update buffer onto a DecodedState. An unrecognized
// LED code fails the whole decode; an unrecognized jet code does not.
func Decode(panel model.RawBuffer) (model.DecodedState, error) {
	st, err := decodeFields(panel)
	if err != nil {
		return model.DecodedState{}, err
	}
	if st.LED, err = LED(panel); err != nil {
		return model.DecodedState{}, err
	}
	return st, nil
}

// DecodePartial is Decode for display: an unrecognized LED code is reported
// as LEDUnknown instead of failing the other fields.
func DecodePartial(panel model.RawBuffer) (model.DecodedState, error) {
	st, err := decodeFields(panel)
	if err != nil {
		return model.DecodedState{}, err
	}
	led, err := LED(panel)
	switch {
	case errors.Is(err, ErrUnknownLEDCode):
		st.LED = model.LEDUnknown
	case err != nil:
		return model.DecodedState{}, err
	default:
		st.LED = led
	}
	return st, nil
}

func decodeFields(panel model.RawBuffer) (model.DecodedState, error) {
	var st model.DecodedState
	var err error

	if st.Unit, err = TemperatureUnit(panel); err != nil {
		return model.DecodedState{}, err
	}
	if st.CurrentTemperature, err = CurrentTemperature(panel); err != nil {
		return model.DecodedState{}, err
	}
	if st.TargetTemperature, err = TargetTemperature(panel); err != nil {
		return model.DecodedState{}, err
	}
	if st.HeatMode, err = HeatMode(panel); err != nil {
		return model.DecodedState{}, err
	}
	if st.Jets, err = Jets(panel); err != nil {
		return model.DecodedState{}, err
	}
	return st, nil
}

func TemperatureUnit(panel model.RawBuffer) (model.TemperatureUnit, error) {
	code, err := panel.Field(OffsetTemperatureUnit)
	if err != nil {
		return model.UnitUnknown, err
	}
	switch code {
	case "03":
		return model.UnitCelsius, nil
	case "02":
		return model.UnitFahrenheit, nil
	default:
		return model.UnitUnknown, nil
	}
}

func CurrentTemperature(panel model.RawBuffer) (int, error) {
	return temperatureAt(panel, OffsetCurrentTemperature)
}

func TargetTemperature(panel model.RawBuffer) (int, error) {
	return temperatureAt(panel, OffsetTargetTemperature)
}

func temperatureAt(panel model.RawBuffer, offset int) (int, error) {
	code, err := panel.Field(offset)
	if err != nil {
		return 0, err
	}
	return Temperature(code)
}

// Temperature converts a field reported in half-degree units to whole degrees.
func Temperature(code string) (int, error) {
	v, err := strconv.ParseUint(code, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTemperature, code)
	}
	return int(v) / 2, nil
}

func HeatMode(panel model.RawBuffer) (model.HeatMode, error) {
	code, err := panel.Field(OffsetHeatMode)
	if err != nil {
		return model.HeatModeUnknown, err
	}
	switch code {
	case "00":
		return model.HeatModeReady, nil
	case "01":
		return model.HeatModeRest, nil
	default:
		return model.HeatModeUnknown, nil
	}
}

func Jets(panel model.RawBuffer) (model.JetReading, error) {
	code, err := panel.Field(OffsetJetInfo)
	if err != nil {
		return model.JetReading{}, err
	}
	pair, ok := jetCodes[code]
	if !ok {
		return model.JetReading{Code: code}, nil
	}
	return model.JetReading{Code: code, Recognized: true, Jet1: pair.jet1, Jet2: pair.jet2}, nil
}

func LED(panel model.RawBuffer) (model.LEDState, error) {
	code, err := panel.Field(OffsetLED)
	if err != nil {
		return 0, err
	}
	state, ok := ledCodes[code]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLEDCode, code)
	}
	return state, nil
}

// JetCode is the inverse of the jet table, used when rendering panel buffers.
func JetCode(jet1, jet2 model.JetSpeed) (string, bool) {
	for code, pair := range jetCodes {
		if pair.jet1 == jet1 && pair.jet2 == jet2 {
			return code, true
		}
	}
	return "", false
}

// LEDCode is the inverse of the LED table.
func LEDCode(state model.LEDState) (string, bool) {
	for code, s := range ledCodes {
		if s == state {
			return code, true
		}
	}
	return "", false
}
