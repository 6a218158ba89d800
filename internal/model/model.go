package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidJetSpeed = errors.New("invalid jet speed")
	ErrInvalidLEDState = errors.New("invalid LED state")
)

type TemperatureUnit string

const (
	UnitCelsius    TemperatureUnit = "c"
	UnitFahrenheit TemperatureUnit = "f"
	UnitUnknown    TemperatureUnit = ""
)

type HeatMode string

const (
	HeatModeReady   HeatMode = "ready"
	HeatModeRest    HeatMode = "rest"
	HeatModeUnknown HeatMode = "unknown"
)

// JetSpeed ordinals are the positions in the pump's Off -> Low -> High toggle order.
type JetSpeed int

const (
	JetOff JetSpeed = iota
	JetLow
	JetHigh
)

var jetSpeedNames = map[JetSpeed]string{
	JetOff:  "off",
	JetLow:  "low",
	JetHigh: "high",
}

func (s JetSpeed) Valid() bool {
	_, ok := jetSpeedNames[s]
	return ok
}

func (s JetSpeed) String() string {
	if name, ok := jetSpeedNames[s]; ok {
		return name
	}
	return fmt.Sprintf("JetSpeed(%d)", int(s))
}

func (s JetSpeed) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidJetSpeed, int(s))
	}
	return []byte(s.String()), nil
}

func (s *JetSpeed) UnmarshalText(text []byte) error {
	parsed, err := ParseJetSpeed(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseJetSpeed accepts off/low/high as well as the panel's one/two labels.
func ParseJetSpeed(s string) (JetSpeed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return JetOff, nil
	case "low", "one":
		return JetLow, nil
	case "high", "two":
		return JetHigh, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidJetSpeed, s)
	}
}

// LEDState ordinals follow the order the LED button steps through.
// LEDFade is the highest ordinal. LEDUnknown is a panel code with no entry in
// the LED table; it is never a valid command target.
type LEDState int

const (
	LEDUnknown LEDState = iota
	LEDOff
	LEDPurple
	LEDBlue
	LEDRed
	LEDGreen
	LEDCycle
	LEDFade
)

var ledStateNames = map[LEDState]string{
	LEDOff:    "off",
	LEDPurple: "purple",
	LEDBlue:   "blue",
	LEDRed:    "red",
	LEDGreen:  "green",
	LEDCycle:  "cycle",
	LEDFade:   "fade",
}

func (s LEDState) Valid() bool {
	_, ok := ledStateNames[s]
	return ok
}

func (s LEDState) String() string {
	if name, ok := ledStateNames[s]; ok {
		return name
	}
	if s == LEDUnknown {
		return "unknown"
	}
	return fmt.Sprintf("LEDState(%d)", int(s))
}

func (s LEDState) MarshalText() ([]byte, error) {
	if s == LEDUnknown {
		return []byte("unknown"), nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLEDState, int(s))
	}
	return []byte(s.String()), nil
}

func (s *LEDState) UnmarshalText(text []byte) error {
	parsed, err := ParseLEDState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseLEDState(s string) (LEDState, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for state, name := range ledStateNames {
		if name == want {
			return state, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLEDState, s)
}

// ButtonCommand is a simulated panel button. The value is the relay's button code.
type ButtonCommand int

const (
	ButtonJet1 ButtonCommand = 4
	ButtonJet2 ButtonCommand = 5
	ButtonLED  ButtonCommand = 17
)

func (b ButtonCommand) String() string {
	switch b {
	case ButtonJet1:
		return "jet1"
	case ButtonJet2:
		return "jet2"
	case ButtonLED:
		return "led"
	default:
		return fmt.Sprintf("button(%d)", int(b))
	}
}
