package model

import (
	"fmt"
	"strings"
	"time"
)

// JetReading is the decoded jet-info byte. Recognized is false when the code
// has no entry in the jet table, in which case Jet1 and Jet2 carry no meaning.
type JetReading struct {
	Code       string
	Recognized bool
	Jet1       JetSpeed
	Jet2       JetSpeed
}

type DecodedState struct {
	Unit               TemperatureUnit
	CurrentTemperature int
	TargetTemperature  int
	HeatMode           HeatMode
	Jets               JetReading
	LED                LEDState
}

type Temperatures struct {
	Unit    TemperatureUnit `json:"unit"`
	Current int             `json:"current"`
	Target  int             `json:"target"`
}

// Status is the overall snapshot handed to the host layer.
type Status struct {
	DeviceID             string          `json:"device_id"`
	Unit                 TemperatureUnit `json:"unit"`
	CurrentTemperature   int             `json:"current_temperature"`
	TargetTemperature    int             `json:"target_temperature"`
	HeatMode             HeatMode        `json:"heat_mode"`
	Jet1                 string          `json:"jet1"`
	Jet2                 string          `json:"jet2"`
	LED                  LEDState        `json:"led"`
	ChemicalCycleRunning bool            `json:"chemical_cycle_running"`
	CapturedAt           time.Time       `json:"captured_at"`
}

func NewStatus(deviceID string, st DecodedState, capturedAt time.Time, cycleRunning bool) Status {
	jet1, jet2 := "unknown", "unknown"
	if st.Jets.Recognized {
		jet1, jet2 = st.Jets.Jet1.String(), st.Jets.Jet2.String()
	}
	return Status{
		DeviceID:             deviceID,
		Unit:                 st.Unit,
		CurrentTemperature:   st.CurrentTemperature,
		TargetTemperature:    st.TargetTemperature,
		HeatMode:             st.HeatMode,
		Jet1:                 jet1,
		Jet2:                 jet2,
		LED:                  st.LED,
		ChemicalCycleRunning: cycleRunning,
		CapturedAt:           capturedAt,
	}
}

func (s Status) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Target Temp : %d%s\n", s.TargetTemperature, s.Unit)
	fmt.Fprintf(&sb, "Current Temp: %d%s\n", s.CurrentTemperature, s.Unit)
	fmt.Fprintf(&sb, "Heat Mode   : %s\n", s.HeatMode)
	fmt.Fprintf(&sb, "Jet 1       : %s\n", s.Jet1)
	fmt.Fprintf(&sb, "Jet 2       : %s\n", s.Jet2)
	fmt.Fprintf(&sb, "LED status  : %s\n", s.LED)
	return sb.String()
}
