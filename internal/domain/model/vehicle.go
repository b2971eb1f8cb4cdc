package model

import (
	"fmt"
	"slices"
	"strings"
)

var (
	VehicleYears = []string{"2024", "2023", "2022", "2021", "2020", "2019"}

	VehicleVersions = []string{
		"200 TSI Comfortline",
		"200 TSI Highline",
		"250 TSI Highline",
		"1.0 TSI Sense",
		"1.6 Sense",
		"1.6 Comfortline",
	}
)

// VehicleInfo identifies the T-Cross configuration a conversation is about.
type VehicleInfo struct {
	Year    string `json:"year"`
	Version string `json:"version"`
}

func DefaultVehicle() VehicleInfo {
	return VehicleInfo{Year: VehicleYears[0], Version: VehicleVersions[0]}
}

func (v VehicleInfo) Label() string {
	return strings.TrimSpace(fmt.Sprintf("VW T-Cross %s %s", v.Version, v.Year))
}

func (v VehicleInfo) IsZero() bool { return v.Year == "" && v.Version == "" }

// Valid reports whether year and version are part of the catalog.
func (v VehicleInfo) Valid() bool {
	return slices.Contains(VehicleYears, v.Year) && slices.Contains(VehicleVersions, v.Version)
}

// ParseVehicle reads "<year> <version>" as typed in chat commands.
func ParseVehicle(s string) (VehicleInfo, bool) {
	s = strings.TrimSpace(s)
	year, version, ok := strings.Cut(s, " ")
	if !ok {
		return VehicleInfo{}, false
	}
	v := VehicleInfo{Year: year, Version: strings.TrimSpace(version)}
	for _, known := range VehicleVersions {
		if strings.EqualFold(known, v.Version) {
			v.Version = known
		}
	}
	return v, v.Valid()
}
