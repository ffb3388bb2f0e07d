package types

import (
	"fmt"
)

// CurrentOptionsVersion is the current version of the options struct.
// Increment this value when adding new fields that require default values.
const CurrentOptionsVersion = 1

const (
	DefaultScanIntervalMinutes = 60
	DefaultTarievenEnabled     = true
)

// Options are the runtime options of an Entry. They are always replaced as a
// whole, never merged.
type Options struct {
	// How often (in minutes) the account is polled
	ScanIntervalMinutes int `json:"scanInterval"`

	// Meter readings, only meaningful when the entry has the capability
	MeterstandStroomEnabled bool `json:"meterstandStroomEnabled"`
	MeterstandGasEnabled    bool `json:"meterstandGasEnabled"`

	TarievenEnabled bool `json:"tarievenEnabled"`
}

// DefaultOptions returns the options an entry is created with.
func DefaultOptions(hasPower, hasGas bool) Options {
	return Options{
		ScanIntervalMinutes:     DefaultScanIntervalMinutes,
		MeterstandStroomEnabled: hasPower,
		MeterstandGasEnabled:    hasGas,
		TarievenEnabled:         DefaultTarievenEnabled,
	}
}

// ScanInterval is one of the polling cadences a user can pick.
type ScanInterval struct {
	Minutes int    `json:"minutes"`
	Label   string `json:"label"`
}

// ScanIntervals are the only cadences offered in the options form.
var ScanIntervals = []ScanInterval{
	{Minutes: 60, Label: "elk uur"},
	{Minutes: 1440, Label: "elke dag"},
	{Minutes: 10080, Label: "elke week"},
}

// ValidScanInterval reports whether minutes is one of ScanIntervals.
func ValidScanInterval(minutes int) bool {
	for _, si := range ScanIntervals {
		if si.Minutes == minutes {
			return true
		}
	}
	return false
}

// MigrateOptions migrates the options to the current version.
// It returns the migrated options, a boolean indicating if changes were made, and an error if migration failed.
func MigrateOptions(o Options, currentVersion int) (Options, bool, error) {
	if currentVersion >= CurrentOptionsVersion {
		return o, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentOptionsVersion; version++ {
		switch version {
		case 1:
			// version 1: scan interval became required
			if o.ScanIntervalMinutes <= 0 {
				o.ScanIntervalMinutes = DefaultScanIntervalMinutes
				migrated = true
			}
		default:
			return o, false, fmt.Errorf("unknown options version: %d", version)
		}
	}

	return o, migrated, nil
}
