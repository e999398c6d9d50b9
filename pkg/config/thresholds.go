package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// thresholdsFile is the on-disk YAML shape.
type thresholdsFile struct {
	Signal Thresholds `yaml:"signal"`
}

// LoadThresholds reads signal thresholds from a YAML file. Zero-valued
// fields fall back to the defaults so partial files stay valid.
func LoadThresholds(path string) (*Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read thresholds file: %w", err)
	}

	var file thresholdsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse thresholds file: %w", err)
	}

	th := file.Signal
	def := DefaultThresholds()
	if th.VolumeRatio == 0 {
		th.VolumeRatio = def.VolumeRatio
	}
	if th.RSILong == 0 {
		th.RSILong = def.RSILong
	}
	if th.RSIShort == 0 {
		th.RSIShort = def.RSIShort
	}
	if th.ADXMin == 0 {
		th.ADXMin = def.ADXMin
	}
	if th.ADXMax == 0 {
		th.ADXMax = def.ADXMax
	}
	if th.Overextension == 0 {
		th.Overextension = def.Overextension
	}
	if th.WickRatio == 0 {
		th.WickRatio = def.WickRatio
	}
	if th.VolatilityCap == 0 {
		th.VolatilityCap = def.VolatilityCap
	}
	if th.DeadHours == nil {
		th.DeadHours = def.DeadHours
	}
	if th.VolumeLookback == 0 {
		th.VolumeLookback = def.VolumeLookback
	}
	return &th, nil
}
