package main

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Yarb/sunburn/governor"
)

// loadCalibration reads a machine calibration file. An empty path selects
// the built-in table.
func loadCalibration(path string) (governor.Calibration, error) {
	if path == "" {
		return governor.DefaultCalibration(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return governor.Calibration{}, fmt.Errorf("reading calibration file: %w", err)
	}

	var calib governor.Calibration
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&calib); err != nil {
		return governor.Calibration{}, fmt.Errorf("parsing calibration file %s: %w", path, err)
	}

	if err := calib.Validate(); err != nil {
		return governor.Calibration{}, fmt.Errorf("calibration file %s: %w", path, err)
	}
	return calib, nil
}
