package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yarb/sunburn/governor"
)

const testCalibYAML = `cores: 2
core_limits: [16, 31.0, 47]
multipliers: [0, 4.0, 1.0]
brackets:
  - [0, 0]
  - [1, 0]
  - [2, 0]
deadzone: 2.0
`

func writeCalibFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCalibrationEmptyPathUsesDefaults(t *testing.T) {
	calib, err := loadCalibration("")
	require.NoError(t, err)
	assert.Equal(t, governor.DefaultCalibration(), calib)
}

func TestLoadCalibrationFromFile(t *testing.T) {
	calib, err := loadCalibration(writeCalibFile(t, testCalibYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, calib.Cores)
	assert.Equal(t, []float64{16, 31.0, 47}, calib.CoreLimits)
	assert.Equal(t, 2.0, calib.Deadzone)
}

func TestLoadCalibrationMissingFile(t *testing.T) {
	_, err := loadCalibration(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadCalibrationRejectsUnknownFields(t *testing.T) {
	_, err := loadCalibration(writeCalibFile(t, testCalibYAML+"surprise: true\n"))
	assert.Error(t, err)
}

func TestLoadCalibrationRejectsInvalidTable(t *testing.T) {
	// Non-monotonic core limits fail validation.
	bad := `cores: 2
core_limits: [16, 50, 47]
multipliers: [0, 4.0, 1.0]
brackets:
  - [0, 0]
  - [1, 0]
  - [2, 0]
deadzone: 2.0
`
	_, err := loadCalibration(writeCalibFile(t, bad))
	assert.Error(t, err)
}
