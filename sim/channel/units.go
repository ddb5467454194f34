package channel

import "math"

// boltzmann is the Boltzmann constant in J/K.
const boltzmann = 1.380649e-23

// DBmToMilliwatt converts a power level in dBm to milliwatts.
func DBmToMilliwatt(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

// MilliwattToDBm converts milliwatts to dBm. Zero power maps to -Inf.
func MilliwattToDBm(mw float64) float64 {
	return 10 * math.Log10(mw)
}

// ThermalNoiseDBm is the Johnson-Nyquist noise power over bandwidthHz at
// temperatureC degrees Celsius.
func ThermalNoiseDBm(bandwidthHz, temperatureC float64) float64 {
	kelvin := temperatureC + 273.15
	watts := boltzmann * kelvin * bandwidthHz
	return MilliwattToDBm(watts * 1000)
}

// RatioToDB converts a linear power ratio to decibels.
func RatioToDB(ratio float64) float64 {
	return 10 * math.Log10(ratio)
}

// DBToRatio converts decibels to a linear power ratio.
func DBToRatio(db float64) float64 {
	return math.Pow(10, db/10)
}
