package ezo

// Conversion factors from EC (µS/cm) to derived concentration estimates.
// These are fixed linear approximations, not sensor-reported values; the
// bridge disables the circuit's own TDS/SAL outputs to avoid confusing the
// two scales.
const (
	// TDSFactor maps EC to a total-dissolved-solids estimate in ppm.
	// The 0.5 (NaCl) scale; freshwater meters sometimes use 0.7.
	TDSFactor = 0.5

	// SalinityFactor maps EC to a salinity estimate in ppm.
	SalinityFactor = 0.0005
)

// DeriveTDS estimates total dissolved solids (ppm) from EC in µS/cm.
func DeriveTDS(ec float64) float64 {
	return ec * TDSFactor
}

// DeriveSalinity estimates salinity (ppm) from EC in µS/cm.
func DeriveSalinity(ec float64) float64 {
	return ec * SalinityFactor
}
