package constants

const SpeedOfLight float64 = 299792458.        // [m / s]
const ElectronRestEnergyEV float64 = 510998.95 // [eV]

// atomic units
const HartreeEV float64 = 27.2116 // [eV]
const EVToAU float64 = 1. / HartreeEV
const AUToMeC2 float64 = HartreeEV / ElectronRestEnergyEV

// multiplied (EC) or divided (AU to w0) by the reference angular frequency [rad / s]
const FieldToAUPerOmega float64 = 3.314742578e-15 // hbar omega / (me c^2 alpha^3)
const AUFrequencyTimesOmega float64 = 4.134137172e+16 // alpha^2 me c^2 / hbar
