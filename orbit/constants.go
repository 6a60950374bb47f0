package orbit

// Scene and astronomical constants
const (
	// DistanceDivider converts raw semimajor axis values (meters in the body
	// catalog) into scene units. Earth lands near 150 units from the anchor.
	DistanceDivider = 1e9

	J2000Epoch     = 2451545.0 // J2000 epoch in Julian days (January 1, 2000, 12:00 TT)
	SecondsPerDay  = 86400.0
	DaysPerCentury = 36525.0

	// PathSegments is the default number of samples on an orbit line
	PathSegments = 128
)
