package orbit

import (
	"math"
	"time"
)

// JulianDate converts t to a Julian Date
func JulianDate(t time.Time) float64 {
	t = t.UTC()

	Y := float64(t.Year())
	M := float64(t.Month())
	D := float64(t.Day())

	dayFraction := float64(t.Hour())/24.0 +
		float64(t.Minute())/1440.0 +
		float64(t.Second())/SecondsPerDay +
		float64(t.Nanosecond())/(SecondsPerDay*1e9)

	// January and February count as months 13 and 14 of the previous year
	if M <= 2 {
		Y--
		M += 12
	}

	A := math.Floor(Y / 100.0)
	B := 2 - A + math.Floor(A/4.0)

	jd := math.Floor(365.25*(Y+4716)) + math.Floor(30.6001*(M+1)) + D + B - 1524.5
	return jd + dayFraction
}

// DaysSinceJ2000 returns the (possibly negative) number of days between the
// J2000 epoch and t
func DaysSinceJ2000(t time.Time) float64 {
	return JulianDate(t) - J2000Epoch
}

// NormalizeRadians wraps angle into [0, 2π)
func NormalizeRadians(angle float64) float64 {
	angle = math.Mod(angle, 2*math.Pi)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	return angle
}

// MeanMotion returns radians per day for an orbital period in days.
// Non-positive periods have no motion.
func MeanMotion(periodDays float64) float64 {
	if periodDays <= 0 {
		return 0
	}
	return 2 * math.Pi / periodDays
}

// InitialAngle seeds an orbital phase from the mean anomaly at time t:
// (2π/T · daysSinceEpoch) mod 2π. Bodies seeded from the same t start in
// plausible relative phases instead of all lining up at angle zero.
func InitialAngle(periodDays float64, t time.Time) float64 {
	return NormalizeRadians(MeanMotion(periodDays) * DaysSinceJ2000(t))
}
