package cif

import (
	"fmt"
)

const lineLength = 80

func padLine(line string) string {
	return fmt.Sprintf("%-*s", lineLength, line)
}

// Encode renders an LO record back into its fixed-width form. Decoding
// a line and re-encoding it reproduces the original field bytes.
func (l OriginLocation) Encode() string {
	return padLine(fmt.Sprintf("LO%-8s%s%s%-3s%-3s%-2s%-2s%-12s%-2s",
		l.Tiploc,
		l.ScheduledDeparture.EncodeScheduled(),
		l.PublicDeparture.EncodePublic(),
		l.Platform,
		l.Line,
		l.EngineeringAllowance,
		l.PathingAllowance,
		l.Activity,
		l.PerformanceAllowance,
	))
}

func (l IntermediateLocation) Encode() string {
	return padLine(fmt.Sprintf("LI%-8s%s%s%s%s%s%-3s%-3s%-3s%-12s%-2s%-2s%-2s",
		l.Tiploc,
		l.ScheduledArrival.EncodeScheduled(),
		l.ScheduledDeparture.EncodeScheduled(),
		l.ScheduledPass.EncodeScheduled(),
		l.PublicArrival.EncodePublic(),
		l.PublicDeparture.EncodePublic(),
		l.Platform,
		l.Line,
		l.Path,
		l.Activity,
		l.EngineeringAllowance,
		l.PathingAllowance,
		l.PerformanceAllowance,
	))
}

func (l TerminatingLocation) Encode() string {
	return padLine(fmt.Sprintf("LT%-8s%s%s%-3s%-3s%-12s",
		l.Tiploc,
		l.ScheduledArrival.EncodeScheduled(),
		l.PublicArrival.EncodePublic(),
		l.Platform,
		l.Path,
		l.Activity,
	))
}
