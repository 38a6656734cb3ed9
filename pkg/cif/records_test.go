package cif

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record builds an 80 character line with each value placed at its
// column offset.
func record(values map[int]string) string {
	buffer := []byte(strings.Repeat(" ", 80))
	for offset, value := range values {
		copy(buffer[offset:], value)
	}

	return string(buffer)
}

func TestDecodeHeader(t *testing.T) {
	line := record(map[int]string{0: "HD", 30: "DFROC1A", 37: "DFROC19", 46: "U"})

	header, err := DecodeHeader(line)
	require.NoError(t, err)

	assert.Equal(t, "DFROC1A", header.CurrentFileRef)
	assert.Equal(t, "DFROC19", header.LastFileRef)
	assert.Equal(t, "U", header.ExtractType)
	assert.False(t, header.IsFullExtract())

	full, err := DecodeHeader(record(map[int]string{0: "HD", 30: "DFROC1A", 46: "F"}))
	require.NoError(t, err)
	assert.True(t, full.IsFullExtract())
}

func TestDecodeHeaderRejectsUnknownExtractType(t *testing.T) {
	line := record(map[int]string{0: "HD", 30: "DFROC1A", 46: "X"})

	_, err := DecodeHeader(line)
	require.Error(t, err)

	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "ExtractType", malformed.Field)
	assert.Equal(t, 46, malformed.Offset)
}

func TestDecodeBasicSchedule(t *testing.T) {
	line := record(map[int]string{
		0: "BS", 2: "N", 3: "C12345", 9: "240610", 15: "241213", 21: "1111100",
		29: "P", 30: "XX", 32: "1A23", 41: "12345678", 50: "DMU", 53: "390",
		57: "125", 60: "D", 79: "P",
	})

	schedule, err := DecodeBasicSchedule(line)
	require.NoError(t, err)

	assert.Equal(t, "N", schedule.TransactionType)
	assert.Equal(t, "C12345", schedule.TrainUID)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), schedule.RunsFrom)
	assert.Equal(t, time.Date(2024, 12, 13, 0, 0, 0, 0, time.UTC), schedule.RunsTo)
	assert.Equal(t, "1111100", schedule.DaysRun)
	assert.Equal(t, "P", schedule.TrainStatus)
	assert.Equal(t, "XX", schedule.TrainCategory)
	assert.Equal(t, "1A23", schedule.TrainIdentity)
	assert.Equal(t, "12345678", schedule.TrainServiceCode)
	assert.Equal(t, "DMU", schedule.PowerType)
	assert.Equal(t, "390", schedule.TimingLoad)
	assert.Equal(t, 125, schedule.Speed)
	assert.Equal(t, "D", schedule.OperatingCharacteristics)
	assert.Equal(t, "P", schedule.STPIndicator)
}

func TestDecodeBasicScheduleBadDate(t *testing.T) {
	line := record(map[int]string{
		0: "BS", 2: "N", 3: "C12345", 9: "24061X", 15: "241213", 21: "1111100", 79: "P",
	})

	_, err := DecodeBasicSchedule(line)
	require.Error(t, err)

	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "BS", malformed.RecordType)
	assert.Equal(t, "RunsFrom", malformed.Field)
	assert.Equal(t, 9, malformed.Offset)
}

func TestDecodeScheduleExtra(t *testing.T) {
	line := record(map[int]string{0: "BX", 11: "VT"})

	extra, err := DecodeScheduleExtra(line)
	require.NoError(t, err)
	assert.Equal(t, "VT", extra.ATOCCode)
}

func TestDecodeOriginLocation(t *testing.T) {
	line := record(map[int]string{
		0: "LO", 2: "EUSTON", 10: "1000H", 15: "1001", 19: "1", 22: "FL",
		25: "2H", 29: "TB", 41: "1",
	})

	location, err := DecodeOriginLocation(line)
	require.NoError(t, err)

	assert.Equal(t, "EUSTON", location.Tiploc)
	assert.Equal(t, "10:00:30", location.ScheduledDeparture.String())
	assert.Equal(t, "10:01:00", location.PublicDeparture.String())
	assert.Equal(t, "1", location.Platform)
	assert.Equal(t, "FL", location.Line)
	assert.Equal(t, "2H", location.EngineeringAllowance)
	assert.Equal(t, "TB", location.Activity)
	assert.Equal(t, "1", location.PerformanceAllowance)
}

func TestDecodeIntermediateLocationPass(t *testing.T) {
	line := record(map[int]string{
		0: "LI", 2: "WLSDNJ", 20: "1015H", 25: "0000", 29: "0000",
	})

	location, err := DecodeIntermediateLocation(line)
	require.NoError(t, err)

	assert.Equal(t, "WLSDNJ", location.Tiploc)
	assert.False(t, location.ScheduledArrival.Valid)
	assert.False(t, location.ScheduledDeparture.Valid)
	assert.Equal(t, "10:15:30", location.ScheduledPass.String())

	// "0000" public times mean unset, not midnight.
	assert.False(t, location.PublicArrival.Valid)
	assert.False(t, location.PublicDeparture.Valid)
}

func TestDecodeIntermediateLocationCall(t *testing.T) {
	line := record(map[int]string{
		0: "LI", 2: "MKNSCEN", 10: "1030 ", 15: "1032 ", 25: "1030", 29: "1032",
		33: "4", 42: "T",
	})

	location, err := DecodeIntermediateLocation(line)
	require.NoError(t, err)

	assert.Equal(t, "MKNSCEN", location.Tiploc)
	assert.Equal(t, "10:30:00", location.ScheduledArrival.String())
	assert.Equal(t, "10:32:00", location.ScheduledDeparture.String())
	assert.False(t, location.ScheduledPass.Valid)
	assert.Equal(t, "4", location.Platform)
	assert.Equal(t, "T", location.Activity)
}

func TestDecodeTerminatingLocation(t *testing.T) {
	line := record(map[int]string{
		0: "LT", 2: "MNCRPIC", 10: "1205 ", 15: "1205", 19: "13", 25: "TF",
	})

	location, err := DecodeTerminatingLocation(line)
	require.NoError(t, err)

	assert.Equal(t, "MNCRPIC", location.Tiploc)
	assert.Equal(t, "12:05:00", location.ScheduledArrival.String())
	assert.Equal(t, "12:05:00", location.PublicArrival.String())
	assert.Equal(t, "13", location.Platform)
	assert.Equal(t, "TF", location.Activity)
}

func TestDecodeAssociation(t *testing.T) {
	line := record(map[int]string{
		0: "AA", 2: "N", 3: "C12345", 9: "C67890", 15: "240610", 21: "241213",
		27: "1111100", 34: "JJ", 36: "N", 37: "CREWE", 79: "P",
	})

	association, err := DecodeAssociation(line)
	require.NoError(t, err)

	assert.Equal(t, "N", association.TransactionType)
	assert.Equal(t, "C12345", association.MainUID)
	assert.Equal(t, "C67890", association.AssociatedUID)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), association.DateFrom)
	assert.Equal(t, time.Date(2024, 12, 13, 0, 0, 0, 0, time.UTC), association.DateTo)
	assert.Equal(t, "1111100", association.DaysRun)
	assert.Equal(t, "JJ", association.Category)
	assert.Equal(t, "N", association.DateIndicator)
	assert.Equal(t, "CREWE", association.Location)
	assert.Equal(t, "P", association.STPIndicator)
}

func TestDecodeTruncatedLineNamesField(t *testing.T) {
	_, err := DecodeBasicSchedule("BSNC99999")

	var malformed *MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "BS", malformed.RecordType)
	assert.NotEmpty(t, malformed.Field)
}

func TestSplitTiplocSuffix(t *testing.T) {
	base, suffix := SplitTiplocSuffix("CREWE")
	assert.Equal(t, "CREWE", base)
	assert.Equal(t, "1", suffix)

	// Circular workings repeat a location with a trailing digit in the
	// eighth column.
	base, suffix = SplitTiplocSuffix("GLGQHL 2")
	assert.Equal(t, "GLGQHL", base)
	assert.Equal(t, "2", suffix)
}

func TestRecordType(t *testing.T) {
	assert.Equal(t, "BS", RecordType("BSN..."))
	assert.Equal(t, "", RecordType("B"))
}
