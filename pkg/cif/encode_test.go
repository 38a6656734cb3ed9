package cif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopRecordsRoundTrip(t *testing.T) {
	lines := []string{
		record(map[int]string{
			0: "LO", 2: "EUSTON", 10: "1000H", 15: "1001", 19: "1", 22: "FL",
			25: "2H", 29: "TB", 41: "1",
		}),
		record(map[int]string{
			0: "LI", 2: "MKNSCEN", 10: "1030 ", 15: "1032H", 25: "1030", 29: "1032",
			33: "4", 36: "FL", 39: "SL", 42: "T", 54: "2", 56: "1H",
		}),
		record(map[int]string{
			0: "LI", 2: "WLSDNJ", 20: "1015H", 25: "0000", 29: "0000",
		}),
		record(map[int]string{
			0: "LT", 2: "MNCRPIC", 10: "1205 ", 15: "1205", 19: "13", 22: "UM", 25: "TF",
		}),
	}

	for _, line := range lines {
		var encoded string

		switch RecordType(line) {
		case "LO":
			decoded, err := DecodeOriginLocation(line)
			require.NoError(t, err)
			encoded = decoded.Encode()
		case "LI":
			decoded, err := DecodeIntermediateLocation(line)
			require.NoError(t, err)
			encoded = decoded.Encode()
		case "LT":
			decoded, err := DecodeTerminatingLocation(line)
			require.NoError(t, err)
			encoded = decoded.Encode()
		}

		assert.Equal(t, line, encoded)
	}
}

func TestScheduledTimeEncoding(t *testing.T) {
	parsed, err := ParseScheduledTime("1810H")
	require.NoError(t, err)
	assert.Equal(t, "1810H", parsed.EncodeScheduled())

	parsed, err = ParseScheduledTime("1810 ")
	require.NoError(t, err)
	assert.Equal(t, "1810 ", parsed.EncodeScheduled())

	assert.Equal(t, "     ", Time{}.EncodeScheduled())
}

func TestPublicTimeEncoding(t *testing.T) {
	parsed, err := ParsePublicTime("1810")
	require.NoError(t, err)
	assert.Equal(t, "1810", parsed.EncodePublic())

	// Unset public times write back as the 0000 convention.
	assert.Equal(t, "0000", Time{}.EncodePublic())
}

func TestTimeArithmeticWrapsMidnight(t *testing.T) {
	late := Time{Hour: 23, Minute: 58, Valid: true}

	assert.Equal(t, "00:03:00", late.AddSeconds(5*60).String())
	assert.Equal(t, "23:57:30", TimeFromSeconds(late.Seconds()-30).String())
}
