package adif

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullduplex/carrierwave/internal/models"
)

func TestParseBasicRecord(t *testing.T) {
	input := `<CALL:4>W1AW<BAND:3>20m<MODE:2>CW<QSO_DATE:8>20250814<TIME_ON:4>1830<RST_SENT:3>599<eor>`

	records, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "W1AW", rec["CALL"])
	assert.Equal(t, "20m", rec["BAND"])
	assert.Equal(t, "CW", rec["MODE"])
	assert.Equal(t, "599", rec["RST_SENT"])
}

func TestParseSkipsHeader(t *testing.T) {
	input := "Some log export\n<ADIF_VER:5>3.1.4<PROGRAMID:4>test<eoh>\n" +
		"<CALL:6>KD2ABC<BAND:3>40m<MODE:3>SSB<QSO_DATE:8>20250101<eor>\n"

	records, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "KD2ABC", records[0]["CALL"])
	assert.NotContains(t, records[0], "ADIF_VER")
}

func TestParseMultipleRecordsWithNoise(t *testing.T) {
	input := `<CALL:4>W1AW<BAND:3>20m<MODE:2>CW<QSO_DATE:8>20250814<eor>
	some stray text
	<call:6>n0call<band:3>40m<mode:3>FT8<qso_date:8>20250815<eor>`

	records, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Field names are case-insensitive
	assert.Equal(t, "n0call", records[1]["CALL"])
	assert.Equal(t, "FT8", records[1]["MODE"])
}

func TestParseTruncatesToDeclaredLength(t *testing.T) {
	// Declared length 4 but 6 characters follow; the extra two are noise
	input := `<CALL:4>W1AWXY<BAND:3>20m<MODE:2>CW<QSO_DATE:8>20250814<eor>`

	records, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "W1AW", records[0]["CALL"])
}

func TestParseTypedField(t *testing.T) {
	input := `<CALL:4:S>W1AW<BAND:3>20m<MODE:2>CW<QSO_DATE:8>20250814<eor>`

	records, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "W1AW", records[0]["CALL"])
}

func TestTimestampNormalizesShortTime(t *testing.T) {
	rec := Record{"QSO_DATE": "20250814", "TIME_ON": "1830"}
	ts, err := rec.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 14, 18, 30, 0, 0, time.UTC), ts)

	// Date only falls back to midnight
	rec = Record{"QSO_DATE": "20250814"}
	ts, err = rec.Timestamp()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC), ts)
}

func TestRecordQSO(t *testing.T) {
	rec := Record{
		"CALL":             "w1aw",
		"BAND":             "20M",
		"MODE":             "cw",
		"QSO_DATE":         "20250814",
		"TIME_ON":          "183000",
		"FREQ":             "14.0305",
		"GRIDSQUARE":       "fn31pr",
		"SIG_INFO":         "US-1234",
		"APP_QRZLOG_LOGID": "987654",
	}

	qso, err := rec.QSO()
	require.NoError(t, err)

	assert.Equal(t, "W1AW", qso.Callsign)
	assert.Equal(t, "20m", qso.Band)
	assert.Equal(t, "CW", qso.Mode)
	assert.InDelta(t, 14030.5, qso.FrequencyKHz, 0.01)
	assert.Equal(t, "FN31PR", qso.GridSquare)
	assert.Equal(t, "US-1234", qso.TheirPark)
	require.NotNil(t, qso.QRZLogID)
	assert.Equal(t, int64(987654), *qso.QRZLogID)
}

func TestRecordQSORejectsIncomplete(t *testing.T) {
	rec := Record{"CALL": "W1AW", "QSO_DATE": "20250814"}
	_, err := rec.QSO()
	assert.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	logID := int64(42)
	in := &models.QSO{
		Callsign:     "VE3XYZ",
		Band:         "40m",
		Mode:         "SSB",
		FrequencyKHz: 7200,
		RSTSent:      "59",
		RSTRcvd:      "57",
		Timestamp:    time.Date(2025, 8, 14, 18, 30, 15, 0, time.UTC),
		Name:         "Pat",
		GridSquare:   "FN03",
		TheirPark:    "CA-0123",
		MyPark:       "US-4567",
		MyGrid:       "FN31PR",
		PowerW:       100,
		Comments:     "Nice signal",
		QRZLogID:     &logID,
	}

	var buf strings.Builder
	err := Write(&buf, []*models.QSO{in}, Header{ProgramVersion: "1.0"})
	require.NoError(t, err)

	records, err := ParseString(buf.String())
	require.NoError(t, err)
	require.Len(t, records, 1)

	out, err := records[0].QSO()
	require.NoError(t, err)

	assert.Equal(t, in.Callsign, out.Callsign)
	assert.Equal(t, in.Band, out.Band)
	assert.Equal(t, in.Mode, out.Mode)
	assert.Equal(t, in.Timestamp, out.Timestamp)
	assert.InDelta(t, in.FrequencyKHz, out.FrequencyKHz, 0.01)
	assert.Equal(t, in.RSTSent, out.RSTSent)
	assert.Equal(t, in.RSTRcvd, out.RSTRcvd)
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.GridSquare, out.GridSquare)
	assert.Equal(t, in.TheirPark, out.TheirPark)
	assert.Equal(t, in.MyPark, out.MyPark)
	assert.Equal(t, in.MyGrid, out.MyGrid)
	assert.Equal(t, in.PowerW, out.PowerW)
	assert.Equal(t, in.Comments, out.Comments)
}

func TestParseEmptyInput(t *testing.T) {
	records, err := ParseString("")
	require.NoError(t, err)
	assert.Empty(t, records)
}
