// Package adif reads and writes the Amateur Data Interchange Format,
// the de facto log exchange format spoken by every logbook backend.
package adif

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// Record is one ADIF record: field names uppercased, values as written
type Record map[string]string

// Header carries the fields emitted before <eoh>
type Header struct {
	ProgramID      string
	ProgramVersion string
	ADIFVersion    string
}

// ParseString parses ADIF text into records
func ParseString(adif string) ([]Record, error) {
	return Parse(strings.NewReader(adif))
}

// Parse reads ADIF from r and returns its records. A header, if present,
// is skipped up to and including <eoh>. Records end at <eor>. Text between
// fields is ignored, which makes the parser tolerant of the comments and
// whitespace real-world exports carry.
func Parse(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeParse, "Failed to read ADIF input", err.Error())
	}

	text := string(data)

	// Drop the header. ADIF files without a '<' before the first field
	// name still parse because field scanning skips interstitial text.
	if idx := indexFold(text, "<eoh>"); idx >= 0 {
		text = text[idx+len("<eoh>"):]
	}

	var records []Record
	current := Record{}

	pos := 0
	for pos < len(text) {
		open := strings.IndexByte(text[pos:], '<')
		if open < 0 {
			break
		}
		pos += open
		close := strings.IndexByte(text[pos:], '>')
		if close < 0 {
			break
		}

		tag := text[pos+1 : pos+close]
		pos += close + 1

		if strings.EqualFold(tag, "eor") {
			if len(current) > 0 {
				records = append(records, current)
				current = Record{}
			}
			continue
		}

		// Field tag: NAME:LENGTH[:TYPE]
		parts := strings.SplitN(tag, ":", 3)
		if len(parts) < 2 {
			continue
		}
		name := strings.ToUpper(strings.TrimSpace(parts[0]))
		length, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || length < 0 {
			continue
		}
		if length > len(text)-pos {
			length = len(text) - pos
		}
		current[name] = text[pos : pos+length]
		pos += length
	}

	// Trailing record without <eor>
	if len(current) > 0 {
		records = append(records, current)
	}

	return records, nil
}

func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}

// Timestamp combines QSO_DATE and TIME_ON into a UTC time.
// TIME_ON may be HHMM or HHMMSS; missing TIME_ON yields midnight.
func (r Record) Timestamp() (time.Time, error) {
	date := r["QSO_DATE"]
	if date == "" {
		return time.Time{}, utils.NewAppError(utils.ErrCodeParse, "Record has no QSO_DATE", "")
	}

	timeOn := r["TIME_ON"]
	if timeOn == "" {
		return time.ParseInLocation("20060102", date, time.UTC)
	}

	// Normalize to HHMMSS
	if len(timeOn) > 6 {
		timeOn = timeOn[:6]
	}
	for len(timeOn) < 6 {
		timeOn += "0"
	}

	return time.ParseInLocation("20060102150405", date+timeOn, time.UTC)
}

// QSO maps an ADIF record onto the domain model. Records missing any of
// CALL, BAND or MODE are rejected; everything else is best-effort.
func (r Record) QSO() (*models.QSO, error) {
	call := utils.NormalizeCallsign(r["CALL"])
	band := strings.ToLower(r["BAND"])
	mode := strings.ToUpper(r["MODE"])

	if call == "" || band == "" || mode == "" {
		return nil, utils.NewAppError(utils.ErrCodeParse,
			"Record missing CALL, BAND or MODE",
			fmt.Sprintf("call=%q band=%q mode=%q", call, band, mode))
	}

	ts, err := r.Timestamp()
	if err != nil {
		return nil, err
	}

	qso := &models.QSO{
		Callsign:   call,
		Band:       band,
		Mode:       mode,
		Timestamp:  ts,
		RSTSent:    r["RST_SENT"],
		RSTRcvd:    r["RST_RCVD"],
		Name:       r["NAME"],
		GridSquare: strings.ToUpper(r["GRIDSQUARE"]),
		QTH:        r["QTH"],
		State:      r["STATE"],
		Country:    r["COUNTRY"],
		TheirPark:  r["SIG_INFO"],
		MyPark:     r["MY_SIG_INFO"],
		MyGrid:     strings.ToUpper(r["MY_GRIDSQUARE"]),
		Comments:   r["COMMENT"],
	}

	if freq := r["FREQ"]; freq != "" {
		if mhz, err := strconv.ParseFloat(freq, 64); err == nil {
			qso.FrequencyKHz = mhz * 1000
		}
	}
	if pwr := r["TX_PWR"]; pwr != "" {
		if w, err := strconv.ParseFloat(pwr, 64); err == nil {
			qso.PowerW = int(w)
		}
	}
	if logID := r["APP_QRZLOG_LOGID"]; logID != "" {
		if id, err := strconv.ParseInt(logID, 10, 64); err == nil {
			qso.QRZLogID = &id
		}
	}
	if qsl := strings.ToUpper(r["QSL_RCVD"]); qsl == "Y" {
		qso.LoTWConfirmed = true
	}

	return qso, nil
}

// field writes one ADIF field; empty values are omitted entirely
func field(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "<%s:%d>%s", name, len(value), value)
}

// FormatQSO renders a single QSO as one ADIF record ending in <eor>
func FormatQSO(q *models.QSO) string {
	var b strings.Builder

	field(&b, "CALL", q.Callsign)
	field(&b, "BAND", strings.ToLower(q.Band))
	field(&b, "MODE", strings.ToUpper(q.Mode))
	field(&b, "QSO_DATE", q.Timestamp.UTC().Format("20060102"))
	field(&b, "TIME_ON", q.Timestamp.UTC().Format("150405"))
	if q.FrequencyKHz > 0 {
		field(&b, "FREQ", strconv.FormatFloat(q.FrequencyKHz/1000, 'f', 6, 64))
	}
	field(&b, "RST_SENT", q.RSTSent)
	field(&b, "RST_RCVD", q.RSTRcvd)
	field(&b, "NAME", q.Name)
	field(&b, "GRIDSQUARE", q.GridSquare)
	field(&b, "QTH", q.QTH)
	field(&b, "STATE", q.State)
	field(&b, "COUNTRY", q.Country)
	if q.PowerW > 0 {
		field(&b, "TX_PWR", strconv.Itoa(q.PowerW))
	}
	if q.TheirPark != "" {
		field(&b, "SIG", "POTA")
		field(&b, "SIG_INFO", q.TheirPark)
	}
	if q.MyPark != "" {
		field(&b, "MY_SIG", "POTA")
		field(&b, "MY_SIG_INFO", q.MyPark)
	}
	field(&b, "MY_GRIDSQUARE", q.MyGrid)
	field(&b, "COMMENT", q.Comments)
	b.WriteString("<eor>\n")

	return b.String()
}

// Write emits a full ADIF document: header, <eoh>, then one record per QSO
func Write(w io.Writer, qsos []*models.QSO, header Header) error {
	if header.ADIFVersion == "" {
		header.ADIFVersion = "3.1.4"
	}
	if header.ProgramID == "" {
		header.ProgramID = "CarrierWave"
	}

	var b strings.Builder
	b.WriteString("Generated by " + header.ProgramID + "\n")
	field(&b, "ADIF_VER", header.ADIFVersion)
	field(&b, "PROGRAMID", header.ProgramID)
	field(&b, "PROGRAMVERSION", header.ProgramVersion)
	b.WriteString("<eoh>\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to write ADIF header", err.Error())
	}

	for _, q := range qsos {
		if _, err := io.WriteString(w, FormatQSO(q)); err != nil {
			return utils.NewAppError(utils.ErrCodeInternal, "Failed to write ADIF record", err.Error())
		}
	}

	return nil
}

// Fields returns the record's field names sorted, for stable diagnostics
func (r Record) Fields() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
