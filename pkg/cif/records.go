package cif

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MalformedRecordError reports a fixed-width field that could not be
// decoded, naming the field and its character offset within the line.
type MalformedRecordError struct {
	RecordType string
	Field      string
	Offset     int
	Reason     string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record: field %s at offset %d: %s", e.RecordType, e.Field, e.Offset, e.Reason)
}

// RecordType returns the two character record identity of a CIF line, or
// an empty string for lines too short to carry one.
func RecordType(line string) string {
	if len(line) < 2 {
		return ""
	}

	return line[0:2]
}

// lineReader extracts fixed character ranges from one record line,
// remembering the first failure so decoders can slice unconditionally.
type lineReader struct {
	line       string
	recordType string
	err        error
}

func (r *lineReader) field(name string, start int, end int) string {
	if r.err != nil {
		return ""
	}

	if len(r.line) < end {
		r.err = &MalformedRecordError{
			RecordType: r.recordType,
			Field:      name,
			Offset:     start,
			Reason:     fmt.Sprintf("line is %d characters, need %d", len(r.line), end),
		}
		return ""
	}

	return r.line[start:end]
}

func (r *lineReader) trimmed(name string, start int, end int) string {
	return strings.TrimSpace(r.field(name, start, end))
}

func (r *lineReader) date(name string, start int, end int) time.Time {
	raw := r.field(name, start, end)
	if r.err != nil {
		return time.Time{}
	}

	parsed, err := parseDate(raw)
	if err != nil {
		r.err = &MalformedRecordError{RecordType: r.recordType, Field: name, Offset: start, Reason: err.Error()}
	}

	return parsed
}

func (r *lineReader) scheduledTime(name string, start int, end int) Time {
	raw := r.field(name, start, end)
	if r.err != nil {
		return Time{}
	}

	parsed, err := ParseScheduledTime(raw)
	if err != nil {
		r.err = &MalformedRecordError{RecordType: r.recordType, Field: name, Offset: start, Reason: err.Error()}
	}

	return parsed
}

func (r *lineReader) publicTime(name string, start int, end int) Time {
	raw := r.field(name, start, end)
	if r.err != nil {
		return Time{}
	}

	parsed, err := ParsePublicTime(raw)
	if err != nil {
		r.err = &MalformedRecordError{RecordType: r.recordType, Field: name, Offset: start, Reason: err.Error()}
	}

	return parsed
}

// parseDate decodes a YYMMDD CIF date. Two digit years are 2000+YY.
func parseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != 6 {
		return time.Time{}, fmt.Errorf("date %q is not 6 digits", raw)
	}

	year, errY := strconv.Atoi(trimmed[0:2])
	month, errM := strconv.Atoi(trimmed[2:4])
	day, errD := strconv.Atoi(trimmed[4:6])
	if errY != nil || errM != nil || errD != nil {
		return time.Time{}, fmt.Errorf("date %q is not numeric", raw)
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("date %q out of range", raw)
	}

	return time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// Header is the HD record opening every extract file.
type Header struct {
	CurrentFileRef string
	LastFileRef    string
	ExtractType    string
}

func (h Header) IsFullExtract() bool {
	return h.ExtractType == "F"
}

func DecodeHeader(line string) (Header, error) {
	r := &lineReader{line: line, recordType: "HD"}

	header := Header{
		CurrentFileRef: r.trimmed("CurrentFileRef", 30, 37),
		LastFileRef:    r.trimmed("LastFileRef", 37, 44),
		ExtractType:    r.trimmed("ExtractType", 46, 47),
	}

	if r.err == nil && header.ExtractType != "F" && header.ExtractType != "U" {
		r.err = &MalformedRecordError{
			RecordType: "HD",
			Field:      "ExtractType",
			Offset:     46,
			Reason:     fmt.Sprintf("expected F or U, got %q", header.ExtractType),
		}
	}

	return header, r.err
}

// BasicSchedule is the BS record opening one schedule variant.
type BasicSchedule struct {
	TransactionType          string
	TrainUID                 string
	RunsFrom                 time.Time
	RunsTo                   time.Time
	DaysRun                  string
	BankHolidayRunning       string
	TrainStatus              string
	TrainCategory            string
	TrainIdentity            string
	Headcode                 string
	TrainServiceCode         string
	PowerType                string
	TimingLoad               string
	Speed                    int
	OperatingCharacteristics string
	STPIndicator             string
}

func DecodeBasicSchedule(line string) (BasicSchedule, error) {
	r := &lineReader{line: line, recordType: "BS"}

	schedule := BasicSchedule{
		TransactionType:          r.field("TransactionType", 2, 3),
		TrainUID:                 r.trimmed("TrainUID", 3, 9),
		DaysRun:                  r.field("DaysRun", 21, 28),
		BankHolidayRunning:       r.trimmed("BankHolidayRunning", 28, 29),
		TrainStatus:              r.trimmed("TrainStatus", 29, 30),
		TrainCategory:            r.trimmed("TrainCategory", 30, 32),
		TrainIdentity:            r.trimmed("TrainIdentity", 32, 36),
		Headcode:                 r.trimmed("Headcode", 36, 40),
		TrainServiceCode:         r.trimmed("TrainServiceCode", 41, 49),
		PowerType:                r.trimmed("PowerType", 50, 53),
		TimingLoad:               r.trimmed("TimingLoad", 53, 57),
		OperatingCharacteristics: r.trimmed("OperatingCharacteristics", 60, 66),
		STPIndicator:             r.trimmed("STPIndicator", 79, 80),
	}

	// Schedule deletions carry dates only, so decode those before the rest.
	schedule.RunsFrom = r.date("RunsFrom", 9, 15)
	if schedule.TransactionType != "D" {
		schedule.RunsTo = r.date("RunsTo", 15, 21)
	}

	if speed := r.trimmed("Speed", 57, 60); speed != "" {
		if parsed, err := strconv.Atoi(speed); err == nil {
			schedule.Speed = parsed
		}
	}

	return schedule, r.err
}

// ScheduleExtra is the BX record carrying operator details for the
// preceding BS record.
type ScheduleExtra struct {
	ATOCCode string
}

func DecodeScheduleExtra(line string) (ScheduleExtra, error) {
	r := &lineReader{line: line, recordType: "BX"}

	extra := ScheduleExtra{
		ATOCCode: r.trimmed("ATOCCode", 11, 13),
	}

	return extra, r.err
}

// OriginLocation is the LO record starting a schedule's calling pattern.
type OriginLocation struct {
	Tiploc               string
	ScheduledDeparture   Time
	PublicDeparture      Time
	Platform             string
	Line                 string
	EngineeringAllowance string
	PathingAllowance     string
	Activity             string
	PerformanceAllowance string
}

func DecodeOriginLocation(line string) (OriginLocation, error) {
	r := &lineReader{line: line, recordType: "LO"}

	location := OriginLocation{
		Tiploc:               r.trimmed("Tiploc", 2, 10),
		ScheduledDeparture:   r.scheduledTime("ScheduledDeparture", 10, 15),
		PublicDeparture:      r.publicTime("PublicDeparture", 15, 19),
		Platform:             r.trimmed("Platform", 19, 22),
		Line:                 r.trimmed("Line", 22, 25),
		EngineeringAllowance: r.trimmed("EngineeringAllowance", 25, 27),
		PathingAllowance:     r.trimmed("PathingAllowance", 27, 29),
		Activity:             r.trimmed("Activity", 29, 41),
		PerformanceAllowance: r.trimmed("PerformanceAllowance", 41, 43),
	}

	return location, r.err
}

// IntermediateLocation is the LI record for a calling or passing point.
type IntermediateLocation struct {
	Tiploc               string
	ScheduledArrival     Time
	ScheduledDeparture   Time
	ScheduledPass        Time
	PublicArrival        Time
	PublicDeparture      Time
	Platform             string
	Line                 string
	Path                 string
	Activity             string
	EngineeringAllowance string
	PathingAllowance     string
	PerformanceAllowance string
}

func DecodeIntermediateLocation(line string) (IntermediateLocation, error) {
	r := &lineReader{line: line, recordType: "LI"}

	location := IntermediateLocation{
		Tiploc:               r.trimmed("Tiploc", 2, 10),
		ScheduledArrival:     r.scheduledTime("ScheduledArrival", 10, 15),
		ScheduledDeparture:   r.scheduledTime("ScheduledDeparture", 15, 20),
		ScheduledPass:        r.scheduledTime("ScheduledPass", 20, 25),
		PublicArrival:        r.publicTime("PublicArrival", 25, 29),
		PublicDeparture:      r.publicTime("PublicDeparture", 29, 33),
		Platform:             r.trimmed("Platform", 33, 36),
		Line:                 r.trimmed("Line", 36, 39),
		Path:                 r.trimmed("Path", 39, 42),
		Activity:             r.trimmed("Activity", 42, 54),
		EngineeringAllowance: r.trimmed("EngineeringAllowance", 54, 56),
		PathingAllowance:     r.trimmed("PathingAllowance", 56, 58),
		PerformanceAllowance: r.trimmed("PerformanceAllowance", 58, 60),
	}

	return location, r.err
}

// TerminatingLocation is the LT record closing a schedule's calling
// pattern.
type TerminatingLocation struct {
	Tiploc           string
	ScheduledArrival Time
	PublicArrival    Time
	Platform         string
	Path             string
	Activity         string
}

func DecodeTerminatingLocation(line string) (TerminatingLocation, error) {
	r := &lineReader{line: line, recordType: "LT"}

	location := TerminatingLocation{
		Tiploc:           r.trimmed("Tiploc", 2, 10),
		ScheduledArrival: r.scheduledTime("ScheduledArrival", 10, 15),
		PublicArrival:    r.publicTime("PublicArrival", 15, 19),
		Platform:         r.trimmed("Platform", 19, 22),
		Path:             r.trimmed("Path", 22, 25),
		Activity:         r.trimmed("Activity", 25, 37),
	}

	return location, r.err
}

// AssociationRecord is the AA record linking two train UIDs at a
// location.
type AssociationRecord struct {
	TransactionType string
	MainUID         string
	AssociatedUID   string
	DateFrom        time.Time
	DateTo          time.Time
	DaysRun         string
	Category        string
	DateIndicator   string
	Location        string
	BaseSuffix      string
	AssocSuffix     string
	STPIndicator    string
}

func DecodeAssociation(line string) (AssociationRecord, error) {
	r := &lineReader{line: line, recordType: "AA"}

	association := AssociationRecord{
		TransactionType: r.field("TransactionType", 2, 3),
		MainUID:         r.trimmed("MainUID", 3, 9),
		AssociatedUID:   r.trimmed("AssociatedUID", 9, 15),
		DaysRun:         r.field("DaysRun", 27, 34),
		Category:        r.trimmed("Category", 34, 36),
		DateIndicator:   r.trimmed("DateIndicator", 36, 37),
		Location:        r.trimmed("Location", 37, 44),
		BaseSuffix:      r.trimmed("BaseSuffix", 44, 45),
		AssocSuffix:     r.trimmed("AssocSuffix", 45, 46),
		STPIndicator:    r.trimmed("STPIndicator", 79, 80),
	}

	association.DateFrom = r.date("DateFrom", 15, 21)
	if association.TransactionType != "D" {
		association.DateTo = r.date("DateTo", 21, 27)
	}

	return association, r.err
}

// SplitTiplocSuffix separates the single digit recurrence suffix a TIPLOC
// carries when a schedule visits the same location more than once. The
// suffix defaults to "1".
func SplitTiplocSuffix(tiploc string) (string, string) {
	if len(tiploc) == 8 && tiploc[7] >= '2' && tiploc[7] <= '9' {
		return strings.TrimSpace(tiploc[0:7]), tiploc[7:8]
	}

	return strings.TrimSpace(tiploc), "1"
}
