package cifimport

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/railwatch/railwatch/pkg/cif"
	"github.com/railwatch/railwatch/pkg/timetable"
)

// Sink receives the completed records of an extract. The Mongo-backed
// timetable.Store satisfies it.
type Sink interface {
	InsertVariants(class timetable.PrecedenceClass, variants []*timetable.ScheduleVariant) error
	InsertAssociations(class timetable.PrecedenceClass, associations []*timetable.Association) error
	DeleteVariants(class timetable.PrecedenceClass, trainUID string, runsFrom time.Time) error
	DeleteAssociations(class timetable.PrecedenceClass, mainUID string, associatedUID string, dateFrom time.Time) error
	ClearAll() error
	LastProcessedFileRef() (string, error)
	MarkFileProcessed(record timetable.ParsedFile) error
}

// sinkOp is one deferred write against the Sink. Nothing touches the
// Sink until the whole stream has been read cleanly, so a read error
// never leaves a file partially committed.
type sinkOp struct {
	variant           *timetable.ScheduleVariant
	association       *timetable.Association
	variantDelete     *variantDelete
	associationDelete *associationDelete
}

type variantDelete struct {
	class    timetable.PrecedenceClass
	trainUID string
	runsFrom time.Time
}

type associationDelete struct {
	class         timetable.PrecedenceClass
	mainUID       string
	associatedUID string
	dateFrom      time.Time
}

// Importer streams one CIF extract at a time into a Sink, grouping
// location rows under their owning schedule and buffering the file's
// writes until the stream is known to be complete.
type Importer struct {
	Sink Sink

	// AreaTiplocs restricts persisted schedules to those calling at one
	// of these locations. Empty means no filtering. Cancellations are
	// always kept as they carry no calling points to filter on.
	AreaTiplocs map[string]bool

	header  cif.Header
	pending *timetable.ScheduleVariant

	ops []sinkOp

	schedulesKept    int
	schedulesSkipped int
	recordsSkipped   int
}

func NewImporter(sink Sink, areaTiplocs []string) *Importer {
	area := map[string]bool{}
	for _, tiploc := range areaTiplocs {
		area[tiploc] = true
	}

	return &Importer{
		Sink:        sink,
		AreaTiplocs: area,
	}
}

// ProcessExtract consumes one extract stream. An extract whose file
// reference is not strictly greater than the last processed one is
// skipped without error. A read error on the stream aborts the file and
// discards any partially buffered schedules.
func (i *Importer) ProcessExtract(filename string, reader io.Reader) error {
	i.reset()

	scanner := bufio.NewScanner(reader)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}

		return fmt.Errorf("extract %s is empty", filename)
	}

	if cif.RecordType(scanner.Text()) != "HD" {
		return fmt.Errorf("extract %s does not start with a header record", filename)
	}

	header, err := cif.DecodeHeader(scanner.Text())
	if err != nil {
		return err
	}
	i.header = header

	lastRef, err := i.Sink.LastProcessedFileRef()
	if err != nil {
		return err
	}

	if lastRef != "" && header.CurrentFileRef <= lastRef {
		log.Info().
			Str("file", filename).
			Str("fileref", header.CurrentFileRef).
			Str("lastref", lastRef).
			Msg("Extract already processed, skipping")

		return nil
	}

	if header.IsFullExtract() {
		log.Info().Str("file", filename).Msg("Full extract, clearing existing timetable")

		if err := i.Sink.ClearAll(); err != nil {
			return err
		}
	} else if lastRef != "" && header.LastFileRef != lastRef {
		log.Warn().
			Str("file", filename).
			Str("expected", lastRef).
			Str("previous", header.LastFileRef).
			Msg("Update extract does not follow last processed file")
	}

	lineNumber := 1
	for scanner.Scan() {
		lineNumber += 1
		i.processLine(scanner.Text(), lineNumber)
	}

	if err := scanner.Err(); err != nil {
		i.reset()

		return fmt.Errorf("reading extract %s: %w", filename, err)
	}

	i.closePendingSchedule()

	if err := i.commit(); err != nil {
		return err
	}

	if err := i.Sink.MarkFileProcessed(timetable.ParsedFile{
		FileRef:     header.CurrentFileRef,
		ExtractType: header.ExtractType,
		Filename:    filename,
		ProcessedAt: time.Now(),
	}); err != nil {
		return err
	}

	log.Info().
		Str("file", filename).
		Str("fileref", header.CurrentFileRef).
		Int("schedules", i.schedulesKept).
		Int("filtered", i.schedulesSkipped).
		Int("skippedrecords", i.recordsSkipped).
		Msg("Processed timetable extract")

	return nil
}

func (i *Importer) reset() {
	i.pending = nil
	i.ops = nil
	i.schedulesKept = 0
	i.schedulesSkipped = 0
	i.recordsSkipped = 0
}

func (i *Importer) processLine(line string, lineNumber int) {
	switch cif.RecordType(line) {
	case "BS":
		i.closePendingSchedule()
		i.handleBasicSchedule(line, lineNumber)
	case "BX":
		i.handleScheduleExtra(line, lineNumber)
	case "LO":
		i.handleOrigin(line, lineNumber)
	case "LI":
		i.handleIntermediate(line, lineNumber)
	case "LT":
		i.handleTerminating(line, lineNumber)
	case "AA":
		i.handleAssociation(line, lineNumber)
	case "ZZ":
		i.closePendingSchedule()
	default:
		// Extracts carry record types outside our interest set, for
		// example tiploc amendments and changes-en-route.
		log.Debug().
			Str("recordtype", cif.RecordType(line)).
			Int("line", lineNumber).
			Msg("Skipping record type")
	}
}

func (i *Importer) skipRecord(err error, lineNumber int) {
	i.recordsSkipped += 1

	log.Warn().
		Err(err).
		Int("line", lineNumber).
		Msg("Skipping malformed record")
}

func (i *Importer) handleBasicSchedule(line string, lineNumber int) {
	record, err := cif.DecodeBasicSchedule(line)
	if err != nil {
		i.skipRecord(err, lineNumber)

		return
	}

	class, ok := timetable.ClassFromSTPIndicator(record.STPIndicator)
	if !ok {
		i.skipRecord(fmt.Errorf("unknown STP indicator %q for %s", record.STPIndicator, record.TrainUID), lineNumber)

		return
	}

	if record.TransactionType == "D" {
		i.ops = append(i.ops, sinkOp{variantDelete: &variantDelete{
			class:    class,
			trainUID: record.TrainUID,
			runsFrom: record.RunsFrom,
		}})

		return
	}

	variant := &timetable.ScheduleVariant{
		TrainUID:                 record.TrainUID,
		Headcode:                 record.TrainIdentity,
		Class:                    class,
		RunsFrom:                 record.RunsFrom,
		RunsTo:                   record.RunsTo,
		DaysRun:                  record.DaysRun,
		TrainStatus:              record.TrainStatus,
		TrainCategory:            record.TrainCategory,
		TrainServiceCode:         record.TrainServiceCode,
		PowerType:                record.PowerType,
		TimingLoad:               record.TimingLoad,
		Speed:                    record.Speed,
		OperatingCharacteristics: record.OperatingCharacteristics,
		CreationDateTime:         time.Now(),
	}

	if class == timetable.ClassCancellation {
		// Cancellations carry no journey body and bypass the area
		// filter so they can suppress any stored schedule.
		i.bufferVariant(variant)

		return
	}

	i.pending = variant
}

func (i *Importer) handleScheduleExtra(line string, lineNumber int) {
	if i.pending == nil {
		return
	}

	record, err := cif.DecodeScheduleExtra(line)
	if err != nil {
		i.skipRecord(err, lineNumber)

		return
	}

	i.pending.ATOCCode = record.ATOCCode
}

func (i *Importer) handleOrigin(line string, lineNumber int) {
	if i.pending == nil {
		i.skipRecord(fmt.Errorf("origin location without an open schedule"), lineNumber)

		return
	}

	record, err := cif.DecodeOriginLocation(line)
	if err != nil {
		i.abandonPending(err, lineNumber)

		return
	}

	tiploc, recurrence := cif.SplitTiplocSuffix(record.Tiploc)

	i.pending.CallingPoints = append(i.pending.CallingPoints, timetable.CallingPoint{
		Sequence:                 len(i.pending.CallingPoints) + 1,
		Tiploc:                   tiploc,
		Recurrence:               recurrence,
		Kind:                     timetable.StopKindOrigin,
		ScheduledDeparture:       record.ScheduledDeparture,
		PublicDeparture:          record.PublicDeparture,
		Platform:                 record.Platform,
		Line:                     record.Line,
		Activity:                 record.Activity,
		EngineeringAllowanceSecs: timetable.ParseAllowanceSecs(record.EngineeringAllowance),
		PathingAllowanceSecs:     timetable.ParseAllowanceSecs(record.PathingAllowance),
		PerformanceAllowanceSecs: timetable.ParseAllowanceSecs(record.PerformanceAllowance),
	})
}

func (i *Importer) handleIntermediate(line string, lineNumber int) {
	if i.pending == nil {
		i.skipRecord(fmt.Errorf("intermediate location without an open schedule"), lineNumber)

		return
	}

	record, err := cif.DecodeIntermediateLocation(line)
	if err != nil {
		i.abandonPending(err, lineNumber)

		return
	}

	tiploc, recurrence := cif.SplitTiplocSuffix(record.Tiploc)

	kind := timetable.StopKindCall
	if record.ScheduledPass.Valid {
		kind = timetable.StopKindPass
	}

	i.pending.CallingPoints = append(i.pending.CallingPoints, timetable.CallingPoint{
		Sequence:                 len(i.pending.CallingPoints) + 1,
		Tiploc:                   tiploc,
		Recurrence:               recurrence,
		Kind:                     kind,
		ScheduledArrival:         record.ScheduledArrival,
		ScheduledDeparture:       record.ScheduledDeparture,
		ScheduledPass:            record.ScheduledPass,
		PublicArrival:            record.PublicArrival,
		PublicDeparture:          record.PublicDeparture,
		Platform:                 record.Platform,
		Line:                     record.Line,
		Path:                     record.Path,
		Activity:                 record.Activity,
		EngineeringAllowanceSecs: timetable.ParseAllowanceSecs(record.EngineeringAllowance),
		PathingAllowanceSecs:     timetable.ParseAllowanceSecs(record.PathingAllowance),
		PerformanceAllowanceSecs: timetable.ParseAllowanceSecs(record.PerformanceAllowance),
	})
}

func (i *Importer) handleTerminating(line string, lineNumber int) {
	if i.pending == nil {
		i.skipRecord(fmt.Errorf("terminating location without an open schedule"), lineNumber)

		return
	}

	record, err := cif.DecodeTerminatingLocation(line)
	if err != nil {
		i.abandonPending(err, lineNumber)

		return
	}

	tiploc, recurrence := cif.SplitTiplocSuffix(record.Tiploc)

	i.pending.CallingPoints = append(i.pending.CallingPoints, timetable.CallingPoint{
		Sequence:         len(i.pending.CallingPoints) + 1,
		Tiploc:           tiploc,
		Recurrence:       recurrence,
		Kind:             timetable.StopKindTerminating,
		ScheduledArrival: record.ScheduledArrival,
		PublicArrival:    record.PublicArrival,
		Platform:         record.Platform,
		Path:             record.Path,
		Activity:         record.Activity,
	})

	i.closePendingSchedule()
}

func (i *Importer) handleAssociation(line string, lineNumber int) {
	record, err := cif.DecodeAssociation(line)
	if err != nil {
		i.skipRecord(err, lineNumber)

		return
	}

	class, ok := timetable.ClassFromSTPIndicator(record.STPIndicator)
	if !ok {
		i.skipRecord(fmt.Errorf("unknown STP indicator %q for association %s/%s", record.STPIndicator, record.MainUID, record.AssociatedUID), lineNumber)

		return
	}

	if record.TransactionType == "D" {
		i.ops = append(i.ops, sinkOp{associationDelete: &associationDelete{
			class:         class,
			mainUID:       record.MainUID,
			associatedUID: record.AssociatedUID,
			dateFrom:      record.DateFrom,
		}})

		return
	}

	i.ops = append(i.ops, sinkOp{association: &timetable.Association{
		MainUID:       record.MainUID,
		AssociatedUID: record.AssociatedUID,
		Category:      record.Category,
		DateIndicator: record.DateIndicator,
		Location:      record.Location,
		BaseSuffix:    record.BaseSuffix,
		AssocSuffix:   record.AssocSuffix,
		DateFrom:      record.DateFrom,
		DateTo:        record.DateTo,
		DaysRun:       record.DaysRun,
		Class:         class,
	}})
}

// abandonPending drops the schedule under construction after one of its
// location rows fails to decode, so a half-built stop list is never
// persisted.
func (i *Importer) abandonPending(err error, lineNumber int) {
	log.Warn().
		Err(err).
		Int("line", lineNumber).
		Str("trainuid", i.pending.TrainUID).
		Msg("Abandoning schedule with malformed location record")

	i.pending = nil
	i.recordsSkipped += 1
}

// closePendingSchedule finishes the open schedule, applying the area
// filter now that the complete stop list is known.
func (i *Importer) closePendingSchedule() {
	if i.pending == nil {
		return
	}

	variant := i.pending
	i.pending = nil

	if len(i.AreaTiplocs) > 0 && !i.variantInArea(variant) {
		i.schedulesSkipped += 1

		return
	}

	i.bufferVariant(variant)
}

func (i *Importer) variantInArea(variant *timetable.ScheduleVariant) bool {
	for _, point := range variant.CallingPoints {
		if i.AreaTiplocs[point.Tiploc] {
			return true
		}
	}

	return false
}

func (i *Importer) bufferVariant(variant *timetable.ScheduleVariant) {
	i.ops = append(i.ops, sinkOp{variant: variant})
	i.schedulesKept += 1
}

// commit replays the file's buffered operations against the Sink,
// batching consecutive inserts per precedence class. Inserts flush
// ahead of each deletion so deletions apply in file order relative to
// inserts of the same UID.
func (i *Importer) commit() error {
	variants := map[timetable.PrecedenceClass][]*timetable.ScheduleVariant{}
	associations := map[timetable.PrecedenceClass][]*timetable.Association{}

	flush := func() error {
		for class, batch := range variants {
			if err := i.Sink.InsertVariants(class, batch); err != nil {
				return err
			}
		}
		variants = map[timetable.PrecedenceClass][]*timetable.ScheduleVariant{}

		for class, batch := range associations {
			if err := i.Sink.InsertAssociations(class, batch); err != nil {
				return err
			}
		}
		associations = map[timetable.PrecedenceClass][]*timetable.Association{}

		return nil
	}

	for _, op := range i.ops {
		switch {
		case op.variant != nil:
			variants[op.variant.Class] = append(variants[op.variant.Class], op.variant)
		case op.association != nil:
			associations[op.association.Class] = append(associations[op.association.Class], op.association)
		case op.variantDelete != nil:
			if err := flush(); err != nil {
				return err
			}
			if err := i.Sink.DeleteVariants(op.variantDelete.class, op.variantDelete.trainUID, op.variantDelete.runsFrom); err != nil {
				return err
			}
		case op.associationDelete != nil:
			if err := flush(); err != nil {
				return err
			}
			if err := i.Sink.DeleteAssociations(op.associationDelete.class, op.associationDelete.mainUID, op.associationDelete.associatedUID, op.associationDelete.dateFrom); err != nil {
				return err
			}
		}
	}
	i.ops = nil

	return flush()
}
