package timetable

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/railwatch/railwatch/pkg/database"
	"github.com/railwatch/railwatch/pkg/util"
)

const bulkBatchSize = 200

// Store persists schedule variants and associations into the four
// per-class collection pairs and tracks processed extract files.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) InsertVariants(class PrecedenceClass, variants []*ScheduleVariant) error {
	collection := database.GetCollection(class.ScheduleCollection())

	var operations []mongo.WriteModel
	for _, variant := range variants {
		operations = append(operations, mongo.NewInsertOneModel().SetDocument(variant))

		if len(operations) >= bulkBatchSize {
			if _, err := collection.BulkWrite(context.Background(), operations, &options.BulkWriteOptions{}); err != nil {
				return err
			}
			operations = nil
		}
	}

	if len(operations) > 0 {
		if _, err := collection.BulkWrite(context.Background(), operations, &options.BulkWriteOptions{}); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) InsertAssociations(class PrecedenceClass, associations []*Association) error {
	collection := database.GetCollection(class.AssociationCollection())

	var operations []mongo.WriteModel
	for _, association := range associations {
		operations = append(operations, mongo.NewInsertOneModel().SetDocument(association))

		if len(operations) >= bulkBatchSize {
			if _, err := collection.BulkWrite(context.Background(), operations, &options.BulkWriteOptions{}); err != nil {
				return err
			}
			operations = nil
		}
	}

	if len(operations) > 0 {
		if _, err := collection.BulkWrite(context.Background(), operations, &options.BulkWriteOptions{}); err != nil {
			return err
		}
	}

	return nil
}

// DeleteVariants removes every stored variant for a UID in one class
// starting on the given date. Update extracts issue these ahead of any
// replacement record.
func (s *Store) DeleteVariants(class PrecedenceClass, trainUID string, runsFrom time.Time) error {
	_, err := database.GetCollection(class.ScheduleCollection()).DeleteMany(context.Background(), bson.M{
		"trainuid": trainUID,
		"runsfrom": runsFrom,
	})

	return err
}

// DeleteAssociations removes stored associations for a pair in one
// class starting on the given date.
func (s *Store) DeleteAssociations(class PrecedenceClass, mainUID string, associatedUID string, dateFrom time.Time) error {
	_, err := database.GetCollection(class.AssociationCollection()).DeleteMany(context.Background(), bson.M{
		"mainuid":       mainUID,
		"associateduid": associatedUID,
		"datefrom":      dateFrom,
	})

	return err
}

// ClearAll drops every stored variant, association and processed file
// marker ahead of applying a full extract.
func (s *Store) ClearAll() error {
	log.Info().Msg("Clearing all stored schedules and associations")

	for _, class := range PrecedenceOrder {
		if _, err := database.GetCollection(class.ScheduleCollection()).DeleteMany(context.Background(), bson.M{}); err != nil {
			return err
		}
		if _, err := database.GetCollection(class.AssociationCollection()).DeleteMany(context.Background(), bson.M{}); err != nil {
			return err
		}
	}

	if _, err := database.GetCollection("parsed_files").DeleteMany(context.Background(), bson.M{}); err != nil {
		return err
	}

	return nil
}

// VariantsFor returns the variants of one UID in one class whose
// validity window contains the date and whose day mask covers it.
func (s *Store) VariantsFor(class PrecedenceClass, trainUID string, date time.Time) ([]*ScheduleVariant, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	cursor, err := database.GetCollection(class.ScheduleCollection()).Find(context.Background(), bson.M{
		"trainuid": trainUID,
		"runsfrom": bson.M{"$lte": day},
		"runsto":   bson.M{"$gte": day},
	})
	if err != nil {
		return nil, err
	}

	var matched []*ScheduleVariant
	for cursor.Next(context.Background()) {
		var variant ScheduleVariant
		if err := cursor.Decode(&variant); err != nil {
			return nil, err
		}

		if DayMaskRunsOn(variant.DaysRun, day) {
			matched = append(matched, &variant)
		}
	}

	return matched, cursor.Err()
}

// AssociationsFor returns the associations of one class that name the
// UID on either side and apply on the date.
func (s *Store) AssociationsFor(class PrecedenceClass, trainUID string, date time.Time) ([]*Association, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	cursor, err := database.GetCollection(class.AssociationCollection()).Find(context.Background(), bson.M{
		"$or": bson.A{
			bson.M{"mainuid": trainUID},
			bson.M{"associateduid": trainUID},
		},
		"datefrom": bson.M{"$lte": day},
		"dateto":   bson.M{"$gte": day},
	})
	if err != nil {
		return nil, err
	}

	var matched []*Association
	for cursor.Next(context.Background()) {
		var association Association
		if err := cursor.Decode(&association); err != nil {
			return nil, err
		}

		if DayMaskRunsOn(association.DaysRun, day) {
			matched = append(matched, &association)
		}
	}

	return matched, cursor.Err()
}

// ActiveUIDs enumerates every UID with at least one variant, in any
// class, whose validity window contains the date. Day masks and
// precedence are left to the resolver.
func (s *Store) ActiveUIDs(date time.Time) ([]string, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	var uids []string
	for _, class := range PrecedenceOrder {
		values, err := database.GetCollection(class.ScheduleCollection()).Distinct(context.Background(), "trainuid", bson.M{
			"runsfrom": bson.M{"$lte": day},
			"runsto":   bson.M{"$gte": day},
		})
		if err != nil {
			return nil, err
		}

		for _, value := range values {
			if uid, ok := value.(string); ok {
				uids = append(uids, uid)
			}
		}
	}

	return util.RemoveDuplicateStrings(uids, nil), nil
}

// LastProcessedFileRef returns the file reference of the most recently
// applied extract, or an empty string when none has been applied.
func (s *Store) LastProcessedFileRef() (string, error) {
	opts := options.FindOne().SetSort(bson.M{"processedat": -1})

	var record ParsedFile
	err := database.GetCollection("parsed_files").FindOne(context.Background(), bson.M{}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return record.FileRef, nil
}

func (s *Store) MarkFileProcessed(record ParsedFile) error {
	_, err := database.GetCollection("parsed_files").InsertOne(context.Background(), record)

	return err
}
