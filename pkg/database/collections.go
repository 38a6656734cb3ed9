package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func createIndexes() {
	createScheduleIndexes()
	createAssociationIndexes()
	createParsedFileIndexes()
}

func createScheduleIndexes() {
	scheduleCollections := []string{
		"schedules_permanent",
		"schedules_new",
		"schedules_overlay",
		"schedules_cancellation",
	}

	scheduleIndex := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "trainuid", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "runsfrom", Value: 1}, {Key: "runsto", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "callingpoints.tiploc", Value: 1}},
		},
	}

	for _, collectionName := range scheduleCollections {
		collection := GetCollection(collectionName)

		opts := options.CreateIndexes()
		_, err := collection.Indexes().CreateMany(context.Background(), scheduleIndex, opts)
		if err != nil {
			log.Error().Err(err).Str("collection", collectionName).Msg("Creating Index")
		}
	}
}

func createAssociationIndexes() {
	associationCollections := []string{
		"associations_permanent",
		"associations_new",
		"associations_overlay",
		"associations_cancellation",
	}

	associationIndex := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "mainuid", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "associateduid", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "datefrom", Value: 1}, {Key: "dateto", Value: 1}},
		},
	}

	for _, collectionName := range associationCollections {
		collection := GetCollection(collectionName)

		opts := options.CreateIndexes()
		_, err := collection.Indexes().CreateMany(context.Background(), associationIndex, opts)
		if err != nil {
			log.Error().Err(err).Str("collection", collectionName).Msg("Creating Index")
		}
	}
}

func createParsedFileIndexes() {
	parsedFilesCollection := GetCollection("parsed_files")
	parsedFilesIndex := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "fileref", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "processedat", Value: -1}},
		},
	}

	opts := options.CreateIndexes()
	_, err := parsedFilesCollection.Indexes().CreateMany(context.Background(), parsedFilesIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}
