package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/statum/pkg/api"
)

// MongoStore is a Store backed by MongoDB. Machines and schematics live in
// separate collections keyed by _id; state updates are conditional
// UpdateOne calls filtered on the expected commit tag.
type MongoStore struct {
	machines   *mongo.Collection
	schematics *mongo.Collection
}

// Ensure it implements Store.
var _ Store = (*MongoStore)(nil)

// NewMongoStore creates a Mongo-backed store.
// dbName defaults to "statum" if empty.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	if dbName == "" {
		dbName = "statum"
	}
	db := client.Database(dbName)
	return &MongoStore{
		machines:   db.Collection("machines"),
		schematics: db.Collection("schematics"),
	}
}

type mongoMachineDoc struct {
	ID            string            `bson:"_id"`
	SchematicName string            `bson:"schematic_name"`
	Schematic     []byte            `bson:"schematic"`
	Metadata      map[string]string `bson:"metadata,omitempty"`
	State         []byte            `bson:"state"`
	Input         []byte            `bson:"input,omitempty"`
	Parameter     string            `bson:"parameter"`
	CommitTag     string            `bson:"commit_tag"`
	CreatedAt     int64             `bson:"created_at"`
	UpdatedAt     int64             `bson:"updated_at"`
}

type mongoSchematicDoc struct {
	Name       string `bson:"_id"`
	Definition []byte `bson:"definition"`
	UpdatedAt  int64  `bson:"updated_at"`
}

func (s *MongoStore) StoreSchematic(ctx context.Context, name string, data []byte) error {
	_, err := s.schematics.ReplaceOne(ctx,
		bson.M{"_id": name},
		mongoSchematicDoc{Name: name, Definition: data, UpdatedAt: time.Now().UTC().UnixNano()},
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) GetSchematic(ctx context.Context, name string) ([]byte, error) {
	var doc mongoSchematicDoc
	err := s.schematics.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, api.ErrSchematicNotFound
		}
		return nil, err
	}
	return doc.Definition, nil
}

func (s *MongoStore) CreateMachine(ctx context.Context, rec MachineRecord) (StateRecord, error) {
	ts := rec.CreatedAt.UTC().UnixNano()
	doc := mongoMachineDoc{
		ID:            rec.ID,
		SchematicName: rec.SchematicName,
		Schematic:     rec.Schematic,
		Metadata:      rec.Metadata,
		State:         rec.InitialState,
		CommitTag:     rec.CommitTag,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	if _, err := s.machines.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return StateRecord{}, api.ErrMachineExists
		}
		return StateRecord{}, err
	}
	return stateFromRecord(rec), nil
}

func (s *MongoStore) DeleteMachine(ctx context.Context, id string) error {
	res, err := s.machines.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return api.ErrMachineNotFound
	}
	return nil
}

func (s *MongoStore) find(ctx context.Context, id string, projection bson.M) (mongoMachineDoc, error) {
	var doc mongoMachineDoc
	err := s.machines.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(projection)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return doc, api.ErrMachineNotFound
		}
		return doc, err
	}
	return doc, nil
}

func (s *MongoStore) GetMachineState(ctx context.Context, id string) (StateRecord, error) {
	doc, err := s.find(ctx, id, bson.M{"schematic": 0, "metadata": 0})
	if err != nil {
		return StateRecord{}, err
	}
	return StateRecord{
		MachineID: id,
		State:     doc.State,
		Input:     nilIfEmpty(doc.Input),
		Parameter: doc.Parameter,
		CommitTag: doc.CommitTag,
		UpdatedAt: time.Unix(0, doc.UpdatedAt).UTC(),
	}, nil
}

func (s *MongoStore) SetMachineState(ctx context.Context, id string, upd StateUpdate) (StateRecord, error) {
	set := bson.M{
		"state":      upd.State,
		"parameter":  upd.Parameter,
		"commit_tag": upd.NewCommitTag,
		"updated_at": upd.UpdatedAt.UTC().UnixNano(),
	}
	update := bson.M{"$set": set}
	if len(upd.Input) > 0 {
		set["input"] = upd.Input
	} else {
		update["$unset"] = bson.M{"input": ""}
	}

	res, err := s.machines.UpdateOne(ctx, bson.M{"_id": id, "commit_tag": upd.ExpectedCommitTag}, update)
	if err != nil {
		return StateRecord{}, err
	}
	if res.MatchedCount == 0 {
		n, err := s.machines.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
		if err != nil {
			return StateRecord{}, err
		}
		if n == 0 {
			return StateRecord{}, api.ErrMachineNotFound
		}
		return StateRecord{}, api.ErrConcurrencyConflict
	}
	return stateFromUpdate(id, upd), nil
}

func (s *MongoStore) GetMachineMetadata(ctx context.Context, id string) (map[string]string, error) {
	doc, err := s.find(ctx, id, bson.M{"metadata": 1})
	if err != nil {
		return nil, err
	}
	if doc.Metadata == nil {
		return map[string]string{}, nil
	}
	return doc.Metadata, nil
}

func (s *MongoStore) GetMachineSchematic(ctx context.Context, id string) ([]byte, error) {
	doc, err := s.find(ctx, id, bson.M{"schematic": 1})
	if err != nil {
		return nil, err
	}
	return doc.Schematic, nil
}
