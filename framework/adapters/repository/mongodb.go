package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/liquidprojections/projector/framework/eventsourcing"
)

func timeFromUnixNano(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}

// MongoConfig configures a MongoStoreSessionFactory.
type MongoConfig struct {
	URI      string
	Database string
}

// Validate reports a configuration error, if any.
func (c MongoConfig) Validate() error {
	if c.URI == "" {
		return errors.New("URI cannot be empty")
	}
	return nil
}

// DefaultMongoConfig returns a config defaulting Database to "projector".
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{Database: "projector"}
}

type projectionDoc struct {
	ID   string `bson:"_id"`
	Data []byte `bson:"data"`
}

type stateDoc struct {
	ID            string `bson:"_id"`
	Checkpoint    int64  `bson:"checkpoint"`
	LastUpdateUTC int64  `bson:"last_update_utc"`
}

// MongoStoreSessionFactory produces StoreSessions backed by a mongo-driver
// client. Every projection table becomes its own collection; _id is the
// session's opaque entity key. The projector's own checkpoint rows live in
// a dedicated projector_state collection.
type MongoStoreSessionFactory struct {
	client   *mongo.Client
	database string
}

// NewMongoStoreSessionFactory connects to config.URI.
func NewMongoStoreSessionFactory(ctx context.Context, config MongoConfig) (*MongoStoreSessionFactory, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongo config: %w", err)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return &MongoStoreSessionFactory{client: client, database: config.Database}, nil
}

// Close disconnects the underlying client.
func (f *MongoStoreSessionFactory) Close(ctx context.Context) error {
	return f.client.Disconnect(ctx)
}

func (f *MongoStoreSessionFactory) collection(table string) *mongo.Collection {
	return f.client.Database(f.database).Collection(table)
}

func (f *MongoStoreSessionFactory) stateCollection() *mongo.Collection {
	return f.client.Database(f.database).Collection("projector_state")
}

// NewSession implements eventsourcing.StoreSessionFactory. It starts a
// mongo-driver session only; the transaction itself is started by
// BeginTransaction and ended by Commit/Rollback, as with the other
// StoreSession backends.
func (f *MongoStoreSessionFactory) NewSession(ctx context.Context) (eventsourcing.StoreSession, error) {
	session, err := f.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return &MongoStoreSession{factory: f, session: session}, nil
}

// MongoStoreSession is a unit-of-work over one mongo-driver session
// transaction. Writes execute immediately against the session context;
// mongo's own transaction isolation hides them from other sessions until
// Commit.
type MongoStoreSession struct {
	factory *MongoStoreSessionFactory
	session mongo.Session
	sc      mongo.SessionContext
}

func (s *MongoStoreSession) BeginTransaction(ctx context.Context) error {
	if err := s.session.StartTransaction(); err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	s.sc = mongo.NewSessionContext(ctx, s.session)
	return nil
}

func (s *MongoStoreSession) Load(ctx context.Context, table string, key string) ([]byte, bool, error) {
	var doc projectionDoc
	err := s.factory.collection(table).FindOne(s.sc, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return doc.Data, true, nil
}

func (s *MongoStoreSession) Insert(ctx context.Context, table string, key string, data []byte) error {
	filter := bson.M{"_id": key}
	update := bson.M{"$set": bson.M{"data": data}}
	_, err := s.factory.collection(table).UpdateOne(s.sc, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoStoreSession) Delete(ctx context.Context, table string, key string) error {
	_, err := s.factory.collection(table).DeleteOne(s.sc, bson.M{"_id": key})
	return err
}

func (s *MongoStoreSession) Reattach(ctx context.Context, table string, key string, data []byte) error {
	return s.Insert(ctx, table, key, data)
}

func (s *MongoStoreSession) FindState(ctx context.Context, stateKey string) (*eventsourcing.ProjectorState, bool, error) {
	var doc stateDoc
	err := s.factory.stateCollection().FindOne(s.sc, bson.M{"_id": stateKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &eventsourcing.ProjectorState{
		StateKey:      doc.ID,
		Checkpoint:    doc.Checkpoint,
		LastUpdateUTC: timeFromUnixNano(doc.LastUpdateUTC),
	}, true, nil
}

func (s *MongoStoreSession) AddState(ctx context.Context, state *eventsourcing.ProjectorState) error {
	filter := bson.M{"_id": state.StateKey}
	update := bson.M{"$set": bson.M{
		"checkpoint":      state.Checkpoint,
		"last_update_utc": state.LastUpdateUTC.UnixNano(),
	}}
	_, err := s.factory.stateCollection().UpdateOne(s.sc, filter, update, options.Update().SetUpsert(true))
	return err
}

// Flush is a no-op: every write above already executed against the open
// transaction.
func (s *MongoStoreSession) Flush(ctx context.Context) error {
	return nil
}

func (s *MongoStoreSession) Commit(ctx context.Context) error {
	defer s.session.EndSession(s.sc)
	return s.session.CommitTransaction(s.sc)
}

func (s *MongoStoreSession) Rollback(ctx context.Context) error {
	defer s.session.EndSession(s.sc)
	err := s.session.AbortTransaction(s.sc)
	if errors.Is(err, mongo.ErrNoTransactionStarted) {
		return nil
	}
	return err
}
