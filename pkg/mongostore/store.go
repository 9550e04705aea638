package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/plan"
)

const (
	subscriptionsCollection = "subscriptions"
	usageCollection         = "usage"
	eventsCollection        = "billing_events"
)

// Store implements metering.Store on MongoDB. The enforcement transaction
// maps onto a multi-document session transaction; the driver's
// WithTransaction retries transient write-write conflicts transparently, so
// callers only ever see business errors or hard store failures.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New returns a Store over the given database.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

func (s *Store) subscriptions() *mongo.Collection { return s.db.Collection(subscriptionsCollection) }
func (s *Store) usage() *mongo.Collection         { return s.db.Collection(usageCollection) }
func (s *Store) events() *mongo.Collection        { return s.db.Collection(eventsCollection) }

// mongoTx reads through the session context for snapshot isolation and
// stages writes until the transaction function succeeds.
type mongoTx struct {
	ctx       context.Context // session-bound context
	store     *Store
	tenantID  uuid.UUID
	stagedSub *metering.Subscription
	stagedInc map[string]map[plan.Metric]int64
}

func (tx *mongoTx) Subscription() (*metering.Subscription, bool, error) {
	if tx.stagedSub != nil {
		return tx.stagedSub.Clone(), true, nil
	}
	var doc subscriptionDoc
	err := tx.store.subscriptions().
		FindOne(tx.ctx, bson.M{"_id": tx.tenantID.String()}).
		Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}
	sub, err := fromSubscriptionDoc(doc)
	if err != nil {
		return nil, false, err
	}
	return sub, true, nil
}

func (tx *mongoTx) PutSubscription(sub *metering.Subscription) error {
	tx.stagedSub = sub.Clone()
	return nil
}

func (tx *mongoTx) Usage(periodKey string) (map[plan.Metric]int64, error) {
	var doc usageDoc
	err := tx.store.usage().
		FindOne(tx.ctx, bson.M{"_id": usageDocID(tx.tenantID, periodKey)}).
		Decode(&doc)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	counters := countersFromDoc(doc)
	for metric, delta := range tx.stagedInc[periodKey] {
		counters[metric] += delta
	}
	return counters, nil
}

func (tx *mongoTx) AddUsage(periodKey string, metric plan.Metric, delta int64) error {
	if tx.stagedInc == nil {
		tx.stagedInc = make(map[string]map[plan.Metric]int64)
	}
	if tx.stagedInc[periodKey] == nil {
		tx.stagedInc[periodKey] = make(map[plan.Metric]int64)
	}
	tx.stagedInc[periodKey][metric] += delta
	return nil
}

// commit applies staged writes inside the session transaction.
func (tx *mongoTx) commit() error {
	now := time.Now().UTC()

	if tx.stagedSub != nil {
		doc := toSubscriptionDoc(tx.stagedSub)
		_, err := tx.store.subscriptions().ReplaceOne(
			tx.ctx,
			bson.M{"_id": doc.TenantID},
			doc,
			options.Replace().SetUpsert(true),
		)
		if err != nil {
			return err
		}
	}

	for periodKey, deltas := range tx.stagedInc {
		inc := bson.M{}
		for metric, delta := range deltas {
			inc["counters."+string(metric)] = delta
		}
		_, err := tx.store.usage().UpdateOne(
			tx.ctx,
			bson.M{"_id": usageDocID(tx.tenantID, periodKey)},
			bson.M{
				"$inc":         inc,
				"$set":         bson.M{"period": periodKey, "updated_at": now},
				"$setOnInsert": bson.M{"tenant_id": tx.tenantID.String()},
			},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Transact runs fn in a session transaction. Transient conflicts (including
// upsert races between concurrent first-callers) carry the driver's
// transient label and are retried by WithTransaction.
func (s *Store) Transact(ctx context.Context, tenantID uuid.UUID, fn func(tx metering.Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sctx context.Context) (any, error) {
		tx := &mongoTx{ctx: sctx, store: s, tenantID: tenantID}
		if err := fn(tx); err != nil {
			return nil, err
		}
		if err := tx.commit(); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

func (s *Store) GetSubscription(ctx context.Context, tenantID uuid.UUID) (*metering.Subscription, error) {
	var doc subscriptionDoc
	err := s.subscriptions().FindOne(ctx, bson.M{"_id": tenantID.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, metering.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionDoc(doc)
}

func (s *Store) GetUsage(ctx context.Context, tenantID uuid.UUID, periodKey string) (map[plan.Metric]int64, error) {
	var doc usageDoc
	err := s.usage().FindOne(ctx, bson.M{"_id": usageDocID(tenantID, periodKey)}).Decode(&doc)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	return countersFromDoc(doc), nil
}

func (s *Store) AppendEvent(ctx context.Context, event metering.BillingEvent) error {
	_, err := s.events().InsertOne(ctx, eventDoc{
		ID:        event.ID.String(),
		TenantID:  event.TenantID.String(),
		Type:      string(event.Type),
		Metadata:  event.Metadata,
		CreatedAt: event.CreatedAt,
	})
	return err
}
