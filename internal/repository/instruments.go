package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type stageDoc struct {
	RequiredStamps int    `bson:"required_stamps"`
	Description    string `bson:"description"`
}

// instrumentDoc is the stored shape of both instrument kinds. Money is kept
// as a decimal string.
type instrumentDoc struct {
	ID            string     `bson:"_id"`
	Kind          string     `bson:"kind"`
	OwnerID       string     `bson:"owner_id"`
	CardNumber    string     `bson:"card_number"`
	DateAdded     time.Time  `bson:"date_added,omitempty"`
	CurrentStamps int        `bson:"current_stamps"`
	StampCapacity int        `bson:"stamp_capacity"`
	RewardStages  []stageDoc `bson:"reward_stages,omitempty"`
	MonetaryValue string     `bson:"monetary_value,omitempty"`
	ExpiryDate    time.Time  `bson:"expiry_date,omitempty"`
	Redeemed      bool       `bson:"redeemed"`
}

func toDoc(inst domain.Instrument) (instrumentDoc, error) {
	base := inst.Base()
	doc := instrumentDoc{
		ID:         base.ID,
		Kind:       string(inst.Kind()),
		OwnerID:    base.OwnerID,
		CardNumber: base.CardNumber,
		DateAdded:  base.DateAdded,
	}
	switch v := inst.(type) {
	case *domain.StampCard:
		doc.CurrentStamps = v.CurrentStamps
		doc.StampCapacity = v.StampCapacity
		for _, s := range v.RewardStages {
			doc.RewardStages = append(doc.RewardStages, stageDoc{RequiredStamps: s.RequiredStamps, Description: s.Description})
		}
	case *domain.GiftCard:
		doc.MonetaryValue = v.MonetaryValue.StringFixed(domain.MoneyPlaces)
		doc.ExpiryDate = v.ExpiryDate
		doc.Redeemed = v.Redeemed
	default:
		return instrumentDoc{}, fmt.Errorf("unknown instrument type %T", inst)
	}
	return doc, nil
}

func (d instrumentDoc) toDomain() (domain.Instrument, error) {
	base := domain.InstrumentBase{
		ID:         d.ID,
		OwnerID:    d.OwnerID,
		CardNumber: d.CardNumber,
		DateAdded:  d.DateAdded,
	}
	switch domain.InstrumentKind(d.Kind) {
	case domain.InstrumentKindStampCard:
		card := &domain.StampCard{
			InstrumentBase: base,
			CurrentStamps:  d.CurrentStamps,
			StampCapacity:  d.StampCapacity,
		}
		for _, s := range d.RewardStages {
			card.RewardStages = append(card.RewardStages, domain.RewardStage{RequiredStamps: s.RequiredStamps, Description: s.Description})
		}
		return card, nil
	case domain.InstrumentKindGiftCard:
		value, err := decimal.NewFromString(d.MonetaryValue)
		if err != nil {
			return nil, fmt.Errorf("gift card %s value %q: %w", d.ID, d.MonetaryValue, err)
		}
		return &domain.GiftCard{
			InstrumentBase: base,
			MonetaryValue:  value,
			ExpiryDate:     d.ExpiryDate,
			Redeemed:       d.Redeemed,
		}, nil
	}
	return nil, fmt.Errorf("instrument %s has unknown kind %q", d.ID, d.Kind)
}

// InstrumentRepository keeps loyalty instruments in MongoDB. Conditional
// updates make every mutation atomic per document.
type InstrumentRepository struct {
	collection *mongo.Collection
}

func NewInstrumentRepository(db *mongo.Database) *InstrumentRepository {
	return &InstrumentRepository{
		collection: db.Collection("instruments"),
	}
}

func (m *InstrumentRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "card_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "date_added", Value: 1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *InstrumentRepository) findOne(ctx context.Context, filter bson.M) (domain.Instrument, error) {
	var doc instrumentDoc
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}
	return doc.toDomain()
}

func (m *InstrumentRepository) Get(ctx context.Context, id string) (domain.Instrument, error) {
	inst, err := m.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", id, err)
	}
	return inst, nil
}

func (m *InstrumentRepository) GetByNumber(ctx context.Context, cardNumber string) (domain.Instrument, error) {
	return m.findOne(ctx, bson.M{"card_number": cardNumber})
}

// ListByOwner returns the owner's instruments, oldest first.
func (m *InstrumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Instrument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date_added", Value: 1}})
	cursor, err := m.collection.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.Instrument
	for cursor.Next(ctx) {
		var doc instrumentDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode instrument: %w", err)
		}
		inst, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

func (m *InstrumentRepository) Upsert(ctx context.Context, inst domain.Instrument) error {
	doc, err := toDoc(inst)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to upsert instrument: %w", err)
	}
	return nil
}

func (m *InstrumentRepository) Claim(ctx context.Context, id, ownerID string, at time.Time) (domain.Instrument, error) {
	filter := bson.M{
		"_id":      id,
		"owner_id": bson.M{"$in": bson.A{"", ownerID}},
	}
	update := bson.M{"$set": bson.M{"owner_id": ownerID, "date_added": at}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc instrumentDoc
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to claim instrument: %w", err)
	}
	if _, getErr := m.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("instrument %s is owned by another user: %w", id, domain.ErrInvalidCode)
}

// AddStamp increments current_stamps only while it is below the capacity.
func (m *InstrumentRepository) AddStamp(ctx context.Context, id string) (*domain.StampCard, bool, error) {
	filter := bson.M{
		"_id":   id,
		"kind":  string(domain.InstrumentKindStampCard),
		"$expr": bson.M{"$lt": bson.A{"$current_stamps", "$stamp_capacity"}},
	}
	update := bson.M{"$inc": bson.M{"current_stamps": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc instrumentDoc
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		inst, err := doc.toDomain()
		if err != nil {
			return nil, false, err
		}
		return inst.(*domain.StampCard), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("failed to add stamp: %w", err)
	}

	inst, err := m.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	card, ok := inst.(*domain.StampCard)
	if !ok {
		return nil, false, fmt.Errorf("stamp card %s: %w", id, domain.ErrNotFound)
	}
	return card, false, nil
}

func (m *InstrumentRepository) MarkGiftCardRedeemed(ctx context.Context, id string) error {
	filter := bson.M{
		"_id":      id,
		"kind":     string(domain.InstrumentKindGiftCard),
		"redeemed": false,
	}
	result, err := m.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"redeemed": true}})
	if err != nil {
		return fmt.Errorf("failed to redeem gift card: %w", err)
	}
	if result.MatchedCount == 1 {
		return nil
	}

	inst, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := inst.(*domain.GiftCard); !ok {
		return fmt.Errorf("gift card %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("gift card %s: %w", id, domain.ErrExpiredInstrument)
}

func (m *InstrumentRepository) RestoreGiftCard(ctx context.Context, id string) error {
	filter := bson.M{
		"_id":  id,
		"kind": string(domain.InstrumentKindGiftCard),
	}
	result, err := m.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"redeemed": false}})
	if err != nil {
		return fmt.Errorf("failed to restore gift card: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("gift card %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
