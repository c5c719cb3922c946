package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type matchDoc struct {
	ID            string     `bson:"_id"`
	DonorID       string     `bson:"donor_id"`
	RecipientID   string     `bson:"recipient_id"`
	DonorName     string     `bson:"donor_name,omitempty"`
	RecipientName string     `bson:"recipient_name,omitempty"`
	BloodGroup    string     `bson:"blood_group"`
	OrganType     string     `bson:"organ_type"`
	OrganKey      string     `bson:"organ_key"`
	Score         int        `bson:"score"`
	Status        string     `bson:"status"`
	Tracking      Tracking   `bson:"tracking"`
	DecidedBy     string     `bson:"decided_by,omitempty"`
	DecidedAt     *time.Time `bson:"decided_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func (d matchDoc) record() (*MatchRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("match id %q: %w", d.ID, err)
	}
	donor, err := uuid.Parse(d.DonorID)
	if err != nil {
		return nil, fmt.Errorf("donor id %q: %w", d.DonorID, err)
	}
	recipient, err := uuid.Parse(d.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("recipient id %q: %w", d.RecipientID, err)
	}
	return &MatchRecord{
		ID:            id,
		DonorID:       donor,
		RecipientID:   recipient,
		DonorName:     d.DonorName,
		RecipientName: d.RecipientName,
		BloodGroup:    d.BloodGroup,
		OrganType:     d.OrganType,
		Score:         d.Score,
		Status:        Status(d.Status),
		Tracking:      d.Tracking,
		DecidedBy:     d.DecidedBy,
		DecidedAt:     d.DecidedAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

type matchStoreMongo struct {
	coll *mongo.Collection
}

// NewMatchStoreMongo expects the matches_triple_uq index from
// mongostore.EnsureIndexes to be in place.
func NewMatchStoreMongo(coll *mongo.Collection) Store {
	return &matchStoreMongo{coll: coll}
}

var returnAfter = options.FindOneAndUpdate().SetReturnDocument(options.After)

func (s *matchStoreMongo) findAndUpdate(ctx context.Context, filter, update bson.M, opts ...*options.FindOneAndUpdateOptions) (*MatchRecord, error) {
	var d matchDoc
	err := s.coll.FindOneAndUpdate(ctx, filter, update, append([]*options.FindOneAndUpdateOptions{returnAfter}, opts...)...).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.record()
}

func (s *matchStoreMongo) Upsert(ctx context.Context, p MatchProposal) (*MatchRecord, bool, error) {
	now := time.Now().UTC()
	newID := uuid.New()
	filter := bson.M{
		"donor_id":     p.DonorID.String(),
		"recipient_id": p.RecipientID.String(),
		"organ_key":    OrganKey(p.OrganType),
	}
	update := bson.M{
		"$set": bson.M{
			"donor_name":     p.DonorName,
			"recipient_name": p.RecipientName,
			"blood_group":    p.BloodGroup,
			"score":          p.Score,
			"updated_at":     now,
		},
		"$setOnInsert": bson.M{
			"_id":        newID.String(),
			"organ_type": p.OrganType,
			"status":     string(StatusPending),
			"tracking":   bson.M{},
			"created_at": now,
		},
	}
	m, err := s.findAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetUpsert(true))
	if err != nil {
		return nil, false, fmt.Errorf("upsert match %s/%s/%s: %w", p.DonorID, p.RecipientID, p.OrganType, err)
	}
	return m, m.ID == newID, nil
}

// UpsertAll writes sequentially and stops at the first failure; standalone
// deployments have no multi-document transactions.
func (s *matchStoreMongo) UpsertAll(ctx context.Context, ps []MatchProposal) ([]Upserted, error) {
	out := make([]Upserted, 0, len(ps))
	for _, p := range ps {
		m, created, err := s.Upsert(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, Upserted{Record: m, Created: created})
	}
	return out, nil
}

func (s *matchStoreMongo) GetByID(ctx context.Context, id uuid.UUID) (*MatchRecord, error) {
	var d matchDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.record()
}

func matchFilter(f Filter) bson.M {
	m := bson.M{}
	if f.Status != "" {
		m["status"] = string(f.Status)
	}
	if f.OrganType != "" {
		m["organ_key"] = OrganKey(f.OrganType)
	}
	if f.BloodGroup != "" {
		m["blood_group"] = strings.ToUpper(f.BloodGroup)
	}
	if f.DonorID != nil {
		m["donor_id"] = f.DonorID.String()
	}
	if f.RecipientID != nil {
		m["recipient_id"] = f.RecipientID.String()
	}
	if f.Participant != nil {
		id := f.Participant.String()
		m["$or"] = bson.A{bson.M{"donor_id": id}, bson.M{"recipient_id": id}}
	}
	return m
}

func (s *matchStoreMongo) List(ctx context.Context, f Filter, limit, offset int) ([]*MatchRecord, int, error) {
	filter := matchFilter(f)
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, err
	}

	var docs []matchDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	out := make([]*MatchRecord, 0, len(docs))
	for _, d := range docs {
		m, err := d.record()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, int(total), nil
}

func (s *matchStoreMongo) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, decidedBy string) (*MatchRecord, error) {
	now := time.Now().UTC()
	m, err := s.findAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": string(StatusPending)},
		bson.M{"$set": bson.M{
			"status":     string(to),
			"decided_by": decidedBy,
			"decided_at": now,
			"updated_at": now,
		}})
	if errors.Is(err, ErrNotFound) {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return m, err
}

func (s *matchStoreMongo) UpdateTracking(ctx context.Context, id uuid.UUID, t Tracking, entry TimelineEntry) (*MatchRecord, error) {
	return s.findAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{
			"$set": bson.M{
				"tracking.tracking_status": t.TrackingStatus,
				"tracking.hospital":        t.Hospital,
				"tracking.scheduled_date":  t.ScheduledDate,
				"tracking.surgeon":         t.Surgeon,
				"tracking.notes":           t.Notes,
				"updated_at":               time.Now().UTC(),
			},
			"$push": bson.M{"tracking.timeline": entry},
		})
}
