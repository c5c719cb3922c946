package directory

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// userDoc is the stored shape of a UserRecord. The *_key fields are
// lower-cased copies used for case-insensitive lookups.
type userDoc struct {
	ID            string    `bson:"_id"`
	Role          string    `bson:"role"`
	FullName      string    `bson:"full_name,omitempty"`
	Email         string    `bson:"email,omitempty"`
	EmailKey      string    `bson:"email_key,omitempty"`
	Phone         string    `bson:"phone,omitempty"`
	BloodGroup    string    `bson:"blood_group,omitempty"`
	OrganTypes    []string  `bson:"organ_types"`
	OrganKeys     []string  `bson:"organ_keys"`
	Verified      bool      `bson:"verified"`
	EmailVerified bool      `bson:"email_verified"`
	HospitalID    string    `bson:"hospital_id,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func toUserDoc(u *UserRecord) userDoc {
	d := userDoc{
		ID:            u.ID.String(),
		Role:          u.Role,
		FullName:      u.FullName,
		Email:         u.Email,
		EmailKey:      strings.ToLower(u.Email),
		Phone:         u.Phone,
		BloodGroup:    u.BloodGroup,
		OrganTypes:    u.OrganTypes,
		OrganKeys:     make([]string, 0, len(u.OrganTypes)),
		Verified:      u.Verified,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	if d.OrganTypes == nil {
		d.OrganTypes = []string{}
	}
	for _, o := range u.OrganTypes {
		d.OrganKeys = append(d.OrganKeys, strings.ToLower(o))
	}
	if u.HospitalID != nil {
		d.HospitalID = u.HospitalID.String()
	}
	return d
}

func (d userDoc) record() (*UserRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	u := &UserRecord{
		ID:            id,
		Role:          d.Role,
		FullName:      d.FullName,
		Email:         d.Email,
		Phone:         d.Phone,
		BloodGroup:    d.BloodGroup,
		OrganTypes:    d.OrganTypes,
		Verified:      d.Verified,
		EmailVerified: d.EmailVerified,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if u.OrganTypes == nil {
		u.OrganTypes = []string{}
	}
	if d.HospitalID != "" {
		if hid, err := uuid.Parse(d.HospitalID); err == nil {
			u.HospitalID = &hid
		}
	}
	return u, nil
}

type userRepoMongo struct {
	coll *mongo.Collection
}

func NewUserRepoMongo(coll *mongo.Collection) Repository {
	return &userRepoMongo{coll: coll}
}

func (r *userRepoMongo) Create(ctx context.Context, u *UserRecord) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := r.coll.InsertOne(ctx, toUserDoc(u))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *userRepoMongo) findOne(ctx context.Context, filter bson.M) (*UserRecord, error) {
	var d userDoc
	err := r.coll.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.record()
}

func (r *userRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*UserRecord, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *userRepoMongo) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return r.findOne(ctx, bson.M{"email_key": strings.ToLower(email)})
}

func (r *userRepoMongo) Update(ctx context.Context, u *UserRecord) error {
	u.UpdatedAt = time.Now().UTC()
	d := toUserDoc(u)
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": d.ID}, bson.M{"$set": bson.M{
		"role":           d.Role,
		"full_name":      d.FullName,
		"email":          d.Email,
		"email_key":      d.EmailKey,
		"phone":          d.Phone,
		"blood_group":    d.BloodGroup,
		"organ_types":    d.OrganTypes,
		"organ_keys":     d.OrganKeys,
		"verified":       d.Verified,
		"email_verified": d.EmailVerified,
		"hospital_id":    d.HospitalID,
		"updated_at":     d.UpdatedAt,
	}})
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepoMongo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func mongoFilter(f Filter) bson.M {
	m := bson.M{}
	if f.Role != "" {
		m["role"] = f.Role
	}
	if f.BloodGroup != "" {
		m["blood_group"] = strings.ToUpper(f.BloodGroup)
	}
	if f.OrganType != "" {
		m["organ_keys"] = strings.ToLower(f.OrganType)
	}
	if f.Verified != nil {
		m["verified"] = *f.Verified
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
		m["$or"] = bson.A{bson.M{"full_name": pattern}, bson.M{"email": pattern}}
	}
	return m
}

var creationOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

func (r *userRepoMongo) List(ctx context.Context, f Filter, limit, offset int) ([]*UserRecord, int, error) {
	filter := mongoFilter(f)
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := r.coll.Find(ctx, filter, options.Find().
		SetSort(creationOrder).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, err
	}
	users, err := decodeUsers(ctx, cur)
	return users, int(total), err
}

func (r *userRepoMongo) QueryByRole(ctx context.Context, role string) ([]*UserRecord, error) {
	cur, err := r.coll.Find(ctx, bson.M{"role": role}, options.Find().SetSort(creationOrder))
	if err != nil {
		return nil, err
	}
	return decodeUsers(ctx, cur)
}

func decodeUsers(ctx context.Context, cur *mongo.Cursor) ([]*UserRecord, error) {
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]*UserRecord, 0, len(docs))
	for _, d := range docs {
		u, err := d.record()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
