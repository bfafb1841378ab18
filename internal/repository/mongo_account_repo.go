package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"identity-service/internal/model"
)

// accountDocument mirrors the documents in the legacy User collection.
type accountDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Email         string             `bson:"email"`
	Password      *string            `bson:"password"`
	Role          string             `bson:"role,omitempty"`
	GoogleID      string             `bson:"google_id,omitempty"`
	Name          string             `bson:"name,omitempty"`
	Phone         any                `bson:"phone,omitempty"`
	Location      string             `bson:"location,omitempty"`
	Bio           string             `bson:"bio,omitempty"`
	Picture       string             `bson:"picture,omitempty"`
	EmailVerified bool               `bson:"email_verified"`
	CreatedAt     time.Time          `bson:"created_at,omitempty"`
	UpdatedAt     time.Time          `bson:"updated_at,omitempty"`
}

func (d accountDocument) toModel() model.Account {
	a := model.Account{
		ID:            d.ID.Hex(),
		Email:         d.Email,
		Role:          d.Role,
		FederatedID:   d.GoogleID,
		Name:          d.Name,
		Location:      d.Location,
		Bio:           d.Bio,
		Picture:       d.Picture,
		EmailVerified: d.EmailVerified,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Password != nil {
		a.PasswordHash = *d.Password
	}
	if a.Role == "" {
		a.Role = model.RoleUser
	}
	// Older documents stored phone numbers as integers.
	switch phone := d.Phone.(type) {
	case nil:
	case string:
		a.Phone = phone
	default:
		a.Phone = fmt.Sprint(phone)
	}
	return a
}

type MongoAccountRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoAccountRepository(coll *mongo.Collection) *MongoAccountRepository {
	return &MongoAccountRepository{coll: coll, now: time.Now}
}

// EnsureIndexes creates the unique email index and the sparse unique
// google_id index.
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "google_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("google_id_unique"),
		},
	})
	if err != nil {
		return fmt.Errorf("create account indexes: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.findOne(ctx, "find account by email", bson.M{"email": model.NormalizeEmail(email)})
}

func (r *MongoAccountRepository) FindByFederatedID(ctx context.Context, federatedID string) (model.Account, error) {
	return r.findOne(ctx, "find account by google id", bson.M{"google_id": federatedID})
}

func (r *MongoAccountRepository) findOne(ctx context.Context, op string, filter bson.M) (model.Account, error) {
	var doc accountDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Account{}, model.ErrAccountNotFound
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("%w: %s: %v", model.ErrStoreUnavailable, op, err)
	}
	return doc.toModel(), nil
}

func (r *MongoAccountRepository) Create(ctx context.Context, a *model.Account) error {
	if !a.HasAuthPath() {
		return ErrNoAuthPath
	}

	now := r.now().UTC()
	doc := accountDocument{
		Email:         model.NormalizeEmail(a.Email),
		Role:          a.Role,
		GoogleID:      a.FederatedID,
		Name:          a.Name,
		Location:      a.Location,
		Bio:           a.Bio,
		Picture:       a.Picture,
		EmailVerified: a.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if doc.Role == "" {
		doc.Role = model.RoleUser
	}
	if a.PasswordHash != "" {
		hash := a.PasswordHash
		doc.Password = &hash
	}
	if a.Phone != "" {
		doc.Phone = a.Phone
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrDuplicateIdentity
	}
	if err != nil {
		return fmt.Errorf("%w: create account: %v", model.ErrStoreUnavailable, err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		a.ID = oid.Hex()
	}
	a.Email = doc.Email
	a.Role = doc.Role
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func (r *MongoAccountRepository) Update(ctx context.Context, id string, patch model.AccountPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.ErrAccountNotFound
	}

	set, unset := patchDocument(patch)
	set["updated_at"] = r.now().UTC()
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrDuplicateIdentity
	}
	if err != nil {
		return fmt.Errorf("%w: update account: %v", model.ErrStoreUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

func (r *MongoAccountRepository) Ping(ctx context.Context) error {
	if err := r.coll.Database().Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: ping mongo: %v", model.ErrStoreUnavailable, err)
	}
	return nil
}

// patchDocument splits a patch into $set and $unset parts. An empty
// google_id is unset so the sparse unique index keeps ignoring it.
func patchDocument(p model.AccountPatch) (bson.M, bson.M) {
	set := bson.M{}
	unset := bson.M{}

	if p.Email != nil {
		set["email"] = model.NormalizeEmail(*p.Email)
	}
	if p.PasswordHash != nil {
		set["password"] = *p.PasswordHash
	}
	if p.Role != nil {
		set["role"] = *p.Role
	}
	if p.FederatedID != nil {
		if *p.FederatedID == "" {
			unset["google_id"] = ""
		} else {
			set["google_id"] = *p.FederatedID
		}
	}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Phone != nil {
		set["phone"] = *p.Phone
	}
	if p.Location != nil {
		set["location"] = *p.Location
	}
	if p.Bio != nil {
		set["bio"] = *p.Bio
	}
	if p.Picture != nil {
		set["picture"] = *p.Picture
	}
	if p.EmailVerified != nil {
		set["email_verified"] = *p.EmailVerified
	}

	return set, unset
}
