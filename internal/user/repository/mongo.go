package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"content-with-coffee/backend/internal/user/domain"
)

// UsersCollection is the MongoDB collection holding user documents.
const UsersCollection = "users"

// userDoc is the BSON shape of a user. The UUID string id is stored as _id.
type userDoc struct {
	ID             string    `bson:"_id"`
	Email          string    `bson:"email"`
	Name           string    `bson:"name,omitempty"`
	PasswordHash   string    `bson:"passwordHash,omitempty"`
	Federated      bool      `bson:"federated"`
	RefreshTokens  []string  `bson:"refreshTokens"`
	Bio            string    `bson:"bio,omitempty"`
	FavoriteDrink  string    `bson:"favoriteDrink,omitempty"`
	Location       string    `bson:"location,omitempty"`
	FollowersCount int64     `bson:"followersCount"`
	FollowingCount int64     `bson:"followingCount"`
	PostsCount     int64     `bson:"postsCount"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

type MongoRepository struct {
	db    *mongo.Database
	users *mongo.Collection
	now   func() time.Time
}

// NewMongoRepository returns a user repository backed by the users collection of db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{db: db, users: db.Collection(UsersCollection), now: time.Now}
}

// EnsureIndexes creates the unique email index. Safe to call on every start.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}
	return nil
}

// GetByID returns the user for id, or nil if not found.
func (r *MongoRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDoc
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return docToDomain(&doc), nil
}

// Create inserts u. The unique email index turns a racing duplicate into ErrDuplicateEmail.
func (r *MongoRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if _, err := r.users.InsertOne(ctx, domainToDoc(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindOrCreateFederated upserts by email with $setOnInsert so an existing user is returned untouched.
func (r *MongoRepository) FindOrCreateFederated(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":            u.ID,
		"name":           u.Name,
		"federated":      true,
		"refreshTokens":  []string{},
		"followersCount": int64(0),
		"followingCount": int64(0),
		"postsCount":     int64(0),
		"createdAt":      u.CreatedAt,
		"updatedAt":      u.UpdatedAt,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc userDoc
	err := r.users.FindOneAndUpdate(ctx, bson.M{"email": u.Email}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Two upserts raced on the unique index; the loser retries and finds the winner's document.
		err = r.users.FindOneAndUpdate(ctx, bson.M{"email": u.Email}, update, opts).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert federated user: %w", err)
	}
	return docToDomain(&doc), nil
}

// AddRefreshToken pushes digest and slices the array to the newest keep entries in one update.
func (r *MongoRepository) AddRefreshToken(ctx context.Context, userID, digest string, keep int) error {
	push := bson.M{"$each": bson.A{digest}}
	if keep > 0 {
		push["$slice"] = -keep
	}
	res, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$push": bson.M{"refreshTokens": push},
		"$set":  bson.M{"updatedAt": r.now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("append refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConsumeRefreshToken pulls digest only from a document that still contains it. Document-level
// atomicity means at most one concurrent caller observes ModifiedCount == 1.
func (r *MongoRepository) ConsumeRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	res, err := r.users.UpdateOne(ctx,
		bson.M{"_id": userID, "refreshTokens": digest},
		bson.M{
			"$pull": bson.M{"refreshTokens": digest},
			"$set":  bson.M{"updatedAt": r.now().UTC()},
		})
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// HasRefreshToken reports membership without modifying the document.
func (r *MongoRepository) HasRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	n, err := r.users.CountDocuments(ctx,
		bson.M{"_id": userID, "refreshTokens": digest},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return n > 0, nil
}

// RemoveRefreshToken pulls digest. No-op if absent.
func (r *MongoRepository) RemoveRefreshToken(ctx context.Context, userID, digest string) error {
	_, err := r.users.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"refreshTokens": digest}})
	if err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, readpref.Primary())
}

func domainToDoc(u *domain.User) *userDoc {
	tokens := u.RefreshTokens
	if tokens == nil {
		tokens = []string{}
	}
	return &userDoc{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		PasswordHash:   u.PasswordHash,
		Federated:      u.Federated,
		RefreshTokens:  tokens,
		Bio:            u.Bio,
		FavoriteDrink:  u.FavoriteDrink,
		Location:       u.Location,
		FollowersCount: u.FollowersCount,
		FollowingCount: u.FollowingCount,
		PostsCount:     u.PostsCount,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func docToDomain(d *userDoc) *domain.User {
	tokens := d.RefreshTokens
	if tokens == nil {
		tokens = []string{}
	}
	return &domain.User{
		ID:             d.ID,
		Email:          d.Email,
		Name:           d.Name,
		PasswordHash:   d.PasswordHash,
		Federated:      d.Federated,
		RefreshTokens:  tokens,
		Bio:            d.Bio,
		FavoriteDrink:  d.FavoriteDrink,
		Location:       d.Location,
		FollowersCount: d.FollowersCount,
		FollowingCount: d.FollowingCount,
		PostsCount:     d.PostsCount,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
