package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/socialnet/backend/internal/models"
)

const (
	usersCollection   = "users"
	revokedCollection = "revoked_refresh_tokens"

	driverTransientTransactionLabel = "TransientTransactionError"
)

var mongoRelationKeys = map[models.RelationField]string{
	models.FieldFriendRequestsOut: "friendRequestsOut",
	models.FieldFriendRequestsIn:  "friendRequestsIn",
	models.FieldFriends:           "friends",
	models.FieldFollowers:         "followers",
	models.FieldFollowing:         "following",
}

type userDocument struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty"`
	Username          string               `bson:"username"`
	Firstname         string               `bson:"firstname"`
	Lastname          string               `bson:"lastname"`
	Email             string               `bson:"email"`
	Gender            string               `bson:"gender"`
	PasswordHash      string               `bson:"password"`
	Roles             []string             `bson:"roles"`
	ProfilePicture    string               `bson:"profilePicture"`
	CoverPicture      string               `bson:"coverPicture"`
	Bio               string               `bson:"bio"`
	FriendRequestsOut []primitive.ObjectID `bson:"friendRequestsOut"`
	FriendRequestsIn  []primitive.ObjectID `bson:"friendRequestsIn"`
	Friends           []primitive.ObjectID `bson:"friends"`
	Followers         []primitive.ObjectID `bson:"followers"`
	Following         []primitive.ObjectID `bson:"following"`
	CreatedAt         time.Time            `bson:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
}

// MongoStore persists accounts in a MongoDB replica set.
type MongoStore struct {
	client  *mongo.Client
	users   *mongo.Collection
	revoked *mongo.Collection
	now     func() time.Time
}

// NewMongoStore wraps a connected client and database.
func NewMongoStore(client *mongo.Client, database *mongo.Database) *MongoStore {
	return &MongoStore{
		client:  client,
		users:   database.Collection(usersCollection),
		revoked: database.Collection(revokedCollection),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the unique and TTL indexes the store relies on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	_, err = s.revoked.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("create revocation ttl index: %w", err)
	}
	return nil
}

// Create inserts a new user document.
func (s *MongoStore) Create(ctx context.Context, user models.User) (models.User, error) {
	now := s.now()
	doc := userDocument{
		ID:                primitive.NewObjectID(),
		Username:          user.Username,
		Firstname:         user.Firstname,
		Lastname:          user.Lastname,
		Email:             user.Email,
		Gender:            user.Gender,
		PasswordHash:      user.PasswordHash,
		Roles:             user.Roles,
		Bio:               user.Bio,
		FriendRequestsOut: []primitive.ObjectID{},
		FriendRequestsIn:  []primitive.ObjectID{},
		Friends:           []primitive.ObjectID{},
		Followers:         []primitive.ObjectID{},
		Following:         []primitive.ObjectID{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if doc.Roles == nil {
		doc.Roles = []string{}
	}

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return doc.toModel(), nil
}

// FindByID fetches a user by its hex object id.
func (s *MongoStore) FindByID(ctx context.Context, id string) (models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// FindByUsername fetches a user by username.
func (s *MongoStore) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

// FindByEmail fetches a user by email address.
func (s *MongoStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return doc.toModel(), nil
}

// List returns every user ordered by creation time.
func (s *MongoStore) List(ctx context.Context) ([]models.User, error) {
	cursor, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	for cursor.Next(ctx) {
		var doc userDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		users = append(users, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpdatePicture records the location of a newly uploaded picture.
func (s *MongoStore) UpdatePicture(ctx context.Context, id string, kind models.PictureKind, location string) (models.User, error) {
	var key string
	switch kind {
	case models.PictureProfile:
		key = "profilePicture"
	case models.PictureCover:
		key = "coverPicture"
	default:
		return models.User{}, ErrUnknownField
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, ErrNotFound
	}

	var doc userDocument
	err = s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{key: location, "updatedAt": s.now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update %s: %w", key, err)
	}
	return doc.toModel(), nil
}

// Delete removes the user and pulls its id from every relationship set in one transaction.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	return s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := s.users.DeleteOne(sc, bson.M{"_id": oid})
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}

		pull := bson.M{}
		var referenced bson.A
		for _, key := range mongoRelationKeys {
			pull[key] = oid
			referenced = append(referenced, bson.M{key: oid})
		}
		_, err = s.users.UpdateMany(sc,
			bson.M{"$or": referenced},
			bson.M{"$pull": pull, "$set": bson.M{"updatedAt": s.now()}},
		)
		if err != nil {
			return fmt.Errorf("remove user references: %w", err)
		}
		return nil
	})
}

// ApplyRelations touches both documents inside a transaction so concurrent
// transitions on the same pair conflict, evaluates plan and applies its changes.
func (s *MongoStore) ApplyRelations(ctx context.Context, userID, otherID string, plan models.RelationPlan) error {
	ids := make(map[string]primitive.ObjectID, 2)
	for _, id := range []string{userID, otherID} {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return ErrNotFound
		}
		ids[id] = oid
	}

	return s.inTransaction(ctx, func(sc mongo.SessionContext) error {
		loaded := make(map[string]models.Relations, 2)
		for id, oid := range ids {
			var doc userDocument
			err := s.users.FindOneAndUpdate(sc,
				bson.M{"_id": oid},
				bson.M{"$set": bson.M{"updatedAt": s.now()}},
				options.FindOneAndUpdate().SetReturnDocument(options.After),
			).Decode(&doc)
			if err != nil {
				if errors.Is(err, mongo.ErrNoDocuments) {
					return ErrNotFound
				}
				return fmt.Errorf("lock user: %w", err)
			}
			loaded[id] = doc.toModel().Relations
		}

		changes, err := plan(loaded[userID], loaded[otherID])
		if err != nil {
			return err
		}

		for _, change := range changes {
			key, ok := mongoRelationKeys[change.Field]
			if !ok {
				return ErrUnknownField
			}
			owner, ok := ids[change.UserID]
			if !ok {
				return ErrNotFound
			}
			target, err := primitive.ObjectIDFromHex(change.Target)
			if err != nil {
				return ErrNotFound
			}

			op := "$addToSet"
			if change.Remove {
				op = "$pull"
			}
			if _, err := s.users.UpdateOne(sc, bson.M{"_id": owner}, bson.M{op: bson.M{key: target}}); err != nil {
				return fmt.Errorf("update %s: %w", key, err)
			}
		}
		return nil
	})
}

// inTransaction runs fn in a single transaction attempt. Failures abort and are
// returned as-is; nothing is retried.
func (s *MongoStore) inTransaction(ctx context.Context, fn func(mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	return mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		if err := session.StartTransaction(); err != nil {
			return fmt.Errorf("start transaction: %w", err)
		}
		if err := fn(sc); err != nil {
			_ = session.AbortTransaction(context.Background())
			return transactionError(err)
		}
		if err := session.CommitTransaction(sc); err != nil {
			return transactionError(fmt.Errorf("commit transaction: %w", err))
		}
		return nil
	})
}

// transactionError marks aborts caused by a competing transaction so callers
// can report them as conflicts instead of server failures.
func transactionError(err error) error {
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel(driverTransientTransactionLabel) {
		return fmt.Errorf("%w: %w", ErrWriteConflict, err)
	}
	return err
}

// Revoke records the token id; the TTL index removes it after expiresAt.
func (s *MongoStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := s.revoked.UpdateOne(ctx,
		bson.M{"_id": tokenID},
		bson.M{"$set": bson.M{"expiresAt": expiresAt.UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert revoked token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id was revoked and has not yet expired.
func (s *MongoStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	count, err := s.revoked.CountDocuments(ctx, bson.M{
		"_id":       tokenID,
		"expiresAt": bson.M{"$gt": s.now()},
	})
	if err != nil {
		return false, fmt.Errorf("count revoked token: %w", err)
	}
	return count > 0, nil
}

// Ping checks that the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (d userDocument) toModel() models.User {
	return models.User{
		ID:             d.ID.Hex(),
		Username:       d.Username,
		Firstname:      d.Firstname,
		Lastname:       d.Lastname,
		Email:          d.Email,
		Gender:         d.Gender,
		PasswordHash:   d.PasswordHash,
		Roles:          d.Roles,
		ProfilePicture: d.ProfilePicture,
		CoverPicture:   d.CoverPicture,
		Bio:            d.Bio,
		Relations: models.Relations{
			FriendRequestsOut: hexIDs(d.FriendRequestsOut),
			FriendRequestsIn:  hexIDs(d.FriendRequestsIn),
			Friends:           hexIDs(d.Friends),
			Followers:         hexIDs(d.Followers),
			Following:         hexIDs(d.Following),
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func hexIDs(ids []primitive.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

var _ Store = (*MongoStore)(nil)
