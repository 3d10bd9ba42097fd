package sellers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/availability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// Store reads and updates the user directory shared with the identity
// provider. It satisfies availability.PolicyStore.
type Store struct {
	users *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{users: db.Collection(usersCollection)}
}

// EnsureIndexes creates the indexes the directory queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "name", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}
	return nil
}

// ParseID validates a user id as an ObjectID hex string.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: invalid user id %q", availability.ErrInvalidArgument, id)
	}
	return oid, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return User{}, err
	}
	return doc.user(), nil
}

// GetSeller is GetUser restricted to sellers.
func (s *Store) GetSeller(ctx context.Context, id string) (User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !u.IsSeller() {
		return User{}, fmt.Errorf("%w: seller %s", availability.ErrNotFound, id)
	}
	return u, nil
}

// ListSellers returns every seller ordered by name.
func (s *Store) ListSellers(ctx context.Context) ([]User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.users.Find(ctx, bson.M{"role": RoleSeller}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sellers: %w", err)
	}
	defer cursor.Close(ctx)

	sellers := []User{}
	for cursor.Next(ctx) {
		var doc userDocument
		if err := cursor.Decode(&doc); err != nil {
			// skip malformed profiles
			continue
		}
		sellers = append(sellers, doc.user())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list sellers: %w", err)
	}
	return sellers, nil
}

func (s *Store) GetWorkingHoursPolicy(ctx context.Context, sellerID string) (availability.WorkingHoursPolicy, error) {
	doc, err := s.find(ctx, sellerID)
	if err != nil {
		return availability.WorkingHoursPolicy{}, err
	}
	if doc.Role != RoleSeller || doc.Preferences == nil {
		return availability.WorkingHoursPolicy{}, fmt.Errorf("%w: seller %s has no working hours", availability.ErrNotFound, sellerID)
	}
	return doc.Preferences.preferences().Policy()
}

// UpdatePreferences replaces the user's preferences after validating them.
func (s *Store) UpdatePreferences(ctx context.Context, userID string, prefs Preferences) error {
	oid, err := ParseID(userID)
	if err != nil {
		return err
	}
	if _, err := prefs.Policy(); err != nil {
		return err
	}
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"preferences": preferencesDocumentFrom(prefs)}},
	)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: user %s", availability.ErrNotFound, userID)
	}
	return nil
}

// SetRole assigns seller or buyer. It reports false when the user already
// had that role.
func (s *Store) SetRole(ctx context.Context, userID, role string) (bool, error) {
	if role != RoleSeller && role != RoleBuyer {
		return false, fmt.Errorf("%w: role must be %q or %q", availability.ErrInvalidArgument, RoleSeller, RoleBuyer)
	}
	oid, err := ParseID(userID)
	if err != nil {
		return false, err
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"role": role}})
	if err != nil {
		return false, fmt.Errorf("set role: %w", err)
	}
	if res.MatchedCount == 0 {
		return false, fmt.Errorf("%w: user %s", availability.ErrNotFound, userID)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) find(ctx context.Context, id string) (userDocument, error) {
	oid, err := ParseID(id)
	if err != nil {
		return userDocument{}, err
	}
	raw, err := s.users.FindOne(ctx, bson.M{"_id": oid}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return userDocument{}, fmt.Errorf("%w: user %s", availability.ErrNotFound, id)
	}
	if err != nil {
		return userDocument{}, fmt.Errorf("find user %s: %w", id, err)
	}
	return decodeUser(raw)
}

// decodeUser separates malformed stored data from transport failures.
func decodeUser(raw bson.Raw) (userDocument, error) {
	var doc userDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return userDocument{}, fmt.Errorf("%w: malformed user document: %v", availability.ErrInvalidArgument, err)
	}
	return doc, nil
}
