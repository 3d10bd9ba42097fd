package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/calbook/services/scheduling-service/internal/sellers"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	accountsCollection = "accounts"
	providerGoogle     = "google"
)

var ErrNotLinked = errors.New("google account not linked")

type accountDocument struct {
	ID           primitive.ObjectID `bson:"_id"`
	UserID       primitive.ObjectID `bson:"userId"`
	Provider     string             `bson:"provider"`
	RefreshToken string             `bson:"refresh_token,omitempty"`
}

// Store reads OAuth refresh tokens from the accounts the sign-in flow links.
type Store struct {
	accounts *mongo.Collection
	sealer   *Sealer
}

func NewStore(db *mongo.Database, sealer *Sealer) *Store {
	return &Store{accounts: db.Collection(accountsCollection), sealer: sealer}
}

// RefreshToken returns the user's Google refresh token in plaintext.
func (s *Store) RefreshToken(ctx context.Context, userID string) (string, error) {
	oid, err := sellers.ParseID(userID)
	if err != nil {
		return "", err
	}
	var acct accountDocument
	err = s.accounts.FindOne(ctx, bson.M{"userId": oid, "provider": providerGoogle}).Decode(&acct)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", fmt.Errorf("%w: user %s", ErrNotLinked, userID)
	}
	if err != nil {
		return "", fmt.Errorf("find account: %w", err)
	}
	if acct.RefreshToken == "" {
		return "", fmt.Errorf("%w: user %s has no refresh token", ErrNotLinked, userID)
	}
	return s.sealer.Open(acct.RefreshToken)
}

// SealPlaintext encrypts every stored refresh token that is not sealed yet
// and returns how many were rewritten.
func (s *Store) SealPlaintext(ctx context.Context) (int, error) {
	if s.sealer == nil {
		return 0, ErrNoKey
	}
	filter := bson.M{
		"provider":      providerGoogle,
		"refresh_token": bson.M{"$exists": true, "$ne": "", "$not": primitive.Regex{Pattern: "^" + sealedPrefix}},
	}
	cursor, err := s.accounts.Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("find plaintext tokens: %w", err)
	}
	defer cursor.Close(ctx)

	sealed := 0
	for cursor.Next(ctx) {
		var acct accountDocument
		if err := cursor.Decode(&acct); err != nil {
			return sealed, err
		}
		token, err := s.sealer.Seal(acct.RefreshToken)
		if err != nil {
			return sealed, err
		}
		// Guarding on the old value keeps a concurrent token refresh intact.
		res, err := s.accounts.UpdateOne(ctx,
			bson.M{"_id": acct.ID, "refresh_token": acct.RefreshToken},
			bson.M{"$set": bson.M{"refresh_token": token}},
		)
		if err != nil {
			return sealed, fmt.Errorf("seal account %s: %w", acct.ID.Hex(), err)
		}
		sealed += int(res.ModifiedCount)
	}
	return sealed, cursor.Err()
}
