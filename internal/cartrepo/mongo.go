package cartrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cartTTL = 90 * 24 * time.Hour

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func (m *MongoRepository) AddItems(ctx context.Context, userID int64, lines []domain.NewLine) (*domain.Cart, error) {
	now := time.Now().UTC()

	cart, err := m.GetCart(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		cart = &domain.Cart{UserID: userID, CreatedAt: now}
	} else if err != nil {
		return nil, err
	}

	cart.Items = mergeItems(cart.Items, lines, now)
	cart.UpdatedAt = now

	update := bson.M{
		"$set": bson.M{
			"items":      cart.Items,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": cart.CreatedAt},
	}
	_, err = m.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("failed to add items: %w", err)
	}
	return cart, nil
}

// mergeItems folds lines into items, keeping at most one item per product.
func mergeItems(items []domain.CartItem, lines []domain.NewLine, now time.Time) []domain.CartItem {
	merged := make([]domain.CartItem, len(items), len(items)+len(lines))
	copy(merged, items)

	index := make(map[int64]int, len(merged))
	for i, item := range merged {
		index[item.ProductID] = i
	}

	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity = domain.ClampQuantity(merged[i].Quantity + line.Quantity)
			if line.CustomBuildName != "" {
				merged[i].CustomBuildName = line.CustomBuildName
			}
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, domain.CartItem{
			ID:              uuid.NewString(),
			ProductID:       line.ProductID,
			Quantity:        domain.ClampQuantity(line.Quantity),
			CustomBuildName: line.CustomBuildName,
			AddedAt:         now,
		})
	}
	return merged
}

func (m *MongoRepository) UpdateLineQuantity(ctx context.Context, userID int64, lineID string, quantity int) error {
	filter := bson.M{
		"user_id":  userID,
		"items.id": lineID,
	}

	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": domain.ClampQuantity(quantity),
			"updated_at":             time.Now().UTC(),
		},
	}

	arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.id": lineID},
		},
	})

	result, err := m.collection.UpdateOne(ctx, filter, update, arrayFilters)
	if err != nil {
		return fmt.Errorf("failed to update line quantity: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *MongoRepository) RemoveLine(ctx context.Context, userID int64, lineID string) error {
	filter := bson.M{
		"user_id":  userID,
		"items.id": lineID,
	}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"id": lineID},
		},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove line: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, userID int64) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) OwnerOfLine(ctx context.Context, lineID string) (int64, error) {
	var owner struct {
		UserID int64 `bson:"user_id"`
	}
	opts := options.FindOne().SetProjection(bson.M{"user_id": 1})

	err := m.collection.FindOne(ctx, bson.M{"items.id": lineID}, opts).Decode(&owner)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrItemNotFound
		}
		return 0, fmt.Errorf("failed to find line owner: %w", err)
	}
	return owner.UserID, nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "items.id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
