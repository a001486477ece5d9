package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

const catalogCollection = "catalog"

type productDocument struct {
	ID         string               `bson:"_id"`
	Title      string               `bson:"title"`
	Price      primitive.Decimal128 `bson:"price"`
	Category   string               `bson:"category"`
	Attributes map[string]any       `bson:"attributes,omitempty"`
	Version    int64                `bson:"version"`
	CreatedAt  time.Time            `bson:"createdAt"`
	UpdatedAt  time.Time            `bson:"updatedAt"`
}

// MongoAdapter stores catalog documents. Ids are random UUIDs and the
// version field guards updates.
type MongoAdapter struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoAdapter(db *mongo.Database) *MongoAdapter {
	return &MongoAdapter{
		coll: db.Collection(catalogCollection),
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func (m *MongoAdapter) Insert(ctx context.Context, p domain.Product) (*domain.Product, error) {
	now := m.now()
	p.ID = uuid.NewString()
	p.Version = 0
	p.CreatedAt, p.UpdatedAt = now, now

	doc, err := toDocument(p)
	if err != nil {
		return nil, err
	}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return &p, nil
}

func (m *MongoAdapter) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var doc productDocument
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}
	return fromDocument(doc)
}

func (m *MongoAdapter) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	price, err := primitive.ParseDecimal128(p.Price.String())
	if err != nil {
		return nil, fmt.Errorf("encode price: %w", err)
	}
	now := m.now()

	result, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": p.ID, "version": p.Version},
		bson.M{
			"$set": bson.M{
				"title":      p.Title,
				"price":      price,
				"category":   p.Category,
				"attributes": p.Attributes,
				"updatedAt":  now,
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, fmt.Errorf("product %s at version %d: %w", p.ID, p.Version, domain.ErrConflict)
	}

	p.Version++
	p.UpdatedAt = now
	return &p, nil
}

func (m *MongoAdapter) DeleteByID(ctx context.Context, id string) (bool, error) {
	result, err := m.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	return result.DeletedCount > 0, nil
}

func (m *MongoAdapter) FindPage(ctx context.Context, req domain.PageRequest) ([]domain.Product, int64, error) {
	total, err := m.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	dir := 1
	if req.SortDesc {
		dir = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: req.SortBy, Value: dir}, {Key: "_id", Value: 1}}).
		SetSkip(req.Offset()).
		SetLimit(int64(req.Size))

	cur, err := m.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find products: %w", err)
	}
	defer cur.Close(ctx)

	var docs []productDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode products: %w", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := fromDocument(doc)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, total, nil
}

func toDocument(p domain.Product) (productDocument, error) {
	price, err := primitive.ParseDecimal128(p.Price.String())
	if err != nil {
		return productDocument{}, fmt.Errorf("encode price: %w", err)
	}
	return productDocument{
		ID:         p.ID,
		Title:      p.Title,
		Price:      price,
		Category:   p.Category,
		Attributes: p.Attributes,
		Version:    p.Version,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}, nil
}

func fromDocument(doc productDocument) (*domain.Product, error) {
	price, err := decimal.NewFromString(doc.Price.String())
	if err != nil {
		return nil, fmt.Errorf("decode price of %s: %w", doc.ID, err)
	}
	return &domain.Product{
		ID:         doc.ID,
		Title:      doc.Title,
		Price:      price,
		Category:   doc.Category,
		Attributes: doc.Attributes,
		Version:    doc.Version,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}
