package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// OrderRepository persists orders as documents with their items embedded.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByBuyerID(ctx context.Context, buyerID string) ([]models.Order, error)
	Update(ctx context.Context, id string, update models.OrderUpdate) error
	Watch(ctx context.Context, id string) (<-chan models.Order, error)
}

// MongoOrderRepository implements OrderRepository on a MongoDB collection.
type MongoOrderRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewMongoOrderRepository(coll *mongo.Collection, logger *zap.Logger) *MongoOrderRepository {
	return &MongoOrderRepository{coll: coll, logger: logger}
}

type orderItemDocument struct {
	ProductID   string  `bson:"product_id"`
	ProductName string  `bson:"product_name"`
	Price       float64 `bson:"price"`
	Quantity    int     `bson:"quantity"`
	ImageURL    string  `bson:"image_url,omitempty"`
}

type orderDocument struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty"`
	BuyerID        string              `bson:"buyer_id"`
	Items          []orderItemDocument `bson:"items"`
	TotalAmount    float64             `bson:"total_amount"`
	PaymentMethod  string              `bson:"payment_method"`
	PaymentStatus  string              `bson:"payment_status"`
	DeliveryStatus string              `bson:"delivery_status"`
	CreatedAt      time.Time           `bson:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at"`
}

func toOrderDocument(o *models.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDocument{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Price:       it.Price,
			Quantity:    it.Quantity,
			ImageURL:    it.ImageURL,
		})
	}
	return orderDocument{
		BuyerID:        o.BuyerID,
		Items:          items,
		TotalAmount:    o.TotalAmount,
		PaymentMethod:  string(o.PaymentMethod),
		PaymentStatus:  string(o.PaymentStatus),
		DeliveryStatus: string(o.DeliveryStatus),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (d orderDocument) toModel() models.Order {
	items := make([]models.OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, models.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Price:       it.Price,
			Quantity:    it.Quantity,
			ImageURL:    it.ImageURL,
		})
	}
	return models.Order{
		ID:             d.ID.Hex(),
		BuyerID:        d.BuyerID,
		Items:          items,
		TotalAmount:    d.TotalAmount,
		PaymentMethod:  models.PaymentMethod(d.PaymentMethod),
		PaymentStatus:  models.OrderPaymentStatus(d.PaymentStatus),
		DeliveryStatus: models.DeliveryStatus(d.DeliveryStatus),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// EnsureIndexes creates the buyer listing index.
func (r *MongoOrderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// Create inserts order and sets order.ID to the id assigned by the store.
func (r *MongoOrderRepository) Create(ctx context.Context, order *models.Order) error {
	res, err := r.coll.InsertOne(ctx, toOrderDocument(order))
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	order.ID = oid.Hex()
	return nil
}

func (r *MongoOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var doc orderDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	order := doc.toModel()
	return &order, nil
}

// FindByBuyerID lists a buyer's orders, newest first.
func (r *MongoOrderRepository) FindByBuyerID(ctx context.Context, buyerID string) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"buyer_id": buyerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find buyer orders: %w", err)
	}
	defer cur.Close(ctx)

	var docs []orderDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode buyer orders: %w", err)
	}
	orders := make([]models.Order, 0, len(docs))
	for _, d := range docs {
		orders = append(orders, d.toModel())
	}
	return orders, nil
}

// Update applies every non-nil field of update in a single $set so readers
// never see one status changed without the other.
func (r *MongoOrderRepository) Update(ctx context.Context, id string, update models.OrderUpdate) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if update.DeliveryStatus != nil {
		set["delivery_status"] = string(*update.DeliveryStatus)
	}
	if update.PaymentStatus != nil {
		set["payment_status"] = string(*update.PaymentStatus)
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Watch emits the current order, then a fresh snapshot after every change,
// until ctx is done. Requires a replica set (change streams).
func (r *MongoOrderRepository) Watch(ctx context.Context, id string) (<-chan models.Order, error) {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oid, _ := primitive.ObjectIDFromHex(id)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": oid}}},
	}
	stream, err := r.coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("watch order: %w", err)
	}

	out := make(chan models.Order, 1)
	out <- *current

	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var change struct {
				FullDocument *orderDocument `bson:"fullDocument"`
			}
			if err := stream.Decode(&change); err != nil {
				r.logger.Warn("Failed to decode order change", zap.String("order_id", id), zap.Error(err))
				continue
			}
			if change.FullDocument == nil {
				continue
			}
			select {
			case out <- change.FullDocument.toModel():
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			r.logger.Warn("Order change stream ended", zap.String("order_id", id), zap.Error(err))
		}
	}()

	return out, nil
}
