package db

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

	"slfs-backend/domain"
)

const (
	clearanceCollection = "laptopapplications"
	laptopCollection    = "laptops"
)

// ConnectMongo dials uri and waits for the primary to answer a ping.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("could not connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("could not ping mongo: %w", err)
	}

	return client, nil
}

type clearanceDocument struct {
	ID         primitive.ObjectID `bson:"_id"`
	Name       string             `bson:"name"`
	Email      string             `bson:"email"`
	LaptopID   string             `bson:"laptopId"`
	Department string             `bson:"department"`
	Reason     string             `bson:"reason"`
	Status     string             `bson:"status"`
	CreatedAt  time.Time          `bson:"createdAt"`
}

type ClearanceRepository struct {
	coll *mongo.Collection
}

func NewClearanceRepository(db *mongo.Database) *ClearanceRepository {
	return &ClearanceRepository{coll: db.Collection(clearanceCollection)}
}

// Create inserts app and sets its ID.
func (r *ClearanceRepository) Create(ctx context.Context, app *domain.ClearanceApplication) error {
	doc := clearanceDocument{
		ID:         primitive.NewObjectID(),
		Name:       app.Name,
		Email:      app.Email,
		LaptopID:   app.LaptopID,
		Department: app.Department,
		Reason:     app.Reason,
		Status:     string(app.Status),
		CreatedAt:  app.CreatedAt,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("could not save clearance application: %w", err)
	}

	app.ID = doc.ID.Hex()
	return nil
}

// LaptopInventory answers whether a laptop id is registered in the
// inventory collection.
type LaptopInventory struct {
	coll *mongo.Collection
}

func NewLaptopInventory(db *mongo.Database) *LaptopInventory {
	return &LaptopInventory{coll: db.Collection(laptopCollection)}
}

func (l *LaptopInventory) LaptopExists(ctx context.Context, laptopID string) (bool, error) {
	opts := options.FindOne().SetProjection(bson.M{"_id": 1})
	err := l.coll.FindOne(ctx, bson.M{"laptopId": laptopID}, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not look up laptop %q: %w", laptopID, err)
	}
	return true, nil
}
