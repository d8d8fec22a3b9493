package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"slfs-backend/domain"
)

func TestClearanceRepositoryCreate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts the application", func(mt *mtest.T) {
		repo := &ClearanceRepository{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		app := &domain.ClearanceApplication{
			Name:       "Jane Doe",
			Email:      "jane@example.com",
			LaptopID:   "LT-001",
			Department: "Computing",
			Reason:     "Graduating",
			Status:     domain.ClearancePending,
			CreatedAt:  time.Now().UTC(),
		}
		require.NoError(mt, repo.Create(context.Background(), app))
		assert.Len(mt, app.ID, 24)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "insert", started.CommandName)
		assert.Equal(mt, "LT-001", started.Command.Lookup("documents", "0", "laptopId").StringValue())
		assert.Equal(mt, "pending", started.Command.Lookup("documents", "0", "status").StringValue())
	})

	mt.Run("surfaces write errors", func(mt *mtest.T) {
		repo := &ClearanceRepository{coll: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		app := &domain.ClearanceApplication{Name: "x"}
		require.Error(mt, repo.Create(context.Background(), app))
		assert.Empty(mt, app.ID)
	})
}

func TestLaptopInventoryLaptopExists(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		inv := &LaptopInventory{coll: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
		}))

		ok, err := inv.LaptopExists(context.Background(), "LT-001")
		require.NoError(mt, err)
		assert.True(mt, ok)
	})

	mt.Run("missing", func(mt *mtest.T) {
		inv := &LaptopInventory{coll: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		ok, err := inv.LaptopExists(context.Background(), "LT-404")
		require.NoError(mt, err)
		assert.False(mt, ok)
	})
}
