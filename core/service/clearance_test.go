package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slfs-backend/domain"
	"slfs-backend/internal/logger"
)

func validInput() ClearanceInput {
	return ClearanceInput{
		Name:       "Jane Doe",
		Email:      "jane@example.com",
		LaptopID:   "LT-001",
		Department: "Computing",
		Reason:     "Completed studies",
	}
}

func TestApplyPersistsApplication(t *testing.T) {
	repo := &fakeRepository{}
	events := &fakeEmitter{}
	now := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC)
	svc := NewClearanceService(ClearanceDeps{
		Repository: repo,
		Events:     events,
		Log:        logger.Discard(),
		Now:        func() time.Time { return now },
	})

	app, err := svc.Apply(context.Background(), validInput())
	require.NoError(t, err)
	require.Len(t, repo.saved, 1)

	saved := repo.saved[0]
	in := validInput()
	assert.Equal(t, in.Name, saved.Name)
	assert.Equal(t, in.Email, saved.Email)
	assert.Equal(t, in.LaptopID, saved.LaptopID)
	assert.Equal(t, in.Department, saved.Department)
	assert.Equal(t, in.Reason, saved.Reason)
	assert.Equal(t, domain.ClearancePending, saved.Status)
	assert.Equal(t, now, saved.CreatedAt)
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, []string{domain.SubjectClearanceSubmitted}, events.subjects)
}

func TestApplyRejectsMissingFields(t *testing.T) {
	blankers := map[string]func(*ClearanceInput){
		"name":       func(in *ClearanceInput) { in.Name = "" },
		"email":      func(in *ClearanceInput) { in.Email = "" },
		"laptopId":   func(in *ClearanceInput) { in.LaptopID = "" },
		"department": func(in *ClearanceInput) { in.Department = "" },
		"reason":     func(in *ClearanceInput) { in.Reason = "" },
	}

	for field, blank := range blankers {
		t.Run(field, func(t *testing.T) {
			repo := &fakeRepository{}
			checker := &fakeChecker{known: map[string]bool{"LT-001": true}}
			svc := NewClearanceService(ClearanceDeps{Repository: repo, Checker: checker, Log: logger.Discard()})

			in := validInput()
			blank(&in)

			_, err := svc.Apply(context.Background(), in)
			require.ErrorIs(t, err, ErrMissingFields)
			assert.Empty(t, repo.saved)
			assert.Zero(t, checker.calls)
		})
	}
}

func TestApplyLaptopCheck(t *testing.T) {
	repo := &fakeRepository{}
	checker := &fakeChecker{known: map[string]bool{"LT-001": true}}
	svc := NewClearanceService(ClearanceDeps{Repository: repo, Checker: checker, Log: logger.Discard()})

	_, err := svc.Apply(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.LaptopID = "LT-404"
	_, err = svc.Apply(context.Background(), in)
	require.ErrorIs(t, err, ErrLaptopNotFound)
	assert.Len(t, repo.saved, 1)

	checker.err = errors.New("mongo: server selection timeout")
	_, err = svc.Apply(context.Background(), validInput())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLaptopNotFound)
	assert.Len(t, repo.saved, 1)
}

func TestApplyStorageFailure(t *testing.T) {
	repo := &fakeRepository{err: errors.New("write concern error")}
	svc := NewClearanceService(ClearanceDeps{Repository: repo, Log: logger.Discard()})

	_, err := svc.Apply(context.Background(), validInput())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingFields)
}
