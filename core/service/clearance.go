package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"slfs-backend/domain"
	"slfs-backend/internal/metrics"
	"slfs-backend/internal/validation"
)

var (
	ErrMissingFields  = errors.New("all fields are required")
	ErrLaptopNotFound = errors.New("laptop id not found in inventory")
)

type ClearanceInput struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required"`
	LaptopID   string `json:"laptopId" validate:"required"`
	Department string `json:"department" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
}

type ClearanceRepository interface {
	Create(ctx context.Context, app *domain.ClearanceApplication) error
}

// LaptopChecker is an optional inventory check run before an application is
// stored.
type LaptopChecker interface {
	LaptopExists(ctx context.Context, laptopID string) (bool, error)
}

type Validator interface {
	Validate(i interface{}) error
}

type ClearanceService interface {
	Apply(ctx context.Context, in ClearanceInput) (*domain.ClearanceApplication, error)
}

// ClearanceDeps wires the clearance service. Checker, Events and Metrics may
// be nil.
type ClearanceDeps struct {
	Repository ClearanceRepository
	Checker    LaptopChecker
	Validator  Validator
	Events     EventEmitter
	Metrics    *metrics.Metrics
	Log        *logrus.Entry
	Now        func() time.Time
}

type clearanceService struct {
	ClearanceDeps
}

func NewClearanceService(deps ClearanceDeps) ClearanceService {
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &clearanceService{ClearanceDeps: deps}
}

func (s *clearanceService) Apply(ctx context.Context, in ClearanceInput) (*domain.ClearanceApplication, error) {
	if err := s.Validator.Validate(in); err != nil {
		s.count("invalid")
		if fields := validation.FailedFields(err); len(fields) > 0 {
			s.Log.WithField("missing", fields).Info("rejected clearance application")
		}
		return nil, fmt.Errorf("%w: %v", ErrMissingFields, err)
	}

	if s.Checker != nil {
		exists, err := s.Checker.LaptopExists(ctx, in.LaptopID)
		if err != nil {
			s.count("error")
			return nil, fmt.Errorf("could not verify laptop: %w", err)
		}
		if !exists {
			s.count("unknown_laptop")
			return nil, ErrLaptopNotFound
		}
	}

	app := &domain.ClearanceApplication{
		Name:       in.Name,
		Email:      in.Email,
		LaptopID:   in.LaptopID,
		Department: in.Department,
		Reason:     in.Reason,
		Status:     domain.ClearancePending,
		CreatedAt:  s.Now().UTC(),
	}

	if err := s.Repository.Create(ctx, app); err != nil {
		s.count("error")
		return nil, err
	}

	s.count("submitted")
	if s.Events != nil {
		s.Events.Emit(domain.SubjectClearanceSubmitted, app)
	}
	s.Log.WithFields(logrus.Fields{
		"application_id": app.ID,
		"laptop_id":      app.LaptopID,
	}).Info("clearance application submitted")

	return app, nil
}

func (s *clearanceService) count(result string) {
	if s.Metrics != nil {
		s.Metrics.ClearanceResults.WithLabelValues(result).Inc()
	}
}
