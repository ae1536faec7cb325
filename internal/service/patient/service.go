package patient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/repository"
	"github.com/jwalitptl/deepmed-api/internal/service/event"
	"github.com/jwalitptl/deepmed-api/internal/service/prediction"
	"github.com/jwalitptl/deepmed-api/pkg/errors"
	"github.com/jwalitptl/deepmed-api/pkg/logger"
)

const (
	MsgFieldsRequired  = "All fields are required"
	MsgHistoryRequired = "name and phone are required"
)

// Predictor produces a prediction for free-text symptoms. It always answers.
type Predictor interface {
	Predict(ctx context.Context, symptoms string) *prediction.Outcome
}

// Result is what a submission returns to the caller.
type Result struct {
	Prediction model.Prediction
	Source     string
	Record     *model.PatientRecord
}

type Service struct {
	repo      repository.PatientRepository
	events    *event.EventService
	predictor Predictor
	logger    *logger.Logger
	now       func() time.Time
}

// NewService wires the patient workflow. outbox may be nil, in which case no
// events are recorded.
func NewService(repo repository.PatientRepository, outbox repository.OutboxRepository, predictor Predictor, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	var events *event.EventService
	if outbox != nil {
		events = event.NewEventService(outbox)
	}
	return &Service{
		repo:      repo,
		events:    events,
		predictor: predictor,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates the request, obtains a prediction and stores it under the
// phone number, replacing any earlier submission.
func (s *Service) Submit(ctx context.Context, req model.PredictRequest) (*Result, error) {
	req.Normalize()
	if !req.Valid() {
		return nil, errors.BadRequest(MsgFieldsRequired, nil)
	}

	outcome := s.predictor.Predict(ctx, req.Symptoms)

	stored, err := s.repo.UpsertByPhone(ctx, &model.PatientRecord{
		Name:       req.Name,
		Phone:      req.Phone,
		Address:    req.Address,
		Symptoms:   req.Symptoms,
		Prediction: outcome.Prediction,
	})
	if err != nil {
		if stderrors.Is(err, repository.ErrInvalidRecord) {
			return nil, errors.BadRequest(MsgFieldsRequired, err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to store patient record: %w", err))
	}

	s.recordEvent(ctx, model.EventPredictionRecorded, model.PredictionRecordedPayload{
		RecordID:   stored.ID,
		Phone:      stored.Phone,
		Source:     outcome.Source(),
		RecordedAt: s.now(),
	})

	return &Result{Prediction: outcome.Prediction, Source: outcome.Source(), Record: stored}, nil
}

// History returns the records stored for name and phone, newest first.
func (s *Service) History(ctx context.Context, name, phone string) ([]*model.PatientRecord, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return nil, errors.BadRequest(MsgHistoryRequired, nil)
	}

	records, err := s.repo.FindHistory(ctx, name, phone)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to fetch history: %w", err))
	}
	return records, nil
}

// List pages through every stored record.
func (s *Service) List(ctx context.Context, p model.Pagination) ([]*model.PatientRecord, int, error) {
	p.Normalize()
	records, total, err := s.repo.List(ctx, p.PageSize, p.Offset())
	if err != nil {
		return nil, 0, errors.Internal(fmt.Errorf("failed to list patients: %w", err))
	}
	return records, total, nil
}

// Delete removes the record for phone.
func (s *Service) Delete(ctx context.Context, phone, deletedBy string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return errors.BadRequest("phone is required", nil)
	}

	if err := s.repo.DeleteByPhone(ctx, phone); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("patient", err)
		}
		return errors.Internal(fmt.Errorf("failed to delete patient: %w", err))
	}

	s.recordEvent(ctx, model.EventPatientDeleted, model.PatientDeletedPayload{
		Phone:     phone,
		DeletedBy: deletedBy,
		DeletedAt: s.now(),
	})
	return nil
}

// recordEvent writes an outbox event. Failures are logged only; the stored
// record is the source of truth.
func (s *Service) recordEvent(ctx context.Context, eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	if _, err := s.events.Emit(ctx, eventType, payload); err != nil {
		s.logger.WithContext(ctx).Error(err, "Failed to record outbox event", "event_type", eventType)
	}
}
