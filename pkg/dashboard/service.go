// Package dashboard implements the named operations a protocol dashboard
// polls, on top of the transport request pipeline.
//
// Participant calls go to the discovered backend and benefit from
// failover. Coordinator and training calls go to fixed addresses. The
// coordinator status is advisory: failures yield DefaultCoordinatorStatus
// rather than an error. Online-status aggregation and step progress are not
// served by the backends and are answered locally without a network call.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bft-labs/mpcwatch/pkg/log"
	"github.com/bft-labs/mpcwatch/pkg/participant"
	"github.com/bft-labs/mpcwatch/pkg/transport"
)

// Service exposes the dashboard operations.
type Service struct {
	backend     *transport.Client
	coordinator *transport.Client
	training    *transport.Client
	self        participant.Descriptor
	logger      log.Logger
}

// Clients groups the transport clients a Service uses.
type Clients struct {
	Backend     *transport.Client
	Coordinator *transport.Client
	Training    *transport.Client
}

// NewService creates a Service. self is the participant this dashboard
// belongs to.
func NewService(c Clients, self participant.Descriptor, logger log.Logger) *Service {
	return &Service{
		backend:     c.Backend,
		coordinator: c.Coordinator,
		training:    c.Training,
		self:        self,
		logger:      log.OrNoop(logger),
	}
}

// Self returns the participant this dashboard belongs to.
func (s *Service) Self() participant.Descriptor {
	return s.self
}

// Endpoint returns the backend address the next call will use.
func (s *Service) Endpoint() string {
	return s.backend.Endpoint().String()
}

// Status returns the participant's raw status document.
func (s *Service) Status(ctx context.Context) (json.RawMessage, error) {
	return getJSON(ctx, s.backend, StatusPath)
}

// BackendOutput returns the participant backend's output document. The full
// URL is checked before anything is sent.
func (s *Service) BackendOutput(ctx context.Context) (json.RawMessage, error) {
	req := transport.Request{Path: BackendOutputPath}
	u, err := s.backend.URL(req)
	if err != nil {
		return nil, fmt.Errorf("backend output: cannot build request url from endpoint %s: %w", s.backend.Endpoint(), err)
	}
	s.logger.Debug("fetching backend output", log.String("url", u.String()))
	resp, err := s.backend.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("backend output: %w", err)
	}
	return resp.JSON()
}

// CoordinatorStatus returns the coordinator's aggregate status, or
// DefaultCoordinatorStatus on any failure. It never returns an error.
func (s *Service) CoordinatorStatus(ctx context.Context) CoordinatorStatus {
	resp, err := s.coordinator.Get(ctx, CoordinatorStatusPath)
	if err != nil {
		s.logger.Debug("coordinator unavailable, reporting not initialized", log.Err(err))
		return DefaultCoordinatorStatus()
	}
	var st CoordinatorStatus
	if err := resp.Decode(&st); err != nil {
		s.logger.Warn("coordinator returned unusable status", log.Err(err))
		return DefaultCoordinatorStatus()
	}
	if st.Participants == nil {
		st.Participants = []json.RawMessage{}
	}
	return st
}

// OnlineStatus answers locally; the backends do not aggregate online status.
// TODO: call OnlineStatusPath once the participant backend serves it.
func (s *Service) OnlineStatus(context.Context) OnlineStatus {
	return OnlineStatus{
		Success:      true,
		Source:       SourceLocal,
		Participants: participant.All(),
	}
}

// StepProgress answers locally; the backends do not report step progress.
// TODO: call StepProgressPath once the participant backend serves it.
func (s *Service) StepProgress(context.Context) StepProgress {
	return StepProgress{
		Success: true,
		Source:  SourceLocal,
		Steps:   []string{},
	}
}

// TrainingHistory returns the training history document.
func (s *Service) TrainingHistory(ctx context.Context) (json.RawMessage, error) {
	return getJSON(ctx, s.training, TrainingHistoryPath)
}

// TrainingStatus returns the current training status document.
func (s *Service) TrainingStatus(ctx context.Context) (json.RawMessage, error) {
	return getJSON(ctx, s.training, TrainingStatusPath)
}

// BatchHistory returns the per-batch training history document.
func (s *Service) BatchHistory(ctx context.Context) (json.RawMessage, error) {
	return getJSON(ctx, s.training, BatchHistoryPath)
}

// CollaborativeDecrypt submits a collaborative decryption request.
func (s *Service) CollaborativeDecrypt(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return postJSON(ctx, s.backend, DecryptPath, payload)
}

// CollaborativeRefresh submits a collaborative key refresh request.
func (s *Service) CollaborativeRefresh(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return postJSON(ctx, s.backend, RefreshPath, payload)
}

func getJSON(ctx context.Context, c *transport.Client, path string) (json.RawMessage, error) {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return resp.JSON()
}

func postJSON(ctx context.Context, c *transport.Client, path string, payload json.RawMessage) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	resp, err := c.PostJSON(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	return resp.JSON()
}

// sectionOf turns an operation result into a Section.
func sectionOf(data json.RawMessage, err error) Section {
	if err != nil {
		return Section{
			Error:   err.Error(),
			Offline: errors.Is(err, transport.ErrConnectivity),
		}
	}
	return Section{Data: data}
}
