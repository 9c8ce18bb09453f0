package dashboard

import (
	"encoding/json"
	"time"

	"github.com/bft-labs/mpcwatch/pkg/participant"
)

// Backend paths on a participant.
const (
	StatusPath        = "/api/participant/status"
	BackendOutputPath = "/api/participant/backend-output"
	OnlineStatusPath  = "/api/participant/online-status"
	StepProgressPath  = "/api/participant/step-progress"
	DecryptPath       = "/api/participant/collaborative/decrypt"
	RefreshPath       = "/api/participant/collaborative/refresh"
)

// Paths on the fixed coordinator and training services.
const (
	CoordinatorStatusPath = "/api/coordinator/status"
	TrainingHistoryPath   = "/api/training/history"
	TrainingStatusPath    = "/api/training/status"
	BatchHistoryPath      = "/api/training/batch-history"
)

// StatusNotInitialized is the coordinator status reported when the
// coordinator cannot be reached or answers with something unusable.
const StatusNotInitialized = "not_initialized"

// CoordinatorStatus is the coordinator's aggregate view of the protocol.
// Participants is left opaque.
type CoordinatorStatus struct {
	ExpectedParticipants   int               `json:"expected_participants"`
	RegisteredParticipants int               `json:"registered_participants"`
	OnlineParticipants     int               `json:"online_participants"`
	Status                 string            `json:"status"`
	Participants           []json.RawMessage `json:"participants"`
}

// DefaultCoordinatorStatus is returned when the coordinator is unavailable.
func DefaultCoordinatorStatus() CoordinatorStatus {
	return CoordinatorStatus{
		ExpectedParticipants:   len(participant.All()),
		RegisteredParticipants: 0,
		OnlineParticipants:     0,
		Status:                 StatusNotInitialized,
		Participants:           []json.RawMessage{},
	}
}

// OnlineStatus is the locally built answer for online-status aggregation.
type OnlineStatus struct {
	Success      bool                     `json:"success"`
	Source       string                   `json:"source"`
	Participants []participant.Descriptor `json:"participants"`
}

// StepProgress is the locally built answer for step progress.
type StepProgress struct {
	Success     bool     `json:"success"`
	Source      string   `json:"source"`
	CurrentStep int      `json:"current_step"`
	TotalSteps  int      `json:"total_steps"`
	Steps       []string `json:"steps"`
}

// SourceLocal marks payloads built without contacting any backend.
const SourceLocal = "local"

// Section is one part of a Snapshot: a payload or the error that
// prevented it.
type Section struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	// Offline is set when the failure was a connectivity failure.
	Offline bool `json:"offline,omitempty"`
}

// Snapshot is everything a dashboard view renders in one refresh.
type Snapshot struct {
	TakenAt         time.Time              `json:"taken_at"`
	Participant     participant.Descriptor `json:"participant"`
	Endpoint        string                 `json:"endpoint"`
	Status          Section                `json:"status"`
	BackendOutput   Section                `json:"backend_output"`
	Coordinator     CoordinatorStatus      `json:"coordinator"`
	OnlineStatus    OnlineStatus           `json:"online_status"`
	StepProgress    StepProgress           `json:"step_progress"`
	TrainingStatus  Section                `json:"training_status"`
	TrainingHistory Section                `json:"training_history"`
	BatchHistory    Section                `json:"batch_history"`
}
