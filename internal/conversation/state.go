package conversation

import (
	"time"

	"github.com/clinicops/scheduling-agent/internal/appointment"
)

// Stage is the orchestrator's position in the booking flow.
type Stage string

const (
	StageGreeting Stage = "greeting"
	StageIntake   Stage = "intake"
	StageLookup   Stage = "lookup"
	StageSchedule Stage = "schedule"
	StageConfirm  Stage = "confirm"
	StageDone     Stage = "done"
)

// Role labels a message's author.
type Role string

const (
	RolePatient   Role = "patient"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the append-only conversation log.
type Message struct {
	Role Role      `json:"role"`
	Body string    `json:"body"`
	At   time.Time `json:"at"`
}

// PatientDraft accumulates identity fields across intake turns.
type PatientDraft struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	DOB       string `json:"dob,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// State is one session's full conversation state. It round-trips through
// the session store as JSON between turns.
type State struct {
	SessionID string    `json:"session_id"`
	Stage     Stage     `json:"stage"`
	Messages  []Message `json:"messages"`
	// Cursor marks where the last turn's outbound batch ended. Messages
	// are only ever appended, never rewritten.
	Cursor int `json:"cursor"`

	Greeted    bool         `json:"greeted"`
	IntakeDone bool         `json:"intake_done"`
	Draft      PatientDraft `json:"draft"`

	PatientID  int   `json:"patient_id,omitempty"`
	NewPatient *bool `json:"new_patient,omitempty"`

	Provider    string                   `json:"provider,omitempty"`
	VisitDate   string                   `json:"visit_date,omitempty"`
	Appointment *appointment.Appointment `json:"appointment,omitempty"`
}

// NewState starts a session at the greeting stage.
func NewState(sessionID string) *State {
	return &State{SessionID: sessionID, Stage: StageGreeting}
}

func (s *State) append(role Role, body string) {
	s.Messages = append(s.Messages, Message{Role: role, Body: body, At: time.Now().UTC()})
}

// drainOutbound returns assistant messages appended since the cursor and
// advances it.
func (s *State) drainOutbound() []string {
	var out []string
	for _, m := range s.Messages[s.Cursor:] {
		if m.Role == RoleAssistant {
			out = append(out, m.Body)
		}
	}
	s.Cursor = len(s.Messages)
	return out
}
