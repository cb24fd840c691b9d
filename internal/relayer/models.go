package relayer

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/reservation-escrow/internal/proof"
)

// Submission is a forwarded platform email.
type Submission struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// CommandType is the action requested in the email subject.
type CommandType string

const (
	CommandList   CommandType = "LIST"
	CommandCancel CommandType = "CANCEL"
	CommandClaim  CommandType = "CLAIM"
)

// Command is a parsed subject line: the command word followed by
// whitespace-separated parameters.
type Command struct {
	Type   CommandType `json:"command"`
	Params []string    `json:"params"`
}

// Status is the processing state of a submission.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ProcessingStatus tracks one submission through the worker.
type ProcessingStatus struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Command   Command   `json:"command"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	EmailHash string    `json:"email_hash,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Record is a signed proof kept for retrieval by email hash.
type Record struct {
	EmailHash string          `json:"email_hash"`
	Proof     json.RawMessage `json:"proof"`
	Payload   proof.Payload   `json:"extracted_data"`
	CreatedAt time.Time       `json:"created_at"`
}

// ReservationType selects the payload kind for generated test proofs.
type ReservationType string

const (
	TypeConfirmation ReservationType = "confirmation"
	TypeCancellation ReservationType = "cancellation"
	TypeNewBooking   ReservationType = "new_booking"
)

// GenerateRequest asks for a proof without going through email parsing.
type GenerateRequest struct {
	Platform        string          `json:"platform"`
	RestaurantName  string          `json:"restaurant_name"`
	PartySize       int             `json:"party_size,omitempty"`
	ReservationType ReservationType `json:"reservation_type"`
	ReservationID   string          `json:"reservation_id,omitempty"`
	ReservationTime *time.Time      `json:"reservation_time,omitempty"`
}

// SubmitResponse is returned when a submission is accepted.
type SubmitResponse struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// ProofResponse carries a proof ready to pass to the marketplace API.
type ProofResponse struct {
	EmailHash          string          `json:"email_hash"`
	Proof              json.RawMessage `json:"proof"`
	ExtractedData      proof.Payload   `json:"extracted_data"`
	ReadyForSubmission bool            `json:"ready_for_submission"`
}

// ProofListResponse lists every stored proof.
type ProofListResponse struct {
	Count  int      `json:"count"`
	Proofs []Record `json:"proofs"`
}

// ErrorResponse is the relayer's error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
