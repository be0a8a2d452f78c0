package alerts

import "time"

// Task type constants
const (
	TaskBidSelected      = "email:bid_selected"
	TaskProjectCompleted = "email:project_completed"
	TaskPasswordReset    = "email:password_reset"
)

const QueueEmails = "emails"

// Email is a rendered message ready for a Mailer.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// Bid selected payload (sent to the winning seller)
type BidSelectedPayload struct {
	ProjectID    string    `json:"project_id"`
	ProjectTitle string    `json:"project_title"`
	BidID        string    `json:"bid_id"`
	SellerID     string    `json:"seller_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	SentAt       time.Time `json:"sent_at"`
}

// Project completed payload. One task per recipient so a failed delivery
// retries only that recipient.
type ProjectCompletedPayload struct {
	ProjectID    string    `json:"project_id"`
	ProjectTitle string    `json:"project_title"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	SentAt       time.Time `json:"sent_at"`
}

// Password reset payload
type PasswordResetPayload struct {
	UserID    string        `json:"user_id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	ResetURL  string        `json:"reset_url"`
	ExpiresIn time.Duration `json:"expires_in"`
	Requested time.Time     `json:"requested"`
}
