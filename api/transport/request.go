package transport

import "time"

type SignUpRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	College    string `json:"college"`
	Department string `json:"department"`
	Year       string `json:"year"`
	Phone      string `json:"phone"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	SessionID string `json:"session_id"`
}

type FederatedCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type CompleteProfileRequest struct {
	College    string `json:"college"`
	Department string `json:"department"`
	Year       string `json:"year"`
}

type ProfileUpdateRequest struct {
	Name       *string `json:"name"`
	College    *string `json:"college"`
	Department *string `json:"department"`
	Year       *string `json:"year"`
	Phone      *string `json:"phone"`
}

type TaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Amount      int64      `json:"amount"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// PaymentRequest is optional on the payment route; when empty the poster
// confirms the task amount to the accepted worker.
type PaymentRequest struct {
	WorkerID string `json:"worker_id"`
	Amount   int64  `json:"amount"`
}

type RatingRequest struct {
	TaskID string `json:"task_id"`
	Stars  int    `json:"stars"`
	Text   string `json:"text"`
}
