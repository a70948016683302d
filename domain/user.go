package domain

import "time"

// User is an authenticated identity and its campus profile.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	College          string    `json:"college"`
	Department       string    `json:"department,omitempty"`
	Year             string    `json:"year,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Rating           float64   `json:"rating,omitempty"`
	TotalRatings     int       `json:"total_ratings"`
	CompletedHustles int       `json:"completed_hustles"`
	TotalEarned      int64     `json:"total_earned"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ProfileComplete reports whether the user has a college affiliation and can use the marketplace.
func (u *User) ProfileComplete() bool {
	return u != nil && u.College != ""
}

// Contact returns the user's contact card.
func (u *User) Contact() Contact {
	if u == nil {
		return Contact{}
	}
	return Contact{
		UserID:     u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Phone:      u.Phone,
		Department: u.Department,
	}
}

// ProfilePatch carries a partial profile update; nil fields are left untouched.
type ProfilePatch struct {
	Name       *string `json:"name,omitempty"`
	College    *string `json:"college,omitempty"`
	Department *string `json:"department,omitempty"`
	Year       *string `json:"year,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.College == nil && p.Department == nil && p.Year == nil && p.Phone == nil
}

// Apply merges the patch into the user.
func (p ProfilePatch) Apply(u *User) {
	if u == nil {
		return
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.College != nil {
		u.College = *p.College
	}
	if p.Department != nil {
		u.Department = *p.Department
	}
	if p.Year != nil {
		u.Year = *p.Year
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
}

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// Credential binds a sign-in method to a user.
type Credential struct {
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	Subject      string    `json:"subject"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// FederatedIdentity is what a federated provider tells us about a principal.
type FederatedIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}
