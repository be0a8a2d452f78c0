package user

import "time"

type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleSeller Role = "SELLER"
)

func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// User is immutable after registration apart from its password hash.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // bcrypt hash, never returned
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary is the slice of a user embedded in other resources.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Profile is the public view of a user.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Role: u.Role, CreatedAt: u.CreatedAt}
}
