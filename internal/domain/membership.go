package domain

// User is a person who can belong to teams and receive digests.
type User struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
}

// FullName returns "First Last" with missing parts dropped.
func (u User) FullName() string {
	switch {
	case u.FirstName == "" && u.LastName == "":
		return ""
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Role is a named tag attached to memberships (e.g. "Project Manager").
type Role struct {
	ID   int64
	Name string
}

// Membership links a user to a team. Unique per (team, user).
// Only active memberships are eligible reminder/digest recipients.
type Membership struct {
	ID     int64
	TeamID int64
	UserID int64
	RoleID int64 // 0 means no role
	Active bool
}

// Member is a roster row: a membership joined with its user and role.
// This is the shape executors work with at send time.
type Member struct {
	MembershipID int64
	Name         string
	Email        string
	Role         string
}

// MemberDetail is a Member together with the owning team, as re-fetched by
// the reminder delivery unit at execution time.
type MemberDetail struct {
	Member
	Team Team
}

// SilentRecipient is a user who is not a team member but is owed digest
// emails (e.g. a client). One per user; teams reference them many-to-many.
type SilentRecipient struct {
	ID     int64
	UserID int64
}
