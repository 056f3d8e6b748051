package entities

import "strings"

type Role string

const (
	RoleGuest       Role = "guest"
	RoleMember      Role = "member"
	RoleBoardMember Role = "board_member"
	RoleChairman    Role = "chairman"
	RoleAdmin       Role = "admin"
)

func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleMember:
		return RoleMember
	case RoleBoardMember:
		return RoleBoardMember
	case RoleChairman:
		return RoleChairman
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleGuest
	}
}

// CanVote covers every member-tier role.
func (r Role) CanVote() bool {
	switch r {
	case RoleMember, RoleBoardMember, RoleChairman, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) CanAuthor() bool {
	switch r {
	case RoleBoardMember, RoleChairman, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanModerate gates archive and delete.
func (r Role) CanModerate() bool {
	return r == RoleChairman || r == RoleAdmin
}

// Voter is the acting user as resolved by the session provider.
type Voter struct {
	Email      string
	Role       Role
	IsOwner    bool
	FirstName  string
	LastName   string
	PlotNumber string
}

func (v Voter) Authenticated() bool {
	return NormalizeEmail(v.Email) != ""
}

func (v Voter) Snapshot() VoterSnapshot {
	return VoterSnapshot{
		Email:      NormalizeEmail(v.Email),
		FirstName:  strings.TrimSpace(v.FirstName),
		LastName:   strings.TrimSpace(v.LastName),
		PlotNumber: strings.TrimSpace(v.PlotNumber),
	}
}
