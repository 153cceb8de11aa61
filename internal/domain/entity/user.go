package entity

import "github.com/garyjia/kelurahan-portal/internal/domain/workflow"

// User is the subset of the user directory the workflow needs
type User struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Role     workflow.Role `json:"role"`
	RT       *string       `json:"rt,omitempty"`
	RW       *string       `json:"rw,omitempty"`
	IsActive bool          `json:"is_active"`
}
