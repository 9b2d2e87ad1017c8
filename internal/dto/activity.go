package dto

// CreateActivityRequest describes a new activity.
type CreateActivityRequest struct {
	Title           string `json:"title" validate:"required,max=200"`
	Description     string `json:"description" validate:"omitempty,max=5000"`
	Location        string `json:"location" validate:"omitempty,max=255"`
	MaxParticipants int    `json:"max_participants" validate:"required,min=1,max=10000"`
}

// UpdateActivityRequest patches the editable fields of an activity.
type UpdateActivityRequest struct {
	Title           *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description     *string `json:"description" validate:"omitempty,max=5000"`
	Location        *string `json:"location" validate:"omitempty,max=255"`
	MaxParticipants *int    `json:"max_participants" validate:"omitempty,min=1,max=10000"`
}

// ChangeActivityStatusRequest moves an activity through DRAFT, OPEN and CLOSED.
type ChangeActivityStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=DRAFT OPEN CLOSED"`
}
