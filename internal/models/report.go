package models

import "time"

// ReportStatus tracks a damage report through its lifecycle.
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "PENDING"
	ReportStatusConfirmed  ReportStatus = "CONFIRMED"
	ReportStatusInProgress ReportStatus = "IN_PROGRESS"
	ReportStatusCompleted  ReportStatus = "COMPLETED"
	ReportStatusRejected   ReportStatus = "REJECTED"
)

// ReportStatuses lists every status in lifecycle order.
var ReportStatuses = []ReportStatus{
	ReportStatusPending,
	ReportStatusConfirmed,
	ReportStatusInProgress,
	ReportStatusCompleted,
	ReportStatusRejected,
}

// Valid reports whether the status belongs to the closed set.
func (s ReportStatus) Valid() bool {
	for _, candidate := range ReportStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Label renders the status for notification text.
func (s ReportStatus) Label() string {
	switch s {
	case ReportStatusPending:
		return "pending review"
	case ReportStatusConfirmed:
		return "confirmed"
	case ReportStatusInProgress:
		return "in progress"
	case ReportStatusCompleted:
		return "completed"
	case ReportStatusRejected:
		return "rejected"
	}
	return string(s)
}

// ReportCategory classifies the damaged facility.
type ReportCategory string

const (
	CategoryFurniture  ReportCategory = "FURNITURE"
	CategoryElectronic ReportCategory = "ELECTRONIC"
	CategoryBuilding   ReportCategory = "BUILDING"
	CategorySanitary   ReportCategory = "SANITARY"
	CategoryOther      ReportCategory = "OTHER"
)

// ReportCategories lists every category.
var ReportCategories = []ReportCategory{
	CategoryFurniture,
	CategoryElectronic,
	CategoryBuilding,
	CategorySanitary,
	CategoryOther,
}

func (c ReportCategory) Valid() bool {
	for _, candidate := range ReportCategories {
		if c == candidate {
			return true
		}
	}
	return false
}

// ReportPriority expresses urgency as chosen by the reporter.
type ReportPriority string

const (
	PriorityLow    ReportPriority = "LOW"
	PriorityMedium ReportPriority = "MEDIUM"
	PriorityHigh   ReportPriority = "HIGH"
	PriorityUrgent ReportPriority = "URGENT"
)

func (p ReportPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Report is a facility damage report filed by a student.
type Report struct {
	ID          string         `db:"id" json:"id"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Location    string         `db:"location" json:"location"`
	Category    ReportCategory `db:"category" json:"category"`
	Priority    ReportPriority `db:"priority" json:"priority"`
	Status      ReportStatus   `db:"status" json:"status"`
	ImageURL    *string        `db:"image_url" json:"imageUrl,omitempty"`
	UserID      string         `db:"user_id" json:"userId"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`

	User    *UserSummary `db:"-" json:"user,omitempty"`
	Repairs []Repair     `db:"-" json:"repairs"`
}

// ReportFilter captures list criteria; OwnerID scopes results to one student.
type ReportFilter struct {
	OwnerID  string
	Status   ReportStatus
	Category ReportCategory
	Page     int
	Limit    int
}

// Normalize clamps paging to sane bounds.
func (f *ReportFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

// StatusChange is one workflow transition applied atomically with its repair side effect.
type StatusChange struct {
	ReportID      string
	Status        ReportStatus
	LecturerID    string
	Notes         *string
	EstimatedCost *float64
	At            time.Time
}
