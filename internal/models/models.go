package models

import (
	"time"

	"gorm.io/datatypes"
)

// Registration sources
const (
	SourceQRScan        = "qr-scan"
	SourceManualCheckin = "manual-checkin"
	SourceEmbeddedForm  = "embedded-form"
)

// Registration statuses
const (
	RegStatusRegistered = "registered"
	RegStatusAttended   = "attended"
	RegStatusCanceled   = "canceled"
)

// Child-care statuses
const (
	ChildCheckedIn  = "checked-in"
	ChildCheckedOut = "checked-out"
)

// Course statuses
const (
	CourseInProgress = "in-progress"
	CourseCompleted  = "completed"

	AssignmentActive = "active"
)

// Person is owned by the directory; the core only reads it.
type Person struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id" validate:"required"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	ChurchID  string `gorm:"index;size:64" json:"churchId,omitempty"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `gorm:"index" json:"phone,omitempty"`
	Email     string `gorm:"index" json:"email,omitempty"`
}

func (p Person) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Visitor is a non-member contact captured by the directory.
type Visitor struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id" validate:"required"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	ChurchID  string `gorm:"index:idx_visitor_church;size:64" json:"churchId" validate:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `gorm:"index" json:"phone,omitempty"`
	Email     string `gorm:"index" json:"email,omitempty"`
}

type Category struct {
	ID   string `gorm:"primaryKey;size:64"`
	Name string
}

// Subcategory is one stage of a multi-step course. Required marks it as
// completable only through its required event set.
type Subcategory struct {
	ID         string `gorm:"primaryKey;size:64" json:"id" validate:"required"`
	CategoryID string `gorm:"index;size:64" json:"categoryId"`
	Name       string `json:"name"`
	Required   bool   `json:"required"`
}

type Event struct {
	ID        string `gorm:"primaryKey;size:64" validate:"required"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ChurchID      string `gorm:"index;size:64"`
	Title         string `validate:"required"`
	StartAt       time.Time
	EndAt         time.Time
	CategoryID    string `gorm:"size:64"`
	SubcategoryID string `gorm:"index;size:64"`
	Required      bool
	Order         int `gorm:"column:sort_order" validate:"gte=0"`
}

// EventRoom is one entry of an event's assigned-room list.
type EventRoom struct {
	EventID  string `gorm:"primaryKey;size:64" json:"eventId"`
	RoomID   string `gorm:"primaryKey;size:64" json:"roomId" validate:"required"`
	RoomName string `json:"roomName"`
}

type Registration struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id" validate:"required"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"updatedAt"`

	EventID      string            `gorm:"size:64;not null" json:"eventId" validate:"required"`
	PersonID     string            `gorm:"size:64;not null;index:idx_reg_person" json:"personId" validate:"required"`
	ChurchID     string            `gorm:"size:64" json:"churchId"`
	Status       string            `json:"status" validate:"required"`
	RegisteredAt time.Time         `json:"registeredAt"`
	Source       string            `json:"source" validate:"required,oneof=qr-scan manual-checkin embedded-form"`
	Notes        string            `json:"notes,omitempty"`
	Extra        datatypes.JSONMap `json:"extra,omitempty"`
}

// ChildCareEntry belongs to the parent (PersonID); indexed by event for the log view.
type ChildCareEntry struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id" validate:"required"`
	PersonID     string     `gorm:"size:64;not null;index" json:"personId" validate:"required"`
	EventID      string     `gorm:"size:64;not null;index" json:"eventId" validate:"required"`
	ChildName    string     `json:"childName" validate:"required"`
	Age          int        `json:"age" validate:"gte=0"`
	Allergies    string     `json:"allergies,omitempty"`
	RoomID       string     `gorm:"size:64" json:"roomId" validate:"required"`
	RoomName     string     `json:"roomName"`
	Notes        string     `json:"notes,omitempty"`
	CheckInTime  time.Time  `json:"checkInTime"`
	Status       string     `json:"status" validate:"required,oneof=checked-in checked-out"`
	CheckOutTime *time.Time `json:"checkOutTime,omitempty"`
}

type CourseCompletion struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id" validate:"required"`
	PersonID       string     `gorm:"size:64;not null;uniqueIndex:ux_course_person_event" json:"personId" validate:"required"`
	EventID        string     `gorm:"size:64;not null;uniqueIndex:ux_course_person_event;index" json:"eventId" validate:"required"`
	EventName      string     `json:"eventName"`
	InstructorName string     `json:"instructorName,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	Status         string     `json:"status" validate:"required,oneof=in-progress completed"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CategoryID     string     `gorm:"size:64" json:"categoryId,omitempty"`
	SubcategoryID  string     `gorm:"size:64;index" json:"subcategoryId,omitempty"`
}

type CourseAssignment struct {
	PersonID      string    `gorm:"primaryKey;size:64" json:"personId" validate:"required"`
	SubcategoryID string    `gorm:"primaryKey;size:64" json:"subcategoryId" validate:"required"`
	CategoryID    string    `gorm:"size:64" json:"categoryId"`
	AssignedAt    time.Time `json:"assignedAt"`
	AssignedBy    string    `json:"assignedBy"`
	Status        string    `json:"status"`
}

// CompletionLog is derived: appended once when a person has completed every
// required event of a subcategory, never edited.
type CompletionLog struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	PersonID      string    `gorm:"size:64;not null;uniqueIndex:ux_completion_person_sub" json:"personId" validate:"required"`
	SubcategoryID string    `gorm:"size:64;not null;uniqueIndex:ux_completion_person_sub" json:"subcategoryId" validate:"required"`
	CompletedAt   time.Time `json:"completedAt"`
	Note          string    `json:"note,omitempty"`
	Status        string    `json:"status"`
}

// All lists every table for AutoMigrate.
func All() []any {
	return []any{
		&Person{},
		&Visitor{},
		&Category{},
		&Subcategory{},
		&Event{},
		&EventRoom{},
		&Registration{},
		&ChildCareEntry{},
		&CourseCompletion{},
		&CourseAssignment{},
		&CompletionLog{},
	}
}
