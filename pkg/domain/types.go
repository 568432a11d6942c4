package domain

import "time"

type UploadStatus string

const (
	StatusPending    UploadStatus = "pending"
	StatusProcessing UploadStatus = "processing"
	StatusCompleted  UploadStatus = "completed"
	StatusFailed     UploadStatus = "failed"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleWorker Role = "worker"
)

// Intake limits shared by the app, server and config packages.
const (
	ContentTypePDF   = "application/pdf"
	MaxUploadBytes   = int64(50 << 20)
	MinPriority      = 1
	MaxPriority      = 10
	DefaultPriority  = 5
	PendingKeyPrefix = "pending/"
)

// Upload tracks one submitted document and its processing status.
type Upload struct {
	ID                string       `json:"id"`
	OwnerID           string       `json:"ownerId"`
	OriginalFilename  string       `json:"originalFilename"`
	StorageKey        string       `json:"-"`
	StorageLocator    string       `json:"storageLocator,omitempty"`
	SizeBytes         int64        `json:"sizeBytes"`
	PageCount         int          `json:"pageCount,omitempty"`
	Status            UploadStatus `json:"status"`
	ErrorMessage      string       `json:"errorMessage,omitempty"`
	ExtractedTitle    string       `json:"extractedTitle,omitempty"`
	ExtractedAuthors  []string     `json:"extractedAuthors,omitempty"`
	ExtractedAbstract string       `json:"extractedAbstract,omitempty"`
	Priority          int          `json:"priority"`
	Version           int64        `json:"version"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// Owner is the display identity joined onto admin listings.
type Owner struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	UpdatedAt   time.Time `json:"-"`
}

// UploadWithOwner is an admin listing row.
type UploadWithOwner struct {
	Upload
	Owner Owner `json:"owner"`
}

// Actor is the authenticated caller of an operation. It is resolved once
// per request by the server and passed explicitly into every app call.
type Actor struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
func (a Actor) IsWorker() bool { return a.Role == RoleWorker }

// Anonymous reports whether the actor carries no identity.
func (a Actor) Anonymous() bool { return a.ID == "" }

// UploadPatch is a partial update. Only fields whose Optional is set are
// written; a set Optional holding the zero value is applied as such.
type UploadPatch struct {
	Status            Optional[UploadStatus] `json:"status"`
	ErrorMessage      Optional[string]       `json:"errorMessage"`
	Priority          Optional[int]          `json:"priority"`
	ExtractedTitle    Optional[string]       `json:"extractedTitle"`
	ExtractedAuthors  Optional[[]string]     `json:"extractedAuthors"`
	ExtractedAbstract Optional[string]       `json:"extractedAbstract"`
	PageCount         Optional[int]          `json:"-"`
	ExpectedVersion   Optional[int64]        `json:"version"`
}

// Empty reports whether the patch carries no field changes. ExpectedVersion
// alone is a precondition, not a change.
func (p UploadPatch) Empty() bool {
	return !p.Status.Set && !p.ErrorMessage.Set && !p.Priority.Set &&
		!p.ExtractedTitle.Set && !p.ExtractedAuthors.Set && !p.ExtractedAbstract.Set &&
		!p.PageCount.Set
}

// Apply returns u with the patch fields written over it.
func (p UploadPatch) Apply(u Upload) Upload {
	if p.Status.Set {
		u.Status = p.Status.Value
	}
	if p.ErrorMessage.Set {
		u.ErrorMessage = p.ErrorMessage.Value
	}
	if p.Priority.Set {
		u.Priority = p.Priority.Value
	}
	if p.ExtractedTitle.Set {
		u.ExtractedTitle = p.ExtractedTitle.Value
	}
	if p.ExtractedAuthors.Set {
		u.ExtractedAuthors = append([]string(nil), p.ExtractedAuthors.Value...)
	}
	if p.ExtractedAbstract.Set {
		u.ExtractedAbstract = p.ExtractedAbstract.Value
	}
	if p.PageCount.Set {
		u.PageCount = p.PageCount.Value
	}
	return u
}

// ValidPriority reports whether p is inside the accepted priority range.
func ValidPriority(p int) bool {
	return p >= MinPriority && p <= MaxPriority
}
