package notification

import "time"

// Severity is the visual weight of a notice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Status is the lifecycle position of a tracked transaction.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Kind tells notices and transaction entries apart.
type Kind int

const (
	KindNotice Kind = iota
	KindTransaction
)

// Element is the renderable state of one entry.
type Element struct {
	ID   string
	Kind Kind

	// Notice fields. Message is the raw text; Markup is safe to inject into
	// HTML (escaped unless the notice was created with AsHTML).
	Severity Severity
	Message  string
	Markup   string
	Closable bool
	Progress bool
	Duration time.Duration

	// Transaction fields.
	Label       string
	Hash        string
	ShortHash   string
	ExplorerURL string
	Status      Status
	StatusText  string
}

// View renders elements. Calls for a given id arrive in order: Mount, any
// number of Update, Hide, then Unmount after the fade delay. The Center
// serializes calls, so implementations must not call back into it.
type View interface {
	Mount(e Element)
	Update(e Element)
	Hide(id string)
	Unmount(id string)
}
