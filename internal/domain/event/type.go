package event

// Type identifies the type of domain event
type Type string

const (
	TypeApplicationCreated   Type = "application.created"
	TypeStatusChanged        Type = "application.status_changed"
	TypeApplicationCompleted Type = "application.completed"
	TypeDocumentGenerated    Type = "document.generated"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeApplicationCreated,
		TypeStatusChanged,
		TypeApplicationCompleted,
		TypeDocumentGenerated:
		return true
	default:
		return false
	}
}

// AllTypes lists every workflow event type in emission order
func AllTypes() []Type {
	return []Type{
		TypeApplicationCreated,
		TypeStatusChanged,
		TypeApplicationCompleted,
		TypeDocumentGenerated,
	}
}
