package models

// HostKind identifies which side of the polymorphic host association a
// record belongs to.
type HostKind string

const (
	HostEvent        HostKind = "Event"
	HostOrganization HostKind = "Organization"
)

// HostRef points at the event or organization that owns a record.
type HostRef struct {
	Kind HostKind `json:"kind"`
	ID   string   `json:"id"`
}
