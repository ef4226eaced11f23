package auction

import "fmt"

// Status tracks an auction through its lifecycle. A New auction is being set
// up by its seller. Committing freezes the settings and schedules the bidding
// session. Cancelled and Finalized are terminal.
type Status uint64

const (
	StatusNew Status = iota + 1
	StatusCommitted
	StatusCancelled
	StatusBidAccepted
	StatusFinalized
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusCommitted:
		return "Committed"
	case StatusCancelled:
		return "Cancelled"
	case StatusBidAccepted:
		return "BidAccepted"
	case StatusFinalized:
		return "Finalized"
	default:
		return fmt.Sprintf("Status(%d)", uint64(s))
	}
}

// ParseStatus maps a stored status value back to a Status.
func ParseStatus(v uint64) (Status, error) {
	s := Status(v)
	switch s {
	case StatusNew, StatusCommitted, StatusCancelled, StatusBidAccepted, StatusFinalized:
		return s, nil
	default:
		return 0, fmt.Errorf("unknown auction status %d", v)
	}
}

// ParseStatusName maps a status name, as produced by String, back to a
// Status.
func ParseStatusName(name string) (Status, error) {
	for s := StatusNew; s <= StatusFinalized; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown auction status %q", name)
}
