package airline

// Status tracks an airline through admission and funding.
type Status uint8

const (
	StatusNone Status = iota
	StatusProposed
	StatusRegistered
	StatusFunded
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusProposed, StatusRegistered, StatusFunded:
		return true
	default:
		return false
	}
}

// Admitted reports whether the airline has passed admission.
func (s Status) Admitted() bool {
	return s == StatusRegistered || s == StatusFunded
}

func (s Status) String() string {
	switch s {
	case StatusProposed:
		return "proposed"
	case StatusRegistered:
		return "registered"
	case StatusFunded:
		return "funded"
	default:
		return "none"
	}
}

// Airline is the persisted record of an insurer-side participant. Records are
// created on the first admission call naming the address and never deleted.
type Airline struct {
	Address    [20]byte
	Status     Status
	ProposedAt uint64
	AdmittedAt uint64
	FundedAt   uint64
}

// Clone returns a copy of the record.
func (a *Airline) Clone() *Airline {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// Admission reports the effect of a Register call.
type Admission struct {
	Airline *Airline
	// Admitted is true when this call moved the candidate to Registered.
	Admitted bool
	// Counted is false when the caller had already voted for the candidate.
	Counted bool
	Votes   int
	Quorum  int
}
