package regalloc

import "fmt"

// ErrorKind classifies a RegAllocError.
type ErrorKind int

const (
	// ErrSSA reports malformed input: a vreg defined more than once (by an
	// instruction or a block parameter), or an operand referencing a vreg
	// outside 0..NumVRegs()-1. A use with no reaching def is not detected.
	ErrSSA ErrorKind = iota
	// ErrCriticalEdge reports a CFG edge that needs an edge move but has
	// nowhere to place one (source has multiple successors and
	// destination has multiple predecessors); the caller must split
	// critical edges before calling Allocate.
	ErrCriticalEdge
	// ErrUnsatisfiableMinimalBundle reports a minimal bundle (one that
	// cannot be split further) that still could not be placed in any
	// register, typically an impossible combination of fixed-register
	// constraints that survived multi-fixed cleanup.
	ErrUnsatisfiableMinimalBundle
	// ErrInternal reports an allocator invariant violation caught by
	// ValidationEnabled, or a recovered panic from arena/index bookkeeping
	// gone wrong. Should never happen; if it does, it's a bug in this
	// package, not in the caller's Function implementation.
	ErrInternal
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case ErrSSA:
		return "SSA"
	case ErrCriticalEdge:
		return "CriticalEdge"
	case ErrUnsatisfiableMinimalBundle:
		return "UnsatisfiableMinimalBundle"
	case ErrInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// RegAllocError is returned by Allocate on any failure. The function passed
// in is left unchanged; nothing is retried transparently.
type RegAllocError struct {
	Kind    ErrorKind
	Message string
	// Dump is populated for ErrUnsatisfiableMinimalBundle (a textual
	// snapshot of the offending bundle's state) and for an ErrInternal that
	// comes from a recovered panic (the panic value); output-validation
	// failures leave it empty.
	Dump string
}

// Error implements the error interface.
func (e *RegAllocError) Error() string {
	if e.Dump == "" {
		return fmt.Sprintf("regalloc: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("regalloc: %s: %s\n%s", e.Kind, e.Message, e.Dump)
}

func newSSAError(format string, args ...any) *RegAllocError {
	return &RegAllocError{Kind: ErrSSA, Message: fmt.Sprintf(format, args...)}
}

func newCriticalEdgeError(from, to Block) *RegAllocError {
	return &RegAllocError{
		Kind:    ErrCriticalEdge,
		Message: fmt.Sprintf("critical edge from block %d to block %d has no room for an edge move; split it before allocating", from.ID(), to.ID()),
	}
}

func newUnsatisfiableError(dump string, format string, args ...any) *RegAllocError {
	return &RegAllocError{Kind: ErrUnsatisfiableMinimalBundle, Message: fmt.Sprintf(format, args...), Dump: dump}
}

func newInternalError(dump string, format string, args ...any) *RegAllocError {
	return &RegAllocError{Kind: ErrInternal, Message: fmt.Sprintf(format, args...), Dump: dump}
}
