package regalloc

// These consts gate optional behavior in the allocator. Instead of wiring a
// logging framework through every component, we follow the same trick the
// rest of the compiler-construction world uses: plain boolean consts that the
// compiler dead-code-eliminates when false. Flip them locally when debugging.
// LoggingEnabled and ValidateRPO are off by default; ValidationEnabled is on.
const (
	// LoggingEnabled prints one line to stdout for each bundle processBundle
	// takes up (the bundle's ranges and its computed requirement). Probes,
	// evictions and splits are not traced.
	LoggingEnabled = false

	// ValidationEnabled runs the output invariant checks after allocation
	// completes. Cheap relative to allocation itself, so left on by default;
	// Options.Validate can force it off for a specific call.
	ValidationEnabled = true

	// ValidateRPO additionally checks, before liveness analysis, that block
	// indices form a valid reverse-postorder numbering (the loop-detection
	// backedge test `pred.ID() >= block.ID()` depends on this). Expensive
	// relative to everything else here, so off by default; turn on when
	// fuzzing a new Function implementation.
	ValidateRPO = false
)
