package sflowio

// Config is the slice of the process-wide configuration surface that
// dropmon and tcpannotate read (spec §6). A collaborator populates this
// from its own config file / DNS-SD / flags and hands it to the engine
// constructors; no flag or file parsing lives in this package.
type Config struct {
	// DropMonSW enables the software drop catalog and processing.
	DropMonSW bool
	// DropMonHW enables the hardware drop catalog and processing.
	DropMonHW bool
	// DropMonStart, when true, means this process owns the feed
	// lifecycle (issues START/STOP); when false, an external
	// controller is assumed to already have it running.
	DropMonStart bool
	// DropMonGroup: a non-zero value enables drop-monitor
	// initialization altogether; the engine reads it for nothing else.
	DropMonGroup uint32
	// DropMonLimit is the rate cap in events/sec.
	DropMonLimit uint32
	// DropMonMax is the circuit-breaker threshold in events/sec; 0
	// disables the breaker.
	DropMonMax uint32
	// TCPTunnel is present for parity with the original configuration
	// surface but is currently an inert path in the core (spec §6).
	TCPTunnel bool
}
