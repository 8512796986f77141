package types

// Version is the canonical project version. The CLI, the handler wire
// protocol, and the bus envelope shape share this version.
const Version = "0.1.0"
