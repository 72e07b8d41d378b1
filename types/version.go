package types

// Version is the canonical chunkprobe version.
const Version = "0.2.0"

// ContractVersion is stamped on published capture_completed events.
// It moves in lockstep with Version.
const ContractVersion = Version
