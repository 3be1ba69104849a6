package common

// ChecksumHeaderName is the HTTP header the retrieval boundary uses to
// expose the plaintext SHA-256 digest of a downloaded object. The engine
// itself never speaks HTTP; the constant lives here so transport code and
// tests agree on the spelling.
const ChecksumHeaderName = "X-Checksum-SHA256"

// ChunkSize is the buffer size used when streaming object payloads.
const ChunkSize = 64 * 1024
