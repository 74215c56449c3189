// Package integrity computes the tamper-evident hashes stored alongside each
// event page: a content hash per page, a chain hash linking each page to its
// predecessor, and an HMAC signature over the chain hash keyed per stream.
package integrity
