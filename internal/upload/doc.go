// Package upload resolves file sources for Inline uploads.
//
// A source is exactly one of a base64 payload or an https URL. Remote
// fetches are SSRF-safe: the host is resolved once, every address is
// checked against private, loopback, link-local and other non-public
// ranges, and the connection is pinned to a vetted address. Redirects are
// re-checked hop by hop. Both paths enforce the configured size limit and
// infer the content type and a safe file name.
package upload
