// Package instance tracks every live bridged object.
//
// A Table row is created when a proxy comes into existence and removed when
// its last handle is released, synchronously in both directions, so Count
// and Dump always describe exactly the live proxies. Rows carry the class,
// the ownership Mode, a creation site tag and the native classes the
// instance holds payloads for.
//
// The alias index maps native storage (Key) to the row that already wraps
// it. Borrowed and shared results use it to hand back the existing proxy
// instead of creating a second one for the same storage.
//
// Global returns the process-wide table used by default.
package instance
