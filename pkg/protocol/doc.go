/*
Package protocol implements the Drover wire contract.

Four TCP sub-protocols carry a job end-to-end, all built from the same two
frame types:

  - Control frames: fixed 100-byte, NUL-padded textual messages. They carry
    either a token from the closed alphabet in tokens.go or a metadata line.
  - Bulk frames: 1000-byte chunks streaming a payload whose exact size was
    announced by the preceding metadata line; the final chunk is short when
    the size is not a multiple of 1000.

Conn wraps a net.Conn with the framing; the Format and Parse helpers encode
and decode the metadata line formats. Sessions are strictly sequenced, so
Conn performs no locking.

The sub-protocols themselves live with their peers: pkg/client (submission),
pkg/master (registration, utilization, dispatch) and pkg/worker (execution).
*/
package protocol
