package types

import "bytes"

// SSE framing helpers

// SSEPrefix is the Server-Sent Events data field name.
const SSEPrefix = "data:"

// FirstSSEData returns the value of the chunk's first "data:" field, up to
// the next data field, trimmed. A field only starts at the beginning of a
// line, so "data:" inside a JSON string is not a field. Chunks without a
// data field are returned trimmed and whole.
func FirstSSEData(chunk []byte) []byte {
	idx := dataField(chunk)
	if idx < 0 {
		return bytes.TrimSpace(chunk)
	}
	rest := chunk[idx+len(SSEPrefix):]
	if next := bytes.Index(rest, []byte("\n"+SSEPrefix)); next >= 0 {
		rest = rest[:next]
	}
	return bytes.TrimSpace(rest)
}

// dataField returns the offset of the first "data:" at a line start, or -1.
func dataField(chunk []byte) int {
	lead := len(chunk) - len(bytes.TrimLeft(chunk, " \t\r\n"))
	if bytes.HasPrefix(chunk[lead:], []byte(SSEPrefix)) {
		return lead
	}
	if i := bytes.Index(chunk, []byte("\n"+SSEPrefix)); i >= 0 {
		return i + 1
	}
	return -1
}
