package adapter

import "bytes"

// ParseState holds per-session parser carry-over: bytes of an incomplete
// record held back until the rest arrives, and the IDs of tool uses still
// awaiting their result.
type ParseState struct {
	carry   []byte
	pending map[string]struct{}
}

// NewParseState returns an empty parse state.
func NewParseState() *ParseState {
	return &ParseState{pending: make(map[string]struct{})}
}

// splitLines appends data to the carry buffer and returns every complete
// line, keeping any trailing partial line held back for the next chunk.
func (st *ParseState) splitLines(data []byte) [][]byte {
	st.carry = append(st.carry, data...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(st.carry, '\n')
		if idx < 0 {
			return lines
		}
		line := make([]byte, idx)
		copy(line, st.carry[:idx])
		st.carry = st.carry[idx+1:]
		lines = append(lines, line)
	}
}

// trackStart records a tool use awaiting its result.
func (st *ParseState) trackStart(toolID string) {
	if toolID == "" {
		return
	}
	if st.pending == nil {
		st.pending = make(map[string]struct{})
	}
	st.pending[toolID] = struct{}{}
}

// resolveResult correlates a result with its pending start, clearing it.
// Returns false when no matching start exists (orphaned result).
func (st *ParseState) resolveResult(toolID string) bool {
	if _, ok := st.pending[toolID]; !ok {
		return false
	}
	delete(st.pending, toolID)
	return true
}

// PendingCount reports how many tool uses still await a result.
func (st *ParseState) PendingCount() int {
	return len(st.pending)
}
