package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID is the parsed form of an OPC UA node identifier string of the form
// `ns=N;[sigb]=X` or the short form `i=N` (implying ns=0), per spec.md §3.
type NodeID struct {
	Raw             string
	NamespaceIndex  uint16
	IdentifierKind  byte // 'i', 's', 'g', or 'b'
	Identifier      string
}

// String renders the canonical ns=N;[sigb]=X form.
func (n NodeID) String() string {
	return fmt.Sprintf("ns=%d;%c=%s", n.NamespaceIndex, n.IdentifierKind, n.Identifier)
}

// ParseNodeID parses the grammar `ns=N;[sigb]=X` or `i=N` (ns implied 0).
// Malformed IDs fail with a *MappingError.
func ParseNodeID(raw string) (NodeID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return NodeID{}, &MappingError{NodeID: raw, Reason: "empty node id"}
	}

	parts := strings.Split(s, ";")
	var nsIndex uint16
	var idPart string
	haveNS := false

	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return NodeID{}, &MappingError{NodeID: raw, Reason: fmt.Sprintf("malformed segment %q", part)}
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])

		switch key {
		case "ns":
			n, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				return NodeID{}, &MappingError{NodeID: raw, Reason: fmt.Sprintf("invalid namespace index %q", val)}
			}
			nsIndex = uint16(n)
			haveNS = true
		case "i", "s", "g", "b":
			if idPart != "" {
				return NodeID{}, &MappingError{NodeID: raw, Reason: "multiple identifier segments"}
			}
			idPart = val
			return finishNodeID(raw, nsIndex, haveNS, key[0], val)
		default:
			return NodeID{}, &MappingError{NodeID: raw, Reason: fmt.Sprintf("unknown segment key %q", key)}
		}
	}

	return NodeID{}, &MappingError{NodeID: raw, Reason: "missing identifier segment"}
}

func finishNodeID(raw string, nsIndex uint16, haveNS bool, kind byte, val string) (NodeID, error) {
	if val == "" {
		return NodeID{}, &MappingError{NodeID: raw, Reason: "empty identifier value"}
	}
	if kind == 'i' {
		if _, err := strconv.ParseInt(val, 10, 64); err != nil {
			return NodeID{}, &MappingError{NodeID: raw, Reason: fmt.Sprintf("invalid numeric identifier %q", val)}
		}
	}
	_ = haveNS // ns defaults to 0 when absent, e.g. the short "i=N" form
	return NodeID{Raw: raw, NamespaceIndex: nsIndex, IdentifierKind: kind, Identifier: val}, nil
}
