package allocation

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

// Binary transport encoding of ClusterAllocationExplanation. The stream is a
// sequential field encoding: uvarint-length-prefixed strings, single-byte
// bools and enum tags, varints for integers and big-endian IEEE 754 bits for
// weights. Field order is fixed and shared with Decode; decoding is
// all-or-nothing and errors name the field that failed.

type wireWriter struct {
	w   io.Writer
	buf [binary.MaxVarintLen64]byte
	err error
}

func (ww *wireWriter) writeUvarint(v uint64) {
	if ww.err != nil {
		return
	}
	n := binary.PutUvarint(ww.buf[:], v)
	_, ww.err = ww.w.Write(ww.buf[:n])
}

func (ww *wireWriter) writeVarint(v int64) {
	if ww.err != nil {
		return
	}
	n := binary.PutVarint(ww.buf[:], v)
	_, ww.err = ww.w.Write(ww.buf[:n])
}

func (ww *wireWriter) writeString(s string) {
	ww.writeUvarint(uint64(len(s)))
	if ww.err != nil {
		return
	}
	_, ww.err = io.WriteString(ww.w, s)
}

func (ww *wireWriter) writeBool(b bool) {
	var v uint64
	if b {
		v = 1
	}
	ww.writeUvarint(v)
}

func (ww *wireWriter) writeFloat64(f float64) {
	if ww.err != nil {
		return
	}
	binary.BigEndian.PutUint64(ww.buf[:8], math.Float64bits(f))
	_, ww.err = ww.w.Write(ww.buf[:8])
}

// ByteStreamReader is what Decode needs from its input: io.ReadFull for
// fixed-width fields and single-byte reads for varints. bytes.Reader and
// bufio.Reader both satisfy it.
type ByteStreamReader interface {
	io.Reader
	io.ByteReader
}

type wireReader struct {
	r ByteStreamReader
}

func (wr *wireReader) readUvarint(field string) (uint64, error) {
	v, err := binary.ReadUvarint(wr.r)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", field, err)
	}
	return v, nil
}

func (wr *wireReader) readVarint(field string) (int64, error) {
	v, err := binary.ReadVarint(wr.r)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", field, err)
	}
	return v, nil
}

// Caps on decoded lengths. A corrupt length prefix must surface as a
// decoding error, not an absurd allocation.
const (
	maxWireStringLen = 1 << 20
	maxWireCount     = 1 << 16
)

func (wr *wireReader) readCount(field string, max uint64) (uint64, error) {
	n, err := wr.readUvarint(field)
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("decode %s: length %d exceeds %d", field, n, max)
	}
	return n, nil
}

func (wr *wireReader) readString(field string) (string, error) {
	n, err := wr.readCount(field, maxWireStringLen)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(wr.r, buf); err != nil {
		return "", fmt.Errorf("decode %s: %w", field, err)
	}
	return string(buf), nil
}

func (wr *wireReader) readBool(field string) (bool, error) {
	v, err := wr.readUvarint(field)
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("decode %s: invalid bool tag %d", field, v)
	}
}

func (wr *wireReader) readFloat64(field string) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(wr.r, buf[:]); err != nil {
		return 0, fmt.Errorf("decode %s: %w", field, err)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
}

// Encode writes the explanation to w in the fixed transport field order.
func (c *ClusterAllocationExplanation) Encode(w io.Writer) error {
	ww := &wireWriter{w: w}

	ww.writeString(c.shard.Index)
	ww.writeString(c.shard.IndexUUID)
	ww.writeUvarint(uint64(c.shard.ID))
	ww.writeBool(c.primary)
	ww.writeBool(c.IsAssigned())
	if c.IsAssigned() {
		ww.writeString(c.assignedNodeID)
	} else {
		ww.writeUvarint(uint64(c.unassignedInfo.Reason))
		ww.writeString(c.unassignedInfo.Details)
		ww.writeUvarint(uint64(c.remainingDelayMillis))
	}

	ww.writeUvarint(uint64(len(c.nodeExplanations)))
	for _, id := range c.nodeIDs() {
		ne := c.nodeExplanations[id]
		encodeNode(ww, ne.Node)
		encodeNodeExplanation(ww, ne)
	}
	return ww.err
}

func encodeNode(ww *wireWriter, node *DiscoveryNode) {
	ww.writeString(node.ID)
	ww.writeString(node.Name)
	ww.writeString(node.Address)
	ww.writeUvarint(uint64(len(node.Attributes)))
	keys := make([]string, 0, len(node.Attributes))
	for k := range node.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ww.writeString(k)
		ww.writeString(node.Attributes[k])
	}
}

func encodeNodeExplanation(ww *wireWriter, ne *NodeExplanation) {
	decisions := ne.Decision.Decisions()
	ww.writeUvarint(uint64(len(decisions)))
	for _, d := range decisions {
		ww.writeUvarint(uint64(d.Type))
		ww.writeString(d.Decider)
		ww.writeString(d.Explanation)
	}
	ww.writeFloat64(ne.Weight)
	ww.writeBool(ne.StoreStatus != nil)
	if ne.StoreStatus != nil {
		status := ne.StoreStatus
		ww.writeString(status.NodeID)
		ww.writeVarint(status.LegacyVersion)
		ww.writeString(status.AllocationID)
		ww.writeUvarint(uint64(status.Role))
		ww.writeBool(status.ReadError != nil)
		if status.ReadError != nil {
			ww.writeUvarint(uint64(status.ReadError.Kind))
			ww.writeString(status.ReadError.Message)
		}
	}
	ww.writeUvarint(uint64(ne.FinalDecision))
	ww.writeString(ne.FinalExplanation)
	ww.writeUvarint(uint64(ne.StoreCopy))
}

// Decode reads one explanation from r. On any error nothing partial is
// returned.
func Decode(r ByteStreamReader) (*ClusterAllocationExplanation, error) {
	wr := &wireReader{r: r}

	var shard ShardID
	var err error
	if shard.Index, err = wr.readString("shard index"); err != nil {
		return nil, err
	}
	if shard.IndexUUID, err = wr.readString("shard index uuid"); err != nil {
		return nil, err
	}
	shardNum, err := wr.readUvarint("shard id")
	if err != nil {
		return nil, err
	}
	shard.ID = int(shardNum)

	primary, err := wr.readBool("primary")
	if err != nil {
		return nil, err
	}
	assigned, err := wr.readBool("assigned")
	if err != nil {
		return nil, err
	}

	var assignedNodeID string
	var unassignedInfo *UnassignedInfo
	var remainingDelay int64
	if assigned {
		if assignedNodeID, err = wr.readString("assigned node id"); err != nil {
			return nil, err
		}
		if assignedNodeID == "" {
			return nil, fmt.Errorf("decode assigned node id: empty")
		}
	} else {
		reasonTag, err := wr.readUvarint("unassigned reason")
		if err != nil {
			return nil, err
		}
		reason := UnassignedReason(reasonTag)
		if _, ok := unassignedReasonNames[reason]; !ok {
			return nil, fmt.Errorf("decode unassigned reason: unknown tag %d", reasonTag)
		}
		details, err := wr.readString("unassigned details")
		if err != nil {
			return nil, err
		}
		unassignedInfo = &UnassignedInfo{Reason: reason, Details: details}
		delay, err := wr.readUvarint("remaining delay")
		if err != nil {
			return nil, err
		}
		remainingDelay = int64(delay)
	}

	count, err := wr.readCount("node explanation count", maxWireCount)
	if err != nil {
		return nil, err
	}
	nodeExplanations := make(map[string]*NodeExplanation, count)
	for i := uint64(0); i < count; i++ {
		node, err := decodeNode(wr)
		if err != nil {
			return nil, err
		}
		ne, err := decodeNodeExplanation(wr, node)
		if err != nil {
			return nil, err
		}
		nodeExplanations[node.ID] = ne
	}

	return NewClusterAllocationExplanation(shard, primary, assignedNodeID,
		remainingDelay, unassignedInfo, nodeExplanations), nil
}

func decodeNode(wr *wireReader) (*DiscoveryNode, error) {
	node := &DiscoveryNode{}
	var err error
	if node.ID, err = wr.readString("node id"); err != nil {
		return nil, err
	}
	if node.Name, err = wr.readString("node name"); err != nil {
		return nil, err
	}
	if node.Address, err = wr.readString("node address"); err != nil {
		return nil, err
	}
	attrCount, err := wr.readCount("node attribute count", maxWireCount)
	if err != nil {
		return nil, err
	}
	if attrCount > 0 {
		node.Attributes = make(map[string]string, attrCount)
		for i := uint64(0); i < attrCount; i++ {
			k, err := wr.readString("node attribute key")
			if err != nil {
				return nil, err
			}
			v, err := wr.readString("node attribute value")
			if err != nil {
				return nil, err
			}
			node.Attributes[k] = v
		}
	}
	return node, nil
}

func decodeNodeExplanation(wr *wireReader, node *DiscoveryNode) (*NodeExplanation, error) {
	decisionCount, err := wr.readCount("decision count", maxWireCount)
	if err != nil {
		return nil, err
	}
	decisions := make([]Decision, 0, decisionCount)
	for i := uint64(0); i < decisionCount; i++ {
		typeTag, err := wr.readUvarint("decision type")
		if err != nil {
			return nil, err
		}
		decisionType := DecisionType(typeTag)
		if decisionType != DecisionYes && decisionType != DecisionNo && decisionType != DecisionThrottle {
			return nil, fmt.Errorf("decode decision type: unknown tag %d", typeTag)
		}
		decider, err := wr.readString("decision decider")
		if err != nil {
			return nil, err
		}
		explanation, err := wr.readString("decision explanation")
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, Decision{Type: decisionType, Decider: decider, Explanation: explanation})
	}

	weight, err := wr.readFloat64("weight")
	if err != nil {
		return nil, err
	}

	hasStore, err := wr.readBool("store status presence")
	if err != nil {
		return nil, err
	}
	var storeStatus *StoreStatus
	if hasStore {
		storeStatus = &StoreStatus{}
		if storeStatus.NodeID, err = wr.readString("store node id"); err != nil {
			return nil, err
		}
		if storeStatus.LegacyVersion, err = wr.readVarint("store legacy version"); err != nil {
			return nil, err
		}
		if storeStatus.AllocationID, err = wr.readString("store allocation id"); err != nil {
			return nil, err
		}
		roleTag, err := wr.readUvarint("store role")
		if err != nil {
			return nil, err
		}
		storeStatus.Role = StoreRole(roleTag)
		if _, ok := storeRoleNames[storeStatus.Role]; !ok {
			return nil, fmt.Errorf("decode store role: unknown tag %d", roleTag)
		}
		hasErr, err := wr.readBool("store read error presence")
		if err != nil {
			return nil, err
		}
		if hasErr {
			kindTag, err := wr.readUvarint("store read error kind")
			if err != nil {
				return nil, err
			}
			kind := StoreErrorKind(kindTag)
			if _, ok := storeErrorKindNames[kind]; !ok {
				return nil, fmt.Errorf("decode store read error kind: unknown tag %d", kindTag)
			}
			message, err := wr.readString("store read error message")
			if err != nil {
				return nil, err
			}
			storeStatus.ReadError = &StoreReadError{Kind: kind, Message: message}
		}
	}

	finalTag, err := wr.readUvarint("final decision")
	if err != nil {
		return nil, err
	}
	finalDecision := FinalDecision(finalTag)
	if _, ok := finalDecisionNames[finalDecision]; !ok {
		return nil, fmt.Errorf("decode final decision: unknown tag %d", finalTag)
	}
	finalExplanation, err := wr.readString("final explanation")
	if err != nil {
		return nil, err
	}
	copyTag, err := wr.readUvarint("store copy")
	if err != nil {
		return nil, err
	}
	storeCopy := StoreCopy(copyTag)
	if _, ok := storeCopyNames[storeCopy]; !ok {
		return nil, fmt.Errorf("decode store copy: unknown tag %d", copyTag)
	}

	return &NodeExplanation{
		Node:             node,
		Decision:         NewAggregateDecision(decisions...),
		Weight:           weight,
		StoreStatus:      storeStatus,
		FinalDecision:    finalDecision,
		FinalExplanation: finalExplanation,
		StoreCopy:        storeCopy,
	}, nil
}
