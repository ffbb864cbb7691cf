package valueobjects

// EdgeKey is the deduplication identity of a connection: no two edges may
// share the same (source, target, sourceHandle, targetHandle) tuple.
type EdgeKey struct {
	Source       NodeID
	Target       NodeID
	SourceHandle string
	TargetHandle string
}

// NewEdgeKey builds the dedup key for a connection
func NewEdgeKey(source, target NodeID, sourceHandle, targetHandle string) EdgeKey {
	return EdgeKey{
		Source:       source,
		Target:       target,
		SourceHandle: sourceHandle,
		TargetHandle: targetHandle,
	}
}

// String renders the key in a stable map-friendly form
func (k EdgeKey) String() string {
	return k.Source.String() + "->" + k.Target.String() + "#" + k.SourceHandle + "/" + k.TargetHandle
}
