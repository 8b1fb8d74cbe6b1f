package protocol

// RepairForm selects how a run of repair symbol ids is packed onto the
// wire: individually (ITEMS), as a first/last pair (RANGES), or — unused by
// this engine, kept only because collaborators declare it — as an erasure
// count (ERASURES).
type RepairForm byte

const (
	RepairFormInvalid  RepairForm = 0
	RepairFormItems    RepairForm = 1
	RepairFormRanges   RepairForm = 2
	RepairFormErasures RepairForm = 3
)

// RepairFormFor chooses ITEMS for runs of length 1 or 2 and RANGES for runs
// of length >= 3, the compaction rule spec.md requires for bit-exact
// compatibility with wire peers.
func RepairFormFor(runLength int) RepairForm {
	switch {
	case runLength <= 0:
		return RepairFormInvalid
	case runLength <= 2:
		return RepairFormItems
	default:
		return RepairFormRanges
	}
}

// RepairFlag marks what a repair request/advertisement is asking for.
type RepairFlag byte

const (
	RepairFlagSegment RepairFlag = 1 << 0
	RepairFlagInfo    RepairFlag = 1 << 1
)
