// Package partition implements DDS PARTITION QoS matching: a writer and
// reader are only candidates for matching (spec.md §4.2) if at least one
// of the writer's partition names matches at least one of the reader's,
// under glob-style wildcard expansion (`*`, `?`, `[...]`), the behavior
// Cyclone DDS's SEDP handling applies as a pre-filter before RxO
// comparison (q_entity.c). The distilled spec's matching section is
// silent on partitions; this package supplements it per SPEC_FULL.md.
package partition

import "github.com/gobwas/glob"

// DefaultPartition is the unnamed partition every endpoint with no
// PARTITION QoS set belongs to.
const DefaultPartition = ""

// Match reports whether any name in writerPartitions matches, by glob
// expansion, any name in readerPartitions. Two empty partition lists
// (or a name equal to DefaultPartition on both sides) always match.
func Match(writerPartitions, readerPartitions []string) bool {
	wp := orDefault(writerPartitions)
	rp := orDefault(readerPartitions)

	for _, w := range wp {
		wg, err := glob.Compile(w)
		if err != nil {
			// An unparseable expression matches only itself literally,
			// mirroring Cyclone's fallback when a partition name
			// contains characters glob cannot compile.
			wg = nil
		}
		for _, r := range rp {
			if globMatch(wg, w, r) || globMatchReverse(r, w) {
				return true
			}
		}
	}
	return false
}

func globMatch(wg glob.Glob, wPattern, r string) bool {
	if wg != nil && wg.Match(r) {
		return true
	}
	return wPattern == r
}

func globMatchReverse(rPattern, w string) bool {
	rg, err := glob.Compile(rPattern)
	if err != nil {
		return rPattern == w
	}
	return rg.Match(w)
}

func orDefault(names []string) []string {
	if len(names) == 0 {
		return []string{DefaultPartition}
	}
	return names
}
