package pipeline

import "strings"

const (
	// MetaTrail is the Cursor.Meta key holding recently processed refs,
	// oldest first, separated by newlines.
	MetaTrail = "trail"

	// TrailLen caps how many refs a cursor carries.
	TrailLen = 64
)

// trail is the bounded set of refs a chain has processed lately. A next unit
// already on the trail means pagination loops back on itself.
type trail struct {
	refs []string
	seen map[string]int
}

func trailFrom(meta map[string]string) *trail {
	t := &trail{seen: make(map[string]int)}
	for _, ref := range strings.Split(meta[MetaTrail], "\n") {
		if ref != "" {
			t.add(ref)
		}
	}
	return t
}

func (t *trail) add(ref string) {
	t.refs = append(t.refs, ref)
	t.seen[ref]++
	if len(t.refs) > TrailLen {
		oldest := t.refs[0]
		t.refs = t.refs[1:]
		t.seen[oldest]--
		if t.seen[oldest] == 0 {
			delete(t.seen, oldest)
		}
	}
}

func (t *trail) has(ref string) bool { return t.seen[ref] > 0 }

// meta returns a copy of base with the trail written under MetaTrail.
func (t *trail) meta(base map[string]string) map[string]string {
	out := make(map[string]string, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[MetaTrail] = strings.Join(t.refs, "\n")
	return out
}
