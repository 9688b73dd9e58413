package bolt

// errNotAMessage is returned by ReadMessage when the decoded value wasn't a
// Structure at all (never legal on a Bolt connection — every message is one).
var errNotAMessage = newLocalError("decoded value is not a message structure")

type localError struct{ msg string }

func newLocalError(msg string) error { return &localError{msg: msg} }
func (e *localError) Error() string  { return e.msg }

// constructor builds a typed Go value from a structure's fields. Returning
// (nil, false) leaves the raw *Structure in place — e.g. an unrecognized
// tag, which propagates upstream untouched per spec.md §9 ("unknown tags
// propagate as raw Structure(tag, fields) and fail upstream only if the
// user asks for a typed projection").
type constructor func(fields []any) (any, bool)

var hydrators = map[byte]constructor{
	TagNode:                hydrateNode,
	TagRelationship:        hydrateRelationship,
	TagUnboundRelationship: hydrateUnboundRelationship,
	TagPath:                hydratePath,
	TagPoint2D:             hydratePoint2D,
	TagPoint3D:             hydratePoint3D,
	TagDate:                hydrateDate,
	TagTime:                hydrateTime,
	TagLocalTime:           hydrateLocalTime,
	TagDateTime:            hydrateDateTime,
	TagDateTimeZoneID:      hydrateDateTimeZoneID,
	TagLocalDateTime:       hydrateLocalDateTime,
	TagDuration:            hydrateDuration,
}

// Hydrate applies the tag->constructor registry to s. Structures nested
// inside s.Fields have already been hydrated by the decoder (hydration
// happens bottom-up as each nested Structure is decoded).
func Hydrate(s *Structure) any {
	ctor, ok := hydrators[s.Tag]
	if !ok {
		return s
	}
	v, ok := ctor(s.Fields)
	if !ok {
		return s
	}
	return v
}

func asInt64(v any) (int64, bool) {
	n, ok := v.(int64)
	return n, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func hydrateNode(f []any) (any, bool) {
	if len(f) < 3 {
		return nil, false
	}
	id, ok := asInt64(f[0])
	if !ok {
		return nil, false
	}
	labelsRaw, ok := f[1].([]any)
	if !ok {
		return nil, false
	}
	labels := make([]string, 0, len(labelsRaw))
	for _, l := range labelsRaw {
		if s, ok := asString(l); ok {
			labels = append(labels, s)
		}
	}
	props, ok := asMap(f[2])
	if !ok {
		return nil, false
	}
	n := &Node{ID: id, Labels: labels, Properties: props}
	if len(f) >= 4 {
		if eid, ok := asString(f[3]); ok {
			n.ElementID = eid
		}
	}
	return n, true
}

func hydrateRelationship(f []any) (any, bool) {
	if len(f) < 5 {
		return nil, false
	}
	id, _ := asInt64(f[0])
	start, _ := asInt64(f[1])
	end, _ := asInt64(f[2])
	typ, _ := asString(f[3])
	props, ok := asMap(f[4])
	if !ok {
		return nil, false
	}
	r := &Relationship{ID: id, StartID: start, EndID: end, Type: typ, Properties: props}
	if len(f) >= 6 {
		if eid, ok := asString(f[5]); ok {
			r.ElementID = eid
		}
	}
	return r, true
}

func hydrateUnboundRelationship(f []any) (any, bool) {
	if len(f) < 3 {
		return nil, false
	}
	id, _ := asInt64(f[0])
	typ, _ := asString(f[1])
	props, ok := asMap(f[2])
	if !ok {
		return nil, false
	}
	r := &UnboundRelationship{ID: id, Type: typ, Properties: props}
	if len(f) >= 4 {
		if eid, ok := asString(f[3]); ok {
			r.ElementID = eid
		}
	}
	return r, true
}

func hydratePath(f []any) (any, bool) {
	if len(f) < 3 {
		return nil, false
	}
	nodesRaw, ok := f[0].([]any)
	if !ok {
		return nil, false
	}
	relsRaw, ok := f[1].([]any)
	if !ok {
		return nil, false
	}
	indices, ok := f[2].([]any)
	if !ok {
		return nil, false
	}

	nodes := make([]*Node, 0, len(nodesRaw))
	for _, n := range nodesRaw {
		if node, ok := n.(*Node); ok {
			nodes = append(nodes, node)
		}
	}
	unbound := make([]*UnboundRelationship, 0, len(relsRaw))
	for _, r := range relsRaw {
		if rel, ok := r.(*UnboundRelationship); ok {
			unbound = append(unbound, rel)
		}
	}

	path := &Path{Nodes: nodes}
	cursor := 0
	for i := 0; i+1 < len(indices); i += 2 {
		relIdx, _ := asInt64(indices[i])
		nodeIdx, _ := asInt64(indices[i+1])
		if relIdx == 0 || int(nodeIdx) >= len(nodes) {
			continue
		}
		absIdx := relIdx
		forward := absIdx > 0
		if !forward {
			absIdx = -absIdx
		}
		idx := int(absIdx) - 1
		if idx < 0 || idx >= len(unbound) {
			continue
		}
		u := unbound[idx]
		startID := path.Nodes[cursor].ID
		endID := nodes[nodeIdx].ID
		if !forward {
			startID, endID = endID, startID
		}
		path.Relationships = append(path.Relationships, &Relationship{
			ID: u.ID, Type: u.Type, Properties: u.Properties,
			StartID: startID, EndID: endID, ElementID: u.ElementID,
		})
		cursor = int(nodeIdx)
	}
	return path, true
}

func hydratePoint2D(f []any) (any, bool) {
	if len(f) != 3 {
		return nil, false
	}
	srid, _ := asInt64(f[0])
	x, _ := asFloat(f[1])
	y, _ := asFloat(f[2])
	return &Point2D{SRID: srid, X: x, Y: y}, true
}

func hydratePoint3D(f []any) (any, bool) {
	if len(f) != 4 {
		return nil, false
	}
	srid, _ := asInt64(f[0])
	x, _ := asFloat(f[1])
	y, _ := asFloat(f[2])
	z, _ := asFloat(f[3])
	return &Point3D{SRID: srid, X: x, Y: y, Z: z}, true
}

func hydrateDate(f []any) (any, bool) {
	if len(f) != 1 {
		return nil, false
	}
	days, _ := asInt64(f[0])
	return Date{Days: days}, true
}

func hydrateTime(f []any) (any, bool) {
	if len(f) != 2 {
		return nil, false
	}
	ns, _ := asInt64(f[0])
	off, _ := asInt64(f[1])
	return Time{Nanoseconds: ns, OffsetSecond: off}, true
}

func hydrateLocalTime(f []any) (any, bool) {
	if len(f) != 1 {
		return nil, false
	}
	ns, _ := asInt64(f[0])
	return LocalTime{Nanoseconds: ns}, true
}

func hydrateDateTime(f []any) (any, bool) {
	if len(f) != 3 {
		return nil, false
	}
	sec, _ := asInt64(f[0])
	ns, _ := asInt64(f[1])
	off, _ := asInt64(f[2])
	return DateTime{Seconds: sec, Nanoseconds: ns, OffsetSecond: off}, true
}

func hydrateDateTimeZoneID(f []any) (any, bool) {
	if len(f) != 3 {
		return nil, false
	}
	sec, _ := asInt64(f[0])
	ns, _ := asInt64(f[1])
	zone, _ := asString(f[2])
	return DateTimeZoneID{Seconds: sec, Nanoseconds: ns, ZoneID: zone}, true
}

func hydrateLocalDateTime(f []any) (any, bool) {
	if len(f) != 2 {
		return nil, false
	}
	sec, _ := asInt64(f[0])
	ns, _ := asInt64(f[1])
	return LocalDateTime{Seconds: sec, Nanoseconds: ns}, true
}

func hydrateDuration(f []any) (any, bool) {
	if len(f) != 4 {
		return nil, false
	}
	months, _ := asInt64(f[0])
	days, _ := asInt64(f[1])
	sec, _ := asInt64(f[2])
	ns, _ := asInt64(f[3])
	return Duration{Months: months, Days: days, Seconds: sec, Nanoseconds: ns}, true
}
