package collab

import "sort"

// rooms is the broadcast audience registry: document id to joined
// connection ids.
type rooms struct {
	members map[string]map[string]struct{}
}

func newRooms() *rooms {
	return &rooms{members: make(map[string]map[string]struct{})}
}

func (r *rooms) join(room, connID string) {
	m, ok := r.members[room]
	if !ok {
		m = make(map[string]struct{})
		r.members[room] = m
	}
	m[connID] = struct{}{}
}

func (r *rooms) leave(room, connID string) {
	m, ok := r.members[room]
	if !ok {
		return
	}
	delete(m, connID)
	if len(m) == 0 {
		delete(r.members, room)
	}
}

func (r *rooms) list(room string) []string {
	m := r.members[room]
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
