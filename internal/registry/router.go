package registry

// Router fans events out to room members. Delivery is best-effort: a closed
// connection just drops the event, the sender never learns about it.
type Router struct {
	reg *Registry
}

func NewRouter(reg *Registry) *Router {
	return &Router{reg: reg}
}

// NotifyAll delivers to every member of the room, sender included. Chat and
// execution output go through here so everyone sees exactly one authoritative
// copy; de-duplicating against a locally echoed copy is the client's job.
func (rt *Router) NotifyAll(roomID string, evt Event) {
	for _, c := range rt.targets(roomID, "") {
		_ = c.Send(evt) // best-effort
	}
}

// NotifyOthers delivers to every member except excludeID, so the originator of
// an edit or a join never receives its own echo.
func (rt *Router) NotifyOthers(roomID, excludeID string, evt Event) {
	for _, c := range rt.targets(roomID, excludeID) {
		_ = c.Send(evt) // best-effort
	}
}

// NotifyDirect unicasts to one connection, e.g. syncing the current code to a
// late joiner. Unknown targets are silently skipped.
func (rt *Router) NotifyDirect(connID string, evt Event) {
	if c, ok := rt.reg.Lookup(connID); ok {
		_ = c.Send(evt)
	}
}

func (rt *Router) targets(roomID, excludeID string) []Conn {
	members := rt.reg.ListMembers(roomID)
	out := make([]Conn, 0, len(members))
	for _, m := range members {
		if m.SocketID == excludeID {
			continue
		}
		if c, ok := rt.reg.Lookup(m.SocketID); ok {
			out = append(out, c)
		}
	}
	return out
}
