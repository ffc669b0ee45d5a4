package history

// Message is the tagged union broadcast to browser-facing history
// websockets: either a periodic Tick (global stats + active-download
// snapshots) or a single-row Event (one gid changed state). Mirrors the
// original `DdlWsMessage` enum's wire shape via the Type field.
type Message interface {
	message()
}

// TickMessage reports global daemon throughput plus every active
// download's current status, scoped to one user.
type TickMessage struct {
	Type   string        `json:"type"`
	UserID int64         `json:"-"`
	Global GlobalStat    `json:"global"`
	Tasks  []Aria2Status `json:"tasks"`
}

func (TickMessage) message() {}

// NewTick constructs a TickMessage with its wire discriminator set.
func NewTick(userID int64, global GlobalStat, tasks []Aria2Status) TickMessage {
	return TickMessage{Type: "tick", UserID: userID, Global: global, Tasks: tasks}
}

// EventMessage reports a single row's latest state, scoped to one user.
type EventMessage struct {
	Type   string       `json:"type"`
	UserID int64        `json:"-"`
	Data   ItemMetaData `json:"data"`
}

func (EventMessage) message() {}

// NewEvent constructs an EventMessage with its wire discriminator set.
func NewEvent(userID int64, data ItemMetaData) EventMessage {
	return EventMessage{Type: "event", UserID: userID, Data: data}
}

// UserID returns the owning user of any history Message, used for routing
// to the right user's websocket subscribers without a type switch at every
// call site.
func UserID(m Message) int64 {
	switch v := m.(type) {
	case TickMessage:
		return v.UserID
	case EventMessage:
		return v.UserID
	default:
		return 0
	}
}
