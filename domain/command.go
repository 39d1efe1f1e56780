package domain

// Command is an inbound chat intent decoded from the transport.
// Join, Leave and SendMessage are the only members of the enum; the
// coordinator dispatches on the concrete type.
type Command interface {
	RoomID() RoomID
}

type JoinCommand struct {
	Room string
}

func (c JoinCommand) RoomID() RoomID {
	return RoomID(c.Room)
}

type LeaveCommand struct {
	Room string
}

func (c LeaveCommand) RoomID() RoomID {
	return RoomID(c.Room)
}

type SendMessageCommand struct {
	Room string
	Body string
}

func (c SendMessageCommand) RoomID() RoomID {
	return RoomID(c.Room)
}
