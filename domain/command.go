package domain

// Command is an inbound mutation or read routed to one room's single writer.
// Commands carrying a Reply channel get exactly one reply; the channel must
// be buffered so a slow caller never stalls the room loop.
type Command interface {
	RoomID() RoomID
}

type JoinCommand struct {
	Room        RoomID
	DisplayName string
	Origin      string
	Reply       chan<- JoinReply
}

func (c JoinCommand) RoomID() RoomID { return c.Room }

type JoinReply struct {
	AlreadyMember bool
	Members       []Member
	Err           error
}

type LeaveCommand struct {
	Room        RoomID
	DisplayName string
	Origin      string
}

func (c LeaveCommand) RoomID() RoomID { return c.Room }

type PostMessageCommand struct {
	Room   RoomID
	Sender string
	Text   string
	Origin string
	Reply  chan<- PostMessageReply
}

func (c PostMessageCommand) RoomID() RoomID { return c.Room }

type PostMessageReply struct {
	Message Message
	Err     error
}

type SetTypingCommand struct {
	Room        RoomID
	DisplayName string
	IsTyping    bool
	Origin      string
}

func (c SetTypingCommand) RoomID() RoomID { return c.Room }

type HistoryCommand struct {
	Room  RoomID
	Reply chan<- []Message
}

func (c HistoryCommand) RoomID() RoomID { return c.Room }

// TypingExpiredCommand is dispatched by the room worker's own expiry timer.
// Routing it through the command queue keeps the single-writer discipline:
// the timer never touches room state directly.
type TypingExpiredCommand struct {
	Room        RoomID
	DisplayName string
	Gen         uint64
}

func (c TypingExpiredCommand) RoomID() RoomID { return c.Room }
