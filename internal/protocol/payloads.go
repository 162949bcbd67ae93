package protocol

// CreateRoomPayload is the data of room:create.
type CreateRoomPayload struct {
	HostID     string `json:"hostId"`
	MaxPlayers int    `json:"maxPlayers"`
	MaxRounds  int    `json:"maxRounds"`
}

// JoinRoomPayload is the data of room:join.
type JoinRoomPayload struct {
	RoomCode string `json:"roomCode"`
}

// ChatSendPayload is the data of chat:send.
type ChatSendPayload struct {
	Message string `json:"message"`
}

// Phase is the coarse stage of a game session.
type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseDrawing Phase = "drawing"
	PhaseEnded   Phase = "ended"
)

// Player is a participant as seen in a GameState.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Score    int    `json:"score"`
	IsHost   bool   `json:"isHost"`
}

// GameState is the server's snapshot of a room, replaced wholesale on every update.
type GameState struct {
	RoomCode     string   `json:"roomCode"`
	HostID       string   `json:"hostId"`
	Players      []Player `json:"players"`
	MaxPlayers   int      `json:"maxPlayers"`
	MaxRounds    int      `json:"maxRounds"`
	CurrentRound int      `json:"currentRound"`
	Phase        Phase    `json:"phase"`
}

// Tool is a drawing tool.
type Tool string

const (
	ToolBrush     Tool = "brush"
	ToolEraser    Tool = "eraser"
	ToolLine      Tool = "line"
	ToolRectangle Tool = "rectangle"
	ToolSquare    Tool = "square"
	ToolCircle    Tool = "circle"
	ToolDotted    Tool = "dotted"
)

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one drawing action.
type Stroke struct {
	ID        string  `json:"id"`
	PlayerID  string  `json:"playerId"`
	Tool      Tool    `json:"tool"`
	Color     string  `json:"color"`
	Size      int     `json:"size"`
	Points    []Point `json:"points"`
	Timestamp int64   `json:"timestamp"`
}

// MessageType distinguishes player chat from server notices.
type MessageType string

const (
	MessageChat   MessageType = "chat"
	MessageSystem MessageType = "system"
)

// ChatMessage is a chat line delivered by chat:message.
type ChatMessage struct {
	ID        string      `json:"id"`
	PlayerID  string      `json:"playerId,omitempty"`
	Username  string      `json:"username"`
	Message   string      `json:"message"`
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}
