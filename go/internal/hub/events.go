package hub

// EventType is the tag of an outbound message.
type EventType string

const (
	EventGameStart        EventType = "live_game_start"
	EventGameBuy          EventType = "live_game_buy"
	EventGameBuyConfirmed EventType = "live_game_buy_confirmed"
	EventRedirectDeploy   EventType = "redirect_deploy"
	EventGamePlace        EventType = "live_game_place"
	EventRedirectFight    EventType = "redirect_fight"
	EventGamePlay         EventType = "live_game_play"
	EventGameDraw         EventType = "live_game_draw"
	EventGameResign       EventType = "live_game_resign"
	EventGameTimeout      EventType = "live_game_timeout"
	EventGameEnd          EventType = "live_game_end"
	EventGameState        EventType = "live_game_state"
	EventGameHand         EventType = "live_game_hand"
	EventGameConfirmed    EventType = "live_game_confirmed"
	EventChatMessage      EventType = "live_chat_message"
	EventChatFull         EventType = "live_chat_full"
	EventLobbyAdd         EventType = "home_lobby_add"
	EventLobbyRemove      EventType = "home_lobby_remove"
	EventLobbyFull        EventType = "home_lobby_full"
	EventPlayersCount     EventType = "active_players_count"
	EventGamesCount       EventType = "active_games_count"
)

// Event is the envelope of every outbound message.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// CountPayload carries a counter update.
type CountPayload struct {
	Count int `json:"count"`
}

// ChatPayload carries one chat message or a full room log.
type ChatPayload struct {
	Room     string        `json:"room"`
	Message  *ChatMessage  `json:"message,omitempty"`
	Messages []ChatMessage `json:"messages,omitempty"`
}
