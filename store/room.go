package store

// Room is a chat room. Names are unique; creating a duplicate name fails.
type Room struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatorID string `json:"creatorId"`
	CreatedTs int64  `json:"createdTs"`
}

// FindRoom is the filter for ListRooms.
type FindRoom struct {
	ID   *string
	Name *string
}

// DeleteRoom is the payload for DeleteRoom.
type DeleteRoom struct {
	ID string
}
