package domain

// RoomID names a broadcast scope. Rooms are not pre-declared: the registry
// creates them on first join and reclaims them once empty.
type RoomID string
