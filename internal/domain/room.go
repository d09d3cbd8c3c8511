package domain

import (
	"fmt"
	"strings"
)

// Event names pushed over the live transport.
const (
	EventNotification      = "notification"
	EventAdminNotification = "adminNotification"
	EventPropertyUpdate    = "propertyUpdate"
	EventNewProperty       = "newProperty"
	EventSystem            = "system"
)

// RoomKind discriminates the Room variants.
type RoomKind int

const (
	RoomPersonal RoomKind = iota + 1
	RoomProperty
	RoomAdmin
	RoomGlobal
)

const (
	personalPrefix = "user:"
	propertyPrefix = "property:"
	adminKey       = "admin"
	globalKey      = "*"
)

// Room is a fan-out target. The zero value is not a valid room; use the constructors.
type Room struct {
	kind RoomKind
	id   string
}

func PersonalRoom(userID string) Room     { return Room{kind: RoomPersonal, id: userID} }
func PropertyRoom(propertyID string) Room { return Room{kind: RoomProperty, id: propertyID} }
func AdminRoom() Room                     { return Room{kind: RoomAdmin} }
func GlobalRoom() Room                    { return Room{kind: RoomGlobal} }

func (r Room) Kind() RoomKind { return r.kind }
func (r Room) ID() string     { return r.id }

// Key is the single serialization of a room used by the registry.
func (r Room) Key() string {
	switch r.kind {
	case RoomPersonal:
		return personalPrefix + r.id
	case RoomProperty:
		return propertyPrefix + r.id
	case RoomAdmin:
		return adminKey
	case RoomGlobal:
		return globalKey
	}
	return ""
}

func (r Room) String() string { return r.Key() }

// Valid reports whether r names a room: personal and property rooms need an id.
func (r Room) Valid() bool {
	switch r.kind {
	case RoomPersonal, RoomProperty:
		return r.id != ""
	case RoomAdmin, RoomGlobal:
		return true
	}
	return false
}

// ParseRoom is the inverse of Key.
func ParseRoom(key string) (Room, error) {
	switch {
	case key == adminKey:
		return AdminRoom(), nil
	case key == globalKey:
		return GlobalRoom(), nil
	case strings.HasPrefix(key, personalPrefix) && len(key) > len(personalPrefix):
		return PersonalRoom(strings.TrimPrefix(key, personalPrefix)), nil
	case strings.HasPrefix(key, propertyPrefix) && len(key) > len(propertyPrefix):
		return PropertyRoom(strings.TrimPrefix(key, propertyPrefix)), nil
	}
	return Room{}, fmt.Errorf("unknown room %q: %w", key, ErrBadRequest)
}
