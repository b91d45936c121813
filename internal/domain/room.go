package domain

import "fmt"

type (
	RoomID   string
	ClientID string
)

// Membership is the (room, client) pair a signaling channel is scoped to.
// It lives only as long as the channel that carries it.
type Membership struct {
	Room   RoomID   `json:"room"`
	Client ClientID `json:"client"`
}

func NewMembership(room, client string) (Membership, error) {
	if err := validateID(room); err != nil {
		return Membership{}, fmt.Errorf("room id: %w", err)
	}
	if err := validateID(client); err != nil {
		return Membership{}, fmt.Errorf("client id: %w", err)
	}
	return Membership{Room: RoomID(room), Client: ClientID(client)}, nil
}

func (m Membership) String() string {
	return string(m.Room) + "/" + string(m.Client)
}
