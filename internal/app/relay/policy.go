package relay

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose send queue is full.
type Policy interface {
	OnBackPressure(room *Room, member Member) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*Room, Member) BackpressureAction {
	return KickMember
}
