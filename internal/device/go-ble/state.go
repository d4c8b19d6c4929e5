package goble

// State is the lifecycle state of a Session.
type State int32

const (
	Idle State = iota
	Connecting
	NegotiatingLink
	DiscoveringServices
	SubscribingNotifications
	Ready
	Writing
	Disconnected
)

var stateNames = [...]string{
	Idle:                     "idle",
	Connecting:               "connecting",
	NegotiatingLink:          "negotiating_link",
	DiscoveringServices:      "discovering_services",
	SubscribingNotifications: "subscribing_notifications",
	Ready:                    "ready",
	Writing:                  "writing",
	Disconnected:             "disconnected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Linked reports whether the physical link is up and usable for writes.
func (s State) Linked() bool {
	return s == Ready || s == Writing
}

// connecting reports whether a connect sequence is in progress.
func (s State) connecting() bool {
	return s >= Connecting && s <= SubscribingNotifications
}
