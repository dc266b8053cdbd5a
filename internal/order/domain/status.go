package domain

// Status is the closed set of order lifecycle states. An order only moves
// forward through Created -> Confirmed -> Received -> Complete; soft deletion
// is a separate flag and does not interact with the lifecycle.
type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
	StatusReceived  Status = "received"
	StatusComplete  Status = "complete"
)

func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusConfirmed, StatusReceived, StatusComplete:
		return true
	}
	return false
}

// Action names a requested lifecycle operation.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionEdit     Action = "edit"
	ActionReceive  Action = "receive"
	ActionComplete Action = "complete"
)

type rule struct {
	from Status
	to   Status
}

// Transition rules live here and nowhere else. Edit is a guard-only action:
// it never changes the status, it just requires the order to be Confirmed.
var rules = map[Action]rule{
	ActionConfirm:  {from: StatusCreated, to: StatusConfirmed},
	ActionEdit:     {from: StatusConfirmed, to: StatusConfirmed},
	ActionReceive:  {from: StatusConfirmed, to: StatusReceived},
	ActionComplete: {from: StatusReceived, to: StatusComplete},
}

// Next returns the status that results from applying action to current, or an
// InvalidTransitionError leaving the caller's state untouched.
func Next(current Status, action Action) (Status, error) {
	r, ok := rules[action]
	if !ok {
		return current, &InvalidTransitionError{From: current, Action: action, Reason: "unknown action"}
	}
	if current != r.from {
		return current, &InvalidTransitionError{From: current, Action: action}
	}
	return r.to, nil
}
