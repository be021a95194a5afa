package services

import "github.com/Ananth-NQI/whatsapp-relay/internal/models"

// Decision is the outcome of the mode gate
type Decision int

const (
	DecisionSuppress Decision = iota
	DecisionAutomate
)

func (d Decision) String() string {
	if d == DecisionAutomate {
		return "automate"
	}
	return "suppress"
}

// Decide maps a conversation mode to the automation decision. Only bot mode
// automates; anything unknown is suppressed.
func Decide(mode models.Mode) Decision {
	if mode == models.ModeBot {
		return DecisionAutomate
	}
	return DecisionSuppress
}
