package provider

// Event names the wallet is allowed to push to a page. Anything outside
// this vocabulary is dropped on arrival.
type Event string

const (
	EventAccountsChanged Event = "accountsChanged"
	EventChainChanged    Event = "chainChanged"
)

func knownEvent(method string) (Event, bool) {
	switch Event(method) {
	case EventAccountsChanged, EventChainChanged:
		return Event(method), true
	default:
		return "", false
	}
}
