// Package trace records simulation notifications as plain data for
// post-run analysis. This package has no dependencies on sim/: it stores
// pure data types and the sim package adapts its notifications into them.
package trace

// ActivityRecord captures one milestone of an element instance: element
// start/finish, a request-step transition, or a resource seize/release.
type ActivityRecord struct {
	Kind         string
	Clock        int64
	ElementID    int
	ElementType  string
	Instance     int
	Flow         string
	Manager      int
	Resource     string // set for seize/release and interruptions
	ResourceType string
	Value        float64 // remaining fraction on resume/interrupt
}

// ResourceRecord captures a change in a resource's availability.
type ResourceRecord struct {
	Kind         string
	Clock        int64
	Resource     string
	ResourceType string
	Value        float64 // cancel-period length, when applicable
}
