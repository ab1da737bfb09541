package track

import "fmt"

// ConfigurationError reports a registry or session misconfiguration, such as
// an unregistered kind reached during traversal or a merge attempted over
// kinds that do not support identity matching.
type ConfigurationError struct {
	Kind   string
	Reason string
}

func (e ConfigurationError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("track: configuration: %s", e.Reason)
	}
	return fmt.Sprintf("track: configuration: kind %q: %s", e.Kind, e.Reason)
}

// InvalidArgumentError reports a caller-supplied value that the engine cannot
// work with, such as a nil entity or a kind mismatch on a collection.
type InvalidArgumentError struct {
	Name   string
	Reason string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("track: invalid argument %q: %s", e.Name, e.Reason)
}
