package memory

import "context"

// Presence is a no-op PresenceStore for deployments without redis.
type Presence struct{}

func NewPresence() Presence { return Presence{} }

func (Presence) Touch(context.Context, string) error  { return nil }
func (Presence) Forget(context.Context, string) error { return nil }
