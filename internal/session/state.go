package session

// GenerationState is exactly one of Idle, InProgress, Succeeded or Failed.
type GenerationState interface {
	// Status is a stable name for the state: idle, in_progress, succeeded, failed.
	Status() string
	generationState()
}

// Idle means nothing has been generated yet.
type Idle struct{}

// InProgress means one generation request is in flight.
type InProgress struct{}

// Succeeded holds the base64 payload of the generated image.
type Succeeded struct {
	Payload string
}

// Failed holds the user-facing failure message.
type Failed struct {
	Message string
}

func (Idle) Status() string { return "idle" }
func (InProgress) Status() string { return "in_progress" }
func (Succeeded) Status() string { return "succeeded" }
func (Failed) Status() string { return "failed" }

func (Idle) generationState() {}
func (InProgress) generationState() {}
func (Succeeded) generationState() {}
func (Failed) generationState() {}
