package session

// SlotView is a read-only copy of one slot.
type SlotView struct {
	Role       Role
	Filled     bool
	PreviewURL string
	Name       string
	MediaType  string
}

// View is a consistent snapshot of the controller for rendering.
type View struct {
	Slots     [numRoles]SlotView
	State     GenerationState
	Error     string
	CanSubmit bool
}

// Slot returns the view of one role.
func (v View) Slot(r Role) SlotView {
	return v.Slots[r]
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:     c.state,
		Error:     c.errMsg,
		CanSubmit: c.canSubmitLocked(),
	}
	for _, r := range Roles {
		sv := SlotView{Role: r}
		if img := c.slots[r]; img != nil {
			sv.Filled = true
			sv.PreviewURL = img.PreviewURL()
			sv.Name = img.Name
			sv.MediaType = img.MediaType
		}
		v.Slots[r] = sv
	}
	return v
}
