package domain

// InstancePatch is a partial update reported by a driver or an admin. Nil
// fields are left untouched.
type InstancePatch struct {
	State           *string `json:"state,omitempty"`
	ToBeDeleted     *bool   `json:"to_be_deleted,omitempty"`
	LogFetchPending *bool   `json:"log_fetch_pending,omitempty"`
	ErrorMsg        *string `json:"error_msg,omitempty"`
	PublicIP        *string `json:"public_ip,omitempty"`
	// InstanceData is a JSON object encoded as a string. Text that does not
	// decode to an object is logged and ignored.
	InstanceData *string `json:"instance_data,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *InstancePatch) IsEmpty() bool {
	return p.State == nil && p.ToBeDeleted == nil && p.LogFetchPending == nil &&
		p.ErrorMsg == nil && p.PublicIP == nil && p.InstanceData == nil
}

// StatePatch builds a patch that only moves the instance to state.
func StatePatch(state InstanceState) InstancePatch {
	s := string(state)
	return InstancePatch{State: &s}
}
