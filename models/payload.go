package models

// IntakePayload is the body posted by a platform trigger when a device with
// the migration flag connects. Optional fields are pointers so validation can
// distinguish a missing field from an empty one.
type IntakePayload struct {
	SessionID   *string `json:"SessionID"`
	Name        *string `json:"Name"`
	SessionType *string `json:"SessionType"`

	CustomProperty1 *string `json:"CustomProperty1"`
	CustomProperty2 *string `json:"CustomProperty2"`
	CustomProperty3 *string `json:"CustomProperty3"`
	CustomProperty4 *string `json:"CustomProperty4"`
	CustomProperty5 *string `json:"CustomProperty5"`
	CustomProperty6 *string `json:"CustomProperty6"`
	CustomProperty7 *string `json:"CustomProperty7"`
}

// CustomProperties collects the free-form slots in positional order. Slot 8
// is the status slot and never arrives in a trigger payload, so only the
// first seven are populated here.
func (p *IntakePayload) CustomProperties() []string {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return []string{
		deref(p.CustomProperty1),
		deref(p.CustomProperty2),
		deref(p.CustomProperty3),
		deref(p.CustomProperty4),
		deref(p.CustomProperty5),
		deref(p.CustomProperty6),
		deref(p.CustomProperty7),
	}
}

// ResultPayload is posted by the device-side installer script after it runs.
type ResultPayload struct {
	SessionID *string `json:"sessionId"`
	Success   *bool   `json:"success"`
	Message   *string `json:"message"`
}

// WebhookResponse is the uniform JSON body for every receiver response.
type WebhookResponse struct {
	OK        bool   `json:"ok"`
	Action    string `json:"action,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Instance  string `json:"instance,omitempty"`
	Error     string `json:"error,omitempty"`
}
