package gateway

// Envelope is one delivered message: the payload plus its metadata.
type Envelope struct {
	Meta map[string]interface{} `json:"meta"`
	Data interface{}            `json:"data"`
}

// APIResponse is the single response shape every endpoint returns.
// is_ok and cid are always present; the rest depends on the endpoint
// and, for the pull path, on the single-message flattening toggle.
type APIResponse struct {
	IsOK    bool   `json:"is_ok"`
	CID     string `json:"cid"`
	Details string `json:"details,omitempty"`

	// Publish only.
	MessageCount *int `json:"message_count,omitempty"`

	// Pull only: either Messages, or the flattened Data/Meta pair.
	// Messages is a pointer so list-shaped responses still emit
	// "messages": [] when the queue is empty, while flattened
	// responses omit the key entirely.
	Messages *[]Envelope            `json:"messages,omitempty"`
	Data     interface{}            `json:"data,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
}

func okResponse(cid string) APIResponse {
	return APIResponse{IsOK: true, CID: cid}
}

func errorResponse(cid, details string) APIResponse {
	return APIResponse{IsOK: false, CID: cid, Details: details}
}
