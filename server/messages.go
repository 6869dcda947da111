package server

// Wire messages. Every message other than the handshake lines is a single
// JSON object followed by a newline.

// request is the union of all client requests; dispatch branches on
// RequestType and reads only the fields that type uses. Unknown fields are
// ignored by the decoder, unknown request types by the dispatcher.
type request struct {
	RequestType string `json:"requestType"`
	CellName    string `json:"cellName"`
	Contents    string `json:"contents"`
}

type cellUpdated struct {
	MessageType string `json:"messageType"`
	CellName    string `json:"cellName"`
	Contents    string `json:"contents"`
}

func newCellUpdated(cell, contents string) cellUpdated {
	return cellUpdated{MessageType: "cellUpdated", CellName: cell, Contents: contents}
}

// cellSelected carries the selector id as a decimal string.
type cellSelected struct {
	MessageType  string `json:"messageType"`
	CellName     string `json:"cellName"`
	Selector     string `json:"selector"`
	SelectorName string `json:"selectorName"`
}

type requestError struct {
	MessageType string `json:"messageType"`
	CellName    string `json:"cellName"`
	Message     string `json:"message"`
}

func newRequestError(cell, message string) requestError {
	return requestError{MessageType: "requestError", CellName: cell, Message: message}
}

type disconnected struct {
	MessageType string `json:"messageType"`
	User        string `json:"user"`
}

type serverError struct {
	MessageType string `json:"messageType"`
	Message     string `json:"message"`
}
