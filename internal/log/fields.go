package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Websocket
	FieldConnID = "conn_id"
	FieldEvent  = "event"
	FieldRoomID = "room_id"
	FieldUserID = "user_id"

	FieldService = "service"
)
