package constant

const (
	QueueStreamName = "ration_kiosk_queue_stream"
)

const (
	AllWildcard      = "events.>"
	DispenseWildcard = "events.dispense.>"
	EmailWildcard    = "events.email.>"

	SubjectDispenseCompleted = "events.dispense.completed"
	SubjectDispenseFailed    = "events.dispense.failed"
	SubjectSendEmail         = "events.email.send"
)
