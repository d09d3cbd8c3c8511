package dynamo

// DynamoDB attribute names used in key conditions and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldNotificationID = "notification_id"
	fieldRecipientID    = "recipient_id"
	fieldCreatedAt      = "created_at"
	fieldRead           = "read"
	fieldReadAt         = "read_at"

	indexRecipientCreatedAt = "recipient_id-created_at-index"
)
