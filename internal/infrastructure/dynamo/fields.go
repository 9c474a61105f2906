package dynamo

// DynamoDB attribute names used in key and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldLetterID    = "letter_id"
	fieldTitle       = "title"
	fieldBody        = "body"
	fieldDeliverAt   = "deliver_at"
	fieldDelivered   = "delivered"
	fieldIsRead      = "is_read"
	fieldAttachments = "attachments"
	fieldUpdatedAt   = "updated_at"

	fieldSettingKey = "setting_key"
	fieldEnabled    = "enabled"
)
