package dynamo

// DynamoDB attribute names used in expressions across the repos. Constants
// prevent silent runtime bugs caused by key typos.
const (
	fieldUserID                    = "user_id"
	fieldCodeID                    = "code_id"
	fieldHash                      = "hash"
	fieldNumber                    = "number"
	fieldHandle                    = "handle"
	fieldDeleted                   = "deleted"
	fieldModified                  = "modified"
	fieldPhoneVerified             = "phone_verified"
	fieldPhoneVerificationSent     = "phone_verification_sent"
	fieldPhoneVerificationAttempts = "phone_verification_attempts"
)
