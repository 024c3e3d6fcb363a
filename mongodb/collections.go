package mongodb

// Collection names. The identities collection belongs to the authentication
// provider; membership and profile collections belong to the application.
// This service reads all three and writes only its own two collections.
const (
	IdentitiesCollection        = "identities"                 // authentication-provider user records
	MembersCollection           = "company_members"            // primary relation: tenant/account membership
	ProfilesCollection          = "profiles"                   // secondary relation: application profile
	VerificationCodesCollection = "cleanup_verification_codes" // proof-of-ownership codes
	CleanupAuditCollection      = "cleanup_audit_log"          // append-only cleanup audit trail
)
