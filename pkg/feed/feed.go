package feed

// ServiceDependencies holds all the external collaborators the feed service
// needs to operate. This struct is used for dependency injection by the
// service wrapper and the entrypoints.
type ServiceDependencies struct {
	// --- Storage ---
	Users  UserStore
	Posts  PostStore
	Images ImageStore

	// --- Identity ---
	Verifier TokenVerifier
	Issuer   TokenIssuer
}
