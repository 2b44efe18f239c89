// Package gae provides a Google Cloud Datastore implementation of
// lmsauth.Store, for deployment on Google Cloud Platform.
//
// # Datastore Kinds
//
//   - User: user accounts, keyed by user id
//   - UserEmail: normalized email -> user id
//   - UserOAuth: "provider:id" -> user id
//
// The index kinds are written in the same transaction as the User entity,
// which is how email and provider identities stay unique.
//
// # Namespacing
//
// Pass a namespace to isolate tenants (or test runs):
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewStore(client, "tenant-123")
package gae
