// Package services provides the centralized service registry for forged.
//
// Registry pattern for accessing all core services (workspace store, job
// queue, git client, workflow engine, finalizer, CLI runner, hosting
// detector, scrubber). Use NewRegistry() to create a registry with
// service instances, then accessor methods to retrieve individual
// services.
package services
