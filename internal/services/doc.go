// Package services provides the service registry for supplierd.
//
// The registry hands the HTTP layer the extraction pipeline, the ignore
// policy and the backing store without exposing how they were wired.
package services
