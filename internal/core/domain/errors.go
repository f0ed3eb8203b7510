package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	// Graph adapters return it for a definitive 404.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// Configuration Errors.

	// ErrConnectorDisabled indicates SHAREPOINT_CONNECTOR_ENABLED is not "true".
	ErrConnectorDisabled = errors.New("sharepoint connector disabled")

	// ErrMissingConfig indicates one or more required settings are empty.
	ErrMissingConfig = errors.New("missing configuration")

	// Authentication Errors.

	// ErrAuthFailed indicates a Graph access token could not be obtained.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrSiteUnresolved indicates the SharePoint site ID could not be resolved.
	ErrSiteUnresolved = errors.New("sharepoint site unresolved")

	// ErrDriveUnresolved indicates the document library drive ID could not be resolved.
	ErrDriveUnresolved = errors.New("sharepoint drive unresolved")

	// Index Errors.

	// ErrSearchUnavailable indicates the search index is not configured.
	ErrSearchUnavailable = errors.New("search index unavailable")

	// ErrRunInProgress indicates a purge or sync is already running.
	ErrRunInProgress = errors.New("run in progress")
)
