// Package azuresearch implements driven.SearchIndex over the Azure AI Search
// REST API using an admin api-key.
package azuresearch
