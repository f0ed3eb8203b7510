// Package graph implements driven.GraphClient against Microsoft Graph.
//
// Tokens come from the client-credentials grant. Requests are rate limited,
// throttled responses (429, 503) are retried after Retry-After, and folder
// listings follow @odata.nextLink until exhausted.
package graph
