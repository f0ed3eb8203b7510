package domain

// Existence is the outcome of checking one file against SharePoint.
type Existence int

const (
	// ExistenceUnknown means Graph never gave a definitive answer.
	ExistenceUnknown Existence = iota

	// ExistenceFound means Graph returned the item.
	ExistenceFound

	// ExistenceMissing means Graph answered 404, or the file is absent from the target folder.
	ExistenceMissing
)

// String returns a lowercase label for logs and reports.
func (e Existence) String() string {
	switch e {
	case ExistenceFound:
		return "found"
	case ExistenceMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Orphaned reports whether a file with this existence should be purged under policy.
func (e Existence) Orphaned(policy IndeterminatePolicy) bool {
	switch e {
	case ExistenceFound:
		return false
	case ExistenceMissing:
		return true
	default:
		return policy != IndeterminateRetain
	}
}

// ExistenceResult pairs a file key with its check outcome.
type ExistenceResult struct {
	Key       FileKey
	Existence Existence

	// ResolvedID is the Graph item ID when URL resolution produced one.
	ResolvedID string

	// Method names the lookup that decided the outcome, e.g. "folder:name" or "drive-items".
	Method string
}
