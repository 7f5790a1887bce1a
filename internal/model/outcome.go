package model

// TransferStatus is the reconciliation result for one photo.
type TransferStatus string

const (
	// StatusAlreadyPresent means the photo was found at the destination and not transferred.
	StatusAlreadyPresent TransferStatus = "already_present"

	// StatusTransferred means the destination accepted a transfer request.
	StatusTransferred TransferStatus = "transferred"

	// StatusFailed means the existence check or transfer request failed.
	StatusFailed TransferStatus = "failed"

	// StatusNotAttempted means the run was cancelled before the photo was dispatched.
	StatusNotAttempted TransferStatus = "not_attempted"
)

// Attempted reports whether the reconciler did any work for the photo.
func (s TransferStatus) Attempted() bool {
	return s == StatusAlreadyPresent || s == StatusTransferred || s == StatusFailed
}

// TransferOutcome records what happened to one NamedPhoto during reconciliation.
type TransferOutcome struct {
	FileName string
	SizeType string
	Status   TransferStatus

	// Err is set when Status is StatusFailed.
	Err error
}

// VerifyStatus is the post-transfer presence check result for one photo.
type VerifyStatus string

const (
	// VerifyPresent means the photo exists at the destination.
	VerifyPresent VerifyStatus = "present"

	// VerifyAbsent means the destination answered that the photo does not exist.
	VerifyAbsent VerifyStatus = "absent"

	// VerifyCheckFailed means the presence check itself could not be completed.
	VerifyCheckFailed VerifyStatus = "check_failed"
)

// VerifyOutcome records the verification result for one attempted photo.
type VerifyOutcome struct {
	FileName string
	SizeType string
	Status   VerifyStatus
	Err      error
}

// Tally summarises a run. Every fetched record is counted exactly once in
// Skipped, NotAttempted, or one of the attempted buckets.
type Tally struct {
	Fetched        int `json:"fetched"`
	Skipped        int `json:"skipped"`
	Attempted      int `json:"attempted"`
	AlreadyPresent int `json:"already_present"`
	Transferred    int `json:"transferred"`
	Failed         int `json:"failed"`
	NotAttempted   int `json:"not_attempted"`
	Verified       int `json:"verified"`
	VerifyAbsent   int `json:"verify_absent"`
	VerifyErrors   int `json:"verify_errors"`
}
