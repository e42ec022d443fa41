package domain

// Control-plane failures are surfaced with the control plane's own
// classification. None of these are retried by the provisioner.

type AlreadyExistsError struct {
	Name string
}

func (e AlreadyExistsError) Error() string {
	return "instance already exists: " + e.Name
}

type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return "instance not found: " + e.Name
}

type QuotaExceededError struct {
	Reason string
}

func (e QuotaExceededError) Error() string {
	return "quota exceeded: " + e.Reason
}

type InvalidSpecError struct {
	Reason string
}

func (e InvalidSpecError) Error() string {
	return "invalid instance spec: " + e.Reason
}

type OperationError struct {
	Op      string
	Message string
}

func (e OperationError) Error() string {
	return "operation " + e.Op + " failed: " + e.Message
}
