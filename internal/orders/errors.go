package orders

import "errors"

var (
	// ErrInvalidPayload means the client sent a body that cannot be accepted. Not retried.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrEnqueueFailed means the order was not queued. The client may retry the request.
	ErrEnqueueFailed = errors.New("enqueue failed")
	// ErrPoisonMessage marks a queue message whose body cannot be decoded.
	ErrPoisonMessage = errors.New("poison message")
	// ErrTransientPersist wraps store failures other than an existing record.
	// It is propagated so the queue redelivers the batch.
	ErrTransientPersist = errors.New("transient persist failure")
	// ErrNotFound is returned by Store.Get when no record exists.
	ErrNotFound = errors.New("order not found")
)
