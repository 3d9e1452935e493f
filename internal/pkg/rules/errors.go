package rules

import "errors"

var (
	// ErrCooldownActive is returned by ManualTrigger when the rule's
	// cooldown has not yet elapsed (§4.G edge case: manual invocation
	// bypasses conditions but not cooldown).
	ErrCooldownActive = errors.New("rules: cooldown active")
	// ErrRateExceeded is returned (and no RuleExecution is recorded) when
	// maxExecutionsPerHour's sliding window is already full.
	ErrRateExceeded = errors.New("rules: maxExecutionsPerHour exceeded")
	// ErrAlreadyRunning is returned when a concurrent execution of the
	// same rule is already in flight (§4.G single-flight guard).
	ErrAlreadyRunning = errors.New("rules: execution already in flight")
)
