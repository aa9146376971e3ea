package validator

// Validator collects named validation failures for a request.
type Validator struct {
	Errors map[string]string
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

// Valid reports whether no checks have failed.
func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

// AddError records a failure for a key, keeping the first message only.
func (v *Validator) AddError(key, message string) {
	if _, exists := v.Errors[key]; !exists {
		v.Errors[key] = message
	}
}

// Check records message under key when ok is false.
func (v *Validator) Check(ok bool, key, message string) {
	if !ok {
		v.AddError(key, message)
	}
}

// In reports whether value is one of the permitted values.
func In(value string, permitted ...string) bool {
	for i := range permitted {
		if value == permitted[i] {
			return true
		}
	}
	return false
}
