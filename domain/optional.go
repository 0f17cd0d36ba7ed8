package domain

import "github.com/bytedance/sonic"

// OptionalString distinguishes an absent field from an explicit null in
// partial updates. The zero value means "leave unchanged".
type OptionalString struct {
	Set   bool
	Value *string
}

// Some returns an OptionalString carrying s.
func Some(s string) OptionalString { return OptionalString{Set: true, Value: &s} }

// Null returns an OptionalString that clears the field.
func Null() OptionalString { return OptionalString{Set: true} }

// UnmarshalJSON is only invoked for keys present in the payload.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := sonic.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return sonic.Marshal(*o.Value)
}

// ApplyTo returns the resulting value of a nullable column after the update.
func (o OptionalString) ApplyTo(cur *string) *string {
	if !o.Set {
		return cur
	}
	if o.Value == nil {
		return nil
	}
	v := *o.Value
	return &v
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
