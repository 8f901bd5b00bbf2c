package command

// ParamType names the value shape a declared parameter accepts.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeNumber ParamType = "number"
	TypeInt    ParamType = "integer"
	TypeBool   ParamType = "boolean"
	TypeVec3   ParamType = "vec3"
	TypeVec4   ParamType = "vec4"
	TypeArray  ParamType = "array"
	TypeObject ParamType = "object"
	TypeAny    ParamType = "any"
)

// ParamSpec declares one parameter of a command contract.
type ParamSpec struct {
	Key      string
	Type     ParamType
	Required bool
	// Default is substituted when an optional key is absent. It is
	// deep-copied per request so handlers can mutate their params freely.
	Default interface{}
	// Enum restricts a string parameter to a closed value set.
	Enum []string
	// Min/Max bound number and integer parameters when non-nil.
	Min *float64
	Max *float64
	// Length fixes the element count of an array parameter when > 0.
	Length int
}

// Contract is a command's declared parameter surface. Contracts are built
// once during registration and never mutated afterwards. Keys absent from
// the contract pass through validation untouched; handlers own their
// interpretation.
type Contract struct {
	Name        string
	Description string
	Params      []ParamSpec
}

// Spec returns the declaration for key, or nil when the key is undeclared.
func (c *Contract) Spec(key string) *ParamSpec {
	for i := range c.Params {
		if c.Params[i].Key == key {
			return &c.Params[i]
		}
	}
	return nil
}

// Float64 is a convenience for building Min/Max bounds inline.
func Float64(v float64) *float64 { return &v }
