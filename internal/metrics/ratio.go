package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Ratio is a metric value that may be undefined, for example a rate whose
// denominator is zero. Undefined ratios marshal as JSON null.
type Ratio struct {
	Value   float64
	Defined bool
}

// Undefined is the undefined ratio.
var Undefined = Ratio{}

// SafeRatio returns num/den, or Undefined when den is zero or the result is
// not finite.
func SafeRatio(num, den float64) Ratio {
	if den == 0 {
		return Undefined
	}
	return Value(num / den)
}

// Value wraps v, mapping NaN and infinities to Undefined.
func Value(v float64) Ratio {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return Ratio{Value: v, Defined: true}
}

// Or returns the value if defined, otherwise def.
func (r Ratio) Or(def float64) float64 {
	if !r.Defined {
		return def
	}
	return r.Value
}

func (r Ratio) String() string {
	if !r.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%.4f", r.Value)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Value(v)
	return nil
}
