package attribution

import (
	"fmt"

	"github.com/finxai/xai/internal/models"
	"github.com/go-viper/mapstructure/v2"
)

// ShapleyOptions tune the TreeSHAP explainer.
type ShapleyOptions struct {
	// CheckAdditivity rejects explanations whose sum differs from the model
	// score by more than Tolerance.
	CheckAdditivity bool    `mapstructure:"check_additivity"`
	Tolerance       float64 `mapstructure:"tolerance"`
}

// SurrogateOptions tune the local surrogate explainer.
type SurrogateOptions struct {
	// NumSamples is the number of perturbed neighbours per explanation.
	NumSamples int `mapstructure:"num_samples"`
	// KernelWidth of the exponential proximity kernel. Zero means
	// 0.75 * sqrt(number of features).
	KernelWidth float64 `mapstructure:"kernel_width"`
	// Alpha is the ridge penalty.
	Alpha float64 `mapstructure:"alpha"`
}

// Options groups per-method explainer options.
type Options struct {
	Shapley   ShapleyOptions   `mapstructure:"shapley"`
	Surrogate SurrogateOptions `mapstructure:"surrogate"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Shapley: ShapleyOptions{
			CheckAdditivity: true,
			Tolerance:       1e-6,
		},
		Surrogate: SurrogateOptions{
			NumSamples: 1000,
			Alpha:      1.0,
		},
	}
}

// DecodeOptions overlays free-form per-method option maps, keyed by method
// name, on DefaultOptions. Unknown keys are rejected.
func DecodeOptions(raw map[string]map[string]any) (Options, error) {
	opts := DefaultOptions()
	for name, params := range raw {
		method, err := models.ParseMethod(name)
		if err != nil {
			return Options{}, fmt.Errorf("explainers: %w", err)
		}
		var target any
		switch method {
		case models.MethodShapley:
			target = &opts.Shapley
		case models.MethodSurrogate:
			target = &opts.Surrogate
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           target,
			ErrorUnused:      true,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return Options{}, err
		}
		if err := dec.Decode(params); err != nil {
			return Options{}, fmt.Errorf("explainers.%s: %w", name, err)
		}
	}
	if err := opts.validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (o Options) validate() error {
	if o.Shapley.Tolerance < 0 {
		return fmt.Errorf("explainers.shapley.tolerance must be >= 0")
	}
	if o.Surrogate.NumSamples < 10 {
		return fmt.Errorf("explainers.surrogate.num_samples must be >= 10, got %d", o.Surrogate.NumSamples)
	}
	if o.Surrogate.KernelWidth < 0 {
		return fmt.Errorf("explainers.surrogate.kernel_width must be >= 0")
	}
	if o.Surrogate.Alpha < 0 {
		return fmt.Errorf("explainers.surrogate.alpha must be >= 0")
	}
	return nil
}
