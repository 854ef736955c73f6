package models

import (
	"fmt"
	"strings"
)

// Method tags an attribution algorithm.
type Method string

const (
	MethodShapley   Method = "shapley"
	MethodSurrogate Method = "surrogate"
)

// Methods lists every attribution method in a stable order.
var Methods = []Method{MethodShapley, MethodSurrogate}

// ParseMethod normalizes a user supplied method name. The common library
// names "shap" and "lime" are accepted as aliases.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shapley", "shap":
		return MethodShapley, nil
	case "surrogate", "lime":
		return MethodSurrogate, nil
	case "":
		return "", fmt.Errorf("%w: method is required", ErrUnknownMethod)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

func (m Method) String() string { return string(m) }

// SupportedMethods returns the methods that can explain a model of the given family.
func SupportedMethods(f Family) []Method {
	if f.IsTreeEnsemble() {
		return []Method{MethodShapley, MethodSurrogate}
	}
	return []Method{MethodSurrogate}
}

// Supports reports whether m can explain a model of family f.
func (f Family) Supports(m Method) bool {
	for _, s := range SupportedMethods(f) {
		if s == m {
			return true
		}
	}
	return false
}
