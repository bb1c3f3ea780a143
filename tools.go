//go:build tools

// Package tools фиксирует зависимости утилит (mockgen для go generate) в go.mod.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
