package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RegisterBuiltins adds the built-in local tools to the registry. These
// are deliberately small: they exist so a bare configuration has
// something callable, and so the dispatch path is exercised without an
// MCP server.
func RegisterBuiltins(r *Registry) {
	r.Register(New(
		"current_time",
		"Get the current date and time. Optionally pass an IANA timezone name.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone (e.g. America/Chicago). Defaults to UTC.",
				},
			},
		},
		handleCurrentTime,
	))

	r.Register(New(
		"calculate",
		"Perform a basic arithmetic calculation on two operands (e.g. \"3 * 4\").",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Expression of the form \"a <op> b\" where op is one of + - * /",
				},
			},
			"required": []string{"expression"},
		},
		handleCalculate,
	))
}

func handleCurrentTime(_ context.Context, args map[string]any) (string, error) {
	loc := time.UTC
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return "", &ErrInvalidArguments{Reason: fmt.Sprintf("unknown timezone %q", tz)}
		}
		loc = parsed
	}
	return time.Now().In(loc).Format(time.RFC1123), nil
}

func handleCalculate(_ context.Context, args map[string]any) (string, error) {
	expr, ok := args["expression"].(string)
	if !ok || expr == "" {
		return "", &ErrInvalidArguments{Reason: "expression is required"}
	}

	for _, op := range []string{"+", "-", "*", "/"} {
		parts := strings.SplitN(expr, op, 2)
		if len(parts) != 2 {
			continue
		}
		a, errA := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errA != nil || errB != nil {
			continue
		}

		var result float64
		switch op {
		case "+":
			result = a + b
		case "-":
			result = a - b
		case "*":
			result = a * b
		case "/":
			if b == 0 {
				return "", &ErrExecutionFailed{Reason: "division by zero"}
			}
			result = a / b
		}
		return strconv.FormatFloat(result, 'f', -1, 64), nil
	}

	return "", &ErrInvalidArguments{Reason: fmt.Sprintf("cannot parse expression %q", expr)}
}
