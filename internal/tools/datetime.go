package tools

import (
	"context"
	"strings"
	"time"

	"github.com/ent0n29/novagate/internal/nova"
)

// DateAndTimeTool reports the current date and time in Pacific time, the
// reference timezone the assistant speaks in.
func DateAndTimeTool() nova.Tool {
	return nova.Tool{
		Spec: nova.ToolSpec{
			Name:        "getDateAndTimeTool",
			Description: "Get information about the current date and time.",
			InputSchema: defaultSchema,
		},
		Run: func(ctx context.Context, input map[string]string) (any, error) {
			loc, err := time.LoadLocation("America/Los_Angeles")
			if err != nil {
				return nil, err
			}
			now := time.Now().In(loc)
			return map[string]any{
				"date":          now.Format("2006-01-02"),
				"year":          now.Year(),
				"month":         int(now.Month()),
				"day":           now.Day(),
				"dayOfWeek":     strings.ToUpper(now.Weekday().String()),
				"timezone":      "PST",
				"formattedTime": now.Format("03:04 PM"),
			}, nil
		},
	}
}
