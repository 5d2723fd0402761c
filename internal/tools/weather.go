package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ent0n29/novagate/internal/nova"
)

var weatherSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"latitude": {"type": "number", "description": "Geographical WGS84 latitude of the location."},
		"longitude": {"type": "number", "description": "Geographical WGS84 longitude of the location."}
	},
	"required": ["latitude", "longitude"]
}`)

const openMeteoURL = "https://api.open-meteo.com/v1/forecast"

// WeatherTool fetches current conditions from Open-Meteo. A nil client uses
// a default with a 5s timeout.
func WeatherTool(client *http.Client) nova.Tool {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return nova.Tool{
		Spec: nova.ToolSpec{
			Name:        "getWeatherTool",
			Description: "Get the current weather for a given location, based on its WGS84 coordinates.",
			InputSchema: weatherSchema,
		},
		Run: func(ctx context.Context, input map[string]string) (any, error) {
			var args struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			}
			if err := parseArgs(input, &args); err != nil {
				return nil, err
			}

			url := fmt.Sprintf("%s?latitude=%f&longitude=%f&current_weather=true", openMeteoURL, args.Latitude, args.Longitude)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", "novagate/1.0")
			req.Header.Set("Accept", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("weather lookup: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("weather lookup: status %d", resp.StatusCode)
			}

			var data map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
				return nil, fmt.Errorf("weather lookup: decode: %w", err)
			}
			return map[string]any{"weather_data": data}, nil
		},
	}
}
