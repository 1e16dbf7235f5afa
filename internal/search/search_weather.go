package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	openWeatherBase    = "https://api.openweathermap.org/data/2.5"
	weatherTimeout     = 10 * time.Second
	weatherMaxAttempts = 3
)

var weatherRetryStatuses = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

// WeatherProvider wraps OpenWeatherMap. It satisfies Provider (current
// conditions) and additionally exposes a 5-day forecast for /forecast.
type WeatherProvider struct {
	apiKey string
	units  string
	client *http.Client
}

func init() {
	Register("weather", func(opts Options) (Provider, error) {
		if opts.APIKey == "" {
			return nil, errors.New("weather provider requires an API key")
		}
		return NewWeather(opts.APIKey, opts.Units), nil
	})
}

func NewWeather(apiKey, units string) *WeatherProvider {
	if units != "imperial" {
		units = "metric"
	}
	return &WeatherProvider{
		apiKey: apiKey,
		units:  units,
		client: &http.Client{
			Timeout:   weatherTimeout,
			Transport: newCompressedTransport(nil),
		},
	}
}

func (p *WeatherProvider) Name() string { return "weather" }

func (p *WeatherProvider) Search(ctx context.Context, query string, _ int) ([]Result, error) {
	return p.Current(ctx, query)
}

// Current returns current conditions for a location.
func (p *WeatherProvider) Current(ctx context.Context, location string) ([]Result, error) {
	data, err := p.fetch(ctx, "/weather", location)
	if err != nil {
		return nil, err
	}
	return []Result{p.formatCurrent(data)}, nil
}

// Forecast returns a 5-day forecast for a location.
func (p *WeatherProvider) Forecast(ctx context.Context, location string) ([]Result, error) {
	data, err := p.fetch(ctx, "/forecast", location)
	if err != nil {
		return nil, err
	}
	return []Result{p.formatForecast(data)}, nil
}

func (p *WeatherProvider) fetch(ctx context.Context, path, location string) (gjson.Result, error) {
	params := url.Values{}
	params.Set("q", location)
	params.Set("appid", p.apiKey)
	params.Set("units", p.units)
	endpoint := openWeatherBase + path + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < weatherMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(attempt+1)*0.5*float64(time.Second))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return gjson.Result{}, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("create request: %w", err)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if weatherRetryStatuses[resp.StatusCode] {
			lastErr = fmt.Errorf("weather HTTP %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return gjson.Result{}, fmt.Errorf("weather HTTP %d: %s", resp.StatusCode, string(body))
		}
		return gjson.ParseBytes(body), nil
	}
	return gjson.Result{}, fmt.Errorf("weather request failed: %w", lastErr)
}

func (p *WeatherProvider) unitSymbol() string {
	if p.units == "imperial" {
		return "F"
	}
	return "C"
}

func (p *WeatherProvider) formatCurrent(data gjson.Result) Result {
	city := data.Get("name").String()
	country := data.Get("sys.country").String()
	condition := capitalize(data.Get("weather.0.description").String())
	sym := p.unitSymbol()

	snippet := fmt.Sprintf("Condition: %s\nTemperature: %v°%s\nFeels like: %v°%s\nHumidity: %v%%\nWind: %v m/s",
		condition,
		data.Get("main.temp").Value(), sym,
		data.Get("main.feels_like").Value(), sym,
		data.Get("main.humidity").Value(),
		data.Get("wind.speed").Value(),
	)

	return Result{
		Title:   fmt.Sprintf("Weather for %s, %s", city, country),
		URL:     fmt.Sprintf("https://openweathermap.org/city/%d", data.Get("id").Int()),
		Snippet: snippet,
		Source:  "OpenWeatherMap",
	}
}

func (p *WeatherProvider) formatForecast(data gjson.Result) Result {
	city := data.Get("city.name").String()
	country := data.Get("city.country").String()
	sym := p.unitSymbol()

	// One entry per day, preferring the midday reading.
	daily := make(map[string]gjson.Result)
	data.Get("list").ForEach(func(_, entry gjson.Result) bool {
		dtTxt := entry.Get("dt_txt").String()
		if dtTxt == "" {
			return true
		}
		t, err := time.Parse("2006-01-02 15:04:05", dtTxt)
		if err != nil {
			return true
		}
		day := t.Format("2006-01-02")
		if _, ok := daily[day]; !ok || t.Hour() == 12 {
			daily[day] = entry
		}
		return true
	})

	days := make([]string, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Strings(days)
	if len(days) > 5 {
		days = days[:5]
	}

	lines := make([]string, 0, len(days))
	for _, day := range days {
		entry := daily[day]
		lines = append(lines, fmt.Sprintf("%s: %s, %v°%s",
			day,
			capitalize(entry.Get("weather.0.description").String()),
			entry.Get("main.temp").Value(),
			sym,
		))
	}

	return Result{
		Title:   fmt.Sprintf("5-day forecast for %s, %s", city, country),
		URL:     fmt.Sprintf("https://openweathermap.org/city/%d", data.Get("city.id").Int()),
		Snippet: strings.Join(lines, "\n"),
		Source:  "OpenWeatherMap",
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
