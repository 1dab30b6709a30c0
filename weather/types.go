package weather

// Report is the projection of an OpenWeather current-weather response.
type Report struct {
	Temp        float64 `json:"temp"`
	Description string  `json:"description"`
	City        string  `json:"city"`
	Icon        string  `json:"icon"`
}

// IconURL returns the image URL for an OpenWeather icon code.
func IconURL(code string) string {
	return "https://openweathermap.org/img/wn/" + code + ".png"
}
