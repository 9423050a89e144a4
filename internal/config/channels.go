package config

// ChannelConfig describes one Telegram channel to scrape
type ChannelConfig struct {
	Name     string
	Category string // "cosmetics", "pharmaceuticals", "medical_supplies", "pharmacy", "healthcare", "general"
	Priority string // "high", "medium" or "low"
	Active   bool
}

// medicalChannels is the curated registry of Ethiopian medical channels.
// Overridable through the CHANNELS environment variable.
var medicalChannels = []ChannelConfig{
	{Name: "lobelia4cosmetics", Category: "cosmetics", Priority: "high", Active: true},
	{Name: "tikvahpharma", Category: "pharmaceuticals", Priority: "high", Active: true},
	{Name: "chemed_ethiopia", Category: "medical_supplies", Priority: "high", Active: true},
	{Name: "ethiopian_pharmacy", Category: "pharmacy", Priority: "medium", Active: true},
	{Name: "medical_supplies_ethiopia", Category: "medical_supplies", Priority: "medium", Active: true},
	{Name: "healthcare_ethiopia", Category: "healthcare", Priority: "medium", Active: true},
	{Name: "pharmaceutical_ethiopia", Category: "pharmaceuticals", Priority: "medium", Active: true},
	{Name: "ethiopia_medicine", Category: "general", Priority: "low", Active: true},
	{Name: "addis_pharmacy", Category: "pharmacy", Priority: "low", Active: true},
	{Name: "ethiopia_health", Category: "healthcare", Priority: "low", Active: true},
	{Name: "ethiopian_pharmaceuticals", Category: "pharmaceuticals", Priority: "medium", Active: true},
	{Name: "medical_ethiopia", Category: "healthcare", Priority: "medium", Active: true},
	{Name: "pharmacy_ethiopia", Category: "pharmacy", Priority: "medium", Active: true},
	{Name: "health_ethiopia", Category: "healthcare", Priority: "low", Active: true},
	{Name: "medicine_ethiopia", Category: "pharmaceuticals", Priority: "low", Active: true},
	{Name: "ethiopian_healthcare", Category: "healthcare", Priority: "low", Active: true},
	{Name: "addis_medicine", Category: "pharmaceuticals", Priority: "low", Active: true},
}

// ActiveChannels returns the registry entries marked active
func ActiveChannels() []ChannelConfig {
	var active []ChannelConfig
	for _, ch := range medicalChannels {
		if ch.Active {
			active = append(active, ch)
		}
	}
	return active
}

// ChannelNames returns the names of all active channels
func ChannelNames(channels []ChannelConfig) []string {
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name)
	}
	return names
}

// HighPriorityChannels returns active channels with priority "high"
func HighPriorityChannels(channels []ChannelConfig) []ChannelConfig {
	var high []ChannelConfig
	for _, ch := range channels {
		if ch.Priority == "high" {
			high = append(high, ch)
		}
	}
	return high
}
