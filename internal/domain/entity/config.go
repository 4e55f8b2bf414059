package entity

import "time"

// ChannelConfig holds the provider settings for one channel (API endpoints,
// credentials, webhook URLs). Data is opaque to the dispatch core and
// interpreted by the matching sender.
type ChannelConfig struct {
	ID        int64          `json:"id"`
	Channel   ChannelType    `json:"channel_type"`
	Data      map[string]any `json:"config_data"`
	Enabled   bool           `json:"is_enabled"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// String returns the string value for a config key, or empty when absent or
// not a string.
func (c *ChannelConfig) String(key string) string {
	v, _ := c.Data[key].(string)
	return v
}

// CustomerContact is a verified delivery address for one customer on one
// channel. The scheduler resolves recipient lists from these rows at fire
// time.
type CustomerContact struct {
	ID         int64       `json:"id"`
	CustomerID int64       `json:"customer_id"`
	Channel    ChannelType `json:"channel_type"`
	Identifier string      `json:"identifier"`
	Verified   bool        `json:"verified"`
	CreatedAt  time.Time   `json:"created_at"`
}
