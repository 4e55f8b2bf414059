// Package entity defines the core domain model for the message dispatch
// pipeline: templates, message records, batch tasks, and the closed set of
// delivery channels.
package entity

import "regexp"

// ChannelType identifies a messaging transport. The set is closed: adding a
// channel means adding a sender implementation and a new constant here.
type ChannelType string

const (
	ChannelSMS           ChannelType = "SMS"
	ChannelEmail         ChannelType = "EMAIL"
	ChannelGroupBot      ChannelType = "GROUP_BOT"
	ChannelAIBot         ChannelType = "AI"
	ChannelEnterpriseIM  ChannelType = "WORK_WECHAT"
	ChannelPublicAccount ChannelType = "WECHAT"
)

// AllChannels lists every supported channel type.
var AllChannels = []ChannelType{
	ChannelSMS,
	ChannelEmail,
	ChannelGroupBot,
	ChannelAIBot,
	ChannelEnterpriseIM,
	ChannelPublicAccount,
}

// RecipientType describes the identifier format a channel addresses.
type RecipientType string

const (
	RecipientPhone          RecipientType = "phone"
	RecipientEmail          RecipientType = "email"
	RecipientGroupID        RecipientType = "group_id"
	RecipientOpenID         RecipientType = "openid"
	RecipientExternalUserID RecipientType = "external_user_id"
)

// channelRecipientTypes maps each channel to the recipient identifier it
// expects.
var channelRecipientTypes = map[ChannelType]RecipientType{
	ChannelSMS:           RecipientPhone,
	ChannelEmail:         RecipientEmail,
	ChannelGroupBot:      RecipientGroupID,
	ChannelAIBot:         RecipientGroupID,
	ChannelEnterpriseIM:  RecipientExternalUserID,
	ChannelPublicAccount: RecipientOpenID,
}

// IsValid reports whether the channel type is one of the supported set.
func (c ChannelType) IsValid() bool {
	_, ok := channelRecipientTypes[c]
	return ok
}

// RecipientType returns the identifier format this channel addresses.
func (c ChannelType) RecipientType() RecipientType {
	return channelRecipientTypes[c]
}

var (
	// Mainland mobile numbers: 11 digits, 1[3-9] prefix.
	phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)
	emailPattern = regexp.MustCompile(`^[\w.\-]+@[\w.\-]+\.\w+$`)
)

// ValidateRecipient checks a recipient identifier against the format the
// channel expects. Opaque identifiers (group ids, openids, external user ids)
// only need to be non-empty.
func (c ChannelType) ValidateRecipient(recipient string) error {
	switch c.RecipientType() {
	case RecipientPhone:
		if !phonePattern.MatchString(recipient) {
			return ErrInvalidRecipient
		}
	case RecipientEmail:
		if !emailPattern.MatchString(recipient) {
			return ErrInvalidRecipient
		}
	case RecipientGroupID, RecipientOpenID, RecipientExternalUserID:
		if recipient == "" {
			return ErrInvalidRecipient
		}
	default:
		return ErrUnknownChannel
	}
	return nil
}
